// Package dispatch sends commands to the board and correlates responses
// with the single in-flight command of each handle.
package dispatch

import (
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/status"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
)

// DefaultTimeout is the default deadline of a command.
const DefaultTimeout = time.Second

var (
	// ErrHandleBusy indicates the handle already has an in-flight command.
	ErrHandleBusy = status.NewError(status.HandleBusy, "command in flight")
	// ErrTransportUnavailable indicates the transport can't carry commands.
	ErrTransportUnavailable = status.NewError(status.TransportUnavailable, "transport unavailable")
)

// Writer is the write side of the transport.
type Writer interface {
	WritePacket([]byte) error
	Ready() <-chan struct{}
}

// Response is the outcome of a command. Reply is nil when the outcome
// is synthesized locally (timeout, transport loss).
type Response struct {
	Handle handles.ID
	Action wire.Action
	Token  byte
	Code   status.Code
	Reply  *wire.Reply
}

// Completion receives the Response of a command on the loop.
type Completion func(*Response)

type command struct {
	handle handles.ID
	action wire.Action
	token  byte
	done   Completion
	timer  *fx.Timer
}

// Dispatcher is confined to the loop goroutine.
type Dispatcher struct {
	// Timeout is the per-command deadline, zero disables it.
	Timeout time.Duration

	writer  Writer
	handles *handles.Manager
	sched   fx.Scheduler

	inflight map[handles.ID]*command
	token    byte
	closed   bool
}

// New creates a Dispatcher.
func New(w Writer, hm *handles.Manager, sched fx.Scheduler) *Dispatcher {
	return &Dispatcher{
		Timeout:  DefaultTimeout,
		writer:   w,
		handles:  hm,
		sched:    sched,
		inflight: make(map[handles.ID]*command),
	}
}

func (d *Dispatcher) nextToken() byte {
	if d.token++; d.token == 0 {
		d.token = 1
	}
	return d.token
}

func (d *Dispatcher) ready() bool {
	if d.closed {
		return false
	}
	select {
	case <-d.writer.Ready():
		return true
	default:
		return false
	}
}

// Send frames and writes one request for a live handle. done is invoked
// later on the loop exactly once unless Send fails.
func (d *Dispatcher) Send(id handles.ID, action wire.Action, payload []byte, done Completion) (byte, error) {
	if _, err := d.handles.Get(id); err != nil {
		return 0, err
	}
	if d.inflight[id] != nil {
		return 0, ErrHandleBusy
	}
	if !d.ready() {
		return 0, ErrTransportUnavailable
	}
	cmd := &command{handle: id, action: action, token: d.nextToken(), done: done}
	frame := &wire.Frame{
		Kind:    wire.KindRequest,
		Action:  action,
		Token:   cmd.token,
		Handle:  byte(id),
		Payload: payload,
	}
	if err := d.writer.WritePacket(frame.Bytes()); err != nil {
		return 0, status.NewError(status.TransportUnavailable, fmt.Sprintf("write %s: %v", action, err))
	}
	glog.V(2).Infof("SND %s handle=%d token=%d", action, id, cmd.token)
	d.inflight[id] = cmd
	if d.Timeout > 0 {
		cmd.timer = d.sched.After(d.Timeout, func() { d.expire(cmd) })
	}
	return cmd.token, nil
}

func (d *Dispatcher) expire(cmd *command) {
	if d.inflight[cmd.handle] != cmd {
		return
	}
	glog.Warningf("%s handle=%d token=%d timed out", cmd.action, cmd.handle, cmd.token)
	d.complete(cmd, &Response{Code: status.Timeout})
}

func (d *Dispatcher) complete(cmd *command, resp *Response) {
	delete(d.inflight, cmd.handle)
	if cmd.timer != nil {
		cmd.timer.Stop()
	}
	resp.Handle, resp.Action, resp.Token = cmd.handle, cmd.action, cmd.token
	if cmd.done != nil {
		cmd.done(resp)
	}
}

// HandleResponse correlates a response frame with the in-flight command
// and completes it. Unmatched responses are dropped and reported false.
func (d *Dispatcher) HandleResponse(f *wire.Frame) bool {
	id := handles.ID(f.Handle)
	cmd := d.inflight[id]
	if cmd == nil || cmd.token != f.Token || cmd.action != f.Action {
		glog.Warningf("stale %s response handle=%d token=%d dropped", f.Action, f.Handle, f.Token)
		return false
	}
	glog.V(2).Infof("RCV %s handle=%d token=%d", f.Action, id, f.Token)
	resp := &Response{}
	reply, err := wire.DecodeReply(f.Payload)
	if err != nil {
		glog.Warningf("%s response handle=%d: %v", f.Action, id, err)
		resp.Code = status.EBADMSG
	} else {
		resp.Reply, resp.Code = reply, reply.Code()
	}
	d.complete(cmd, resp)
	return true
}

// Busy tells if the handle has an in-flight command.
func (d *Dispatcher) Busy(id handles.ID) bool {
	return d.inflight[id] != nil
}

// Pending returns the number of in-flight commands.
func (d *Dispatcher) Pending() int {
	return len(d.inflight)
}

// Close rejects further commands and fails the in-flight ones with
// TransportUnavailable, in handle order.
func (d *Dispatcher) Close() {
	d.closed = true
	ids := make([]int, 0, len(d.inflight))
	for id := range d.inflight {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		if cmd := d.inflight[handles.ID(id)]; cmd != nil {
			d.complete(cmd, &Response{Code: status.TransportUnavailable})
		}
	}
}
