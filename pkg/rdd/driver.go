// Package rdd is the host side of the remote device driver protocol.
//
// A Driver opens units hosted on the remote board, issues read, write and
// close commands on the returned handles and streams continuous reads.
// All operations complete asynchronously: the outcome is a Result passed
// to the per-call callback and to the listeners registered with On.
//
// A Driver is confined to the loop it is created with. Its methods must
// be called on the loop goroutine (from a Result callback, a posted task,
// or via Loop.Call), and every callback runs on the loop as well.
package rdd

import (
	"context"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/rdd/dispatch"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/status"
	"github.com/robotalks/rdd.go/pkg/rdd/stream"
	"github.com/robotalks/rdd.go/pkg/rdd/units"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
	"github.com/robotalks/rdd.go/pkg/transport"
)

// Options tunes a Driver. Zero values select the defaults.
type Options struct {
	MaxHandles     int
	CommandTimeout time.Duration
}

// Driver is the remote device driver facade.
type Driver struct {
	transport transport.Transport
	units     *units.Table
	sched     fx.Scheduler

	handles    *handles.Manager
	dispatcher *dispatch.Dispatcher
	mux        *stream.Mux
	emitter    fx.Emitter[EventType, *Result]

	// close requests waiting for the in-flight command of the handle
	deferredClose map[handles.ID]Listener
	// handles preempted by a forced open, released once idle
	retiring map[handles.ID]bool
}

// New creates a Driver using transport as the only channel to the board.
func New(sched fx.Scheduler, tr transport.Transport, table *units.Table, opts Options) *Driver {
	d := &Driver{
		transport:     tr,
		units:         table,
		sched:         sched,
		handles:       handles.NewManager(opts.MaxHandles),
		deferredClose: make(map[handles.ID]Listener),
		retiring:      make(map[handles.ID]bool),
	}
	d.dispatcher = dispatch.New(tr, d.handles, sched)
	if opts.CommandTimeout > 0 {
		d.dispatcher.Timeout = opts.CommandTimeout
	}
	d.mux = stream.NewMux(d.handles)
	return d
}

// Units returns the unit table.
func (d *Driver) Units() *units.Table {
	return d.units
}

// Transport returns the transport.
func (d *Driver) Transport() transport.Transport {
	return d.transport
}

// Handle looks up a live handle.
func (d *Driver) Handle(id handles.ID) (*handles.Handle, error) {
	return d.handles.Get(id)
}

// Busy tells if the handle has an in-flight command.
func (d *Driver) Busy(id handles.ID) bool {
	return d.dispatcher.Busy(id)
}

// On registers a listener for Results of an event type.
func (d *Driver) On(event EventType, listener Listener) *fx.Subscription {
	return d.emitter.On(event, listener)
}

// AddToLoop implements framework.LoopAdder.
func (d *Driver) AddToLoop(loop *fx.Loop) {
	if r, ok := d.transport.(fx.Runnable); ok {
		loop.AddRunnable(fx.NamedRun("transport", r))
	}
	loop.AddRunnable(fx.NamedRun("rdd", d))
}

// Run implements framework.Runnable. It reads frames from the transport
// and hands them to the loop until the transport ends.
func (d *Driver) Run(ctx context.Context) error {
	go func() {
		select {
		case <-d.transport.Ready():
			glog.Info("board ready")
		case <-ctx.Done():
		}
	}()
	err := fx.RunWithContextCloser(ctx, d.transport, func() error {
		for {
			pkt, err := d.transport.ReadPacket()
			if err != nil {
				return err
			}
			f, err := wire.Decode(pkt)
			if err != nil {
				glog.Warningf("frame dropped: %v", err)
				continue
			}
			d.sched.Post(func() { d.route(f) })
		}
	})
	d.sched.Post(d.dispatcher.Close)
	return err
}

// Shutdown fails in-flight commands and closes the transport.
func (d *Driver) Shutdown() error {
	d.dispatcher.Close()
	return d.transport.Close()
}

func (d *Driver) route(f *wire.Frame) {
	switch f.Kind {
	case wire.KindResponse:
		d.dispatcher.HandleResponse(f)
	case wire.KindReport:
		reply, err := wire.DecodeReply(f.Payload)
		if err != nil {
			glog.Warningf("report handle=%d dropped: %v", f.Handle, err)
			return
		}
		if !d.mux.Deliver(&stream.Report{Handle: handles.ID(f.Handle), Reply: reply}) {
			glog.Warningf("report handle=%d without listener dropped", f.Handle)
		}
	default:
		glog.Warningf("unexpected %s request from board dropped", f.Action)
	}
}

// emit passes res to the callback first, then to the listeners.
func (d *Driver) emit(res *Result, done Listener) {
	if done != nil {
		done(res)
	}
	d.emitter.Emit(res.EventType, res)
}

// fail reports a local error: it's returned to the caller and delivered
// later on the loop as an error Result.
func (d *Driver) fail(e *Error, done Listener) error {
	res := e.Result()
	d.sched.Post(func() { d.emit(res, done) })
	return e
}

func (d *Driver) unitName(id handles.ID) string {
	if h, err := d.handles.Get(id); err == nil {
		return h.Unit.Name
	}
	return ""
}

func (d *Driver) result(event EventType, h *handles.Handle, resp *dispatch.Response) *Result {
	if !resp.Code.IsSuccess() {
		return statusError(event, h.ID, h.Unit.Name, resp.Code).Result()
	}
	res := &Result{
		Status:    resp.Code,
		Handle:    h.ID,
		UnitName:  h.Unit.Name,
		EventType: event,
		Op:        event,
	}
	if resp.Reply != nil {
		res.Register, res.Data = resp.Reply.Register, resp.Reply.Data
	}
	return res
}

// send issues a command and runs the follow-ups queued on the handle
// (a deferred close or a retirement) once it completes.
func (d *Driver) send(h *handles.Handle, action wire.Action, payload []byte, done dispatch.Completion) error {
	_, err := d.dispatcher.Send(h.ID, action, payload, func(resp *dispatch.Response) {
		done(resp)
		d.idle(h)
	})
	return err
}

func (d *Driver) idle(h *handles.Handle) {
	if d.retiring[h.ID] {
		d.retire(h)
		return
	}
	if done, ok := d.deferredClose[h.ID]; ok {
		delete(d.deferredClose, h.ID)
		if err := d.sendClose(h, done); err != nil {
			glog.Warningf("deferred close %s#%d: %v", h.Unit.Name, h.ID, err)
		}
	}
}

// Open opens a unit by name. On success the Result carries the handle.
func (d *Driver) Open(unitName string, flags wire.Flags, param uint16, done Listener) error {
	unit, err := d.units.Resolve(unitName)
	if err != nil {
		return d.fail(newError(EventOpen, 0, unitName, err), done)
	}
	h, err := d.handles.Allocate(unit)
	if err != nil {
		return d.fail(newError(EventOpen, 0, unitName, err), done)
	}
	req := &wire.OpenRequest{Address: unit.Address, Flags: flags, Param: param}
	err = d.send(h, wire.ActionOpen, req.Encode(), func(resp *dispatch.Response) {
		if !resp.Code.IsSuccess() {
			d.handles.Abandon(h.ID)
			d.emit(statusError(EventOpen, 0, unit.Name, resp.Code).Result(), done)
			return
		}
		d.handles.Commit(h.ID)
		if flags&wire.Force != 0 {
			d.preempt(h)
		}
		d.emit(d.result(EventOpen, h, resp), done)
	})
	if err != nil {
		d.handles.Abandon(h.ID)
		return d.fail(newError(EventOpen, 0, unitName, err), done)
	}
	glog.V(2).Infof("opening %s as handle %d", unit.Name, h.ID)
	return nil
}

// preempt retires the other local handles of the unit just reclaimed
// by a forced open.
func (d *Driver) preempt(opened *handles.Handle) {
	for _, h := range d.handles.ByUnit(opened.Unit.Name) {
		if h.ID == opened.ID {
			continue
		}
		glog.Infof("%s#%d preempted by handle %d", h.Unit.Name, h.ID, opened.ID)
		d.mux.Unsubscribe(h.ID)
		d.handles.BeginClose(h.ID)
		d.retiring[h.ID] = true
		if !d.dispatcher.Busy(h.ID) {
			d.retire(h)
		}
	}
}

func (d *Driver) retire(h *handles.Handle) {
	delete(d.retiring, h.ID)
	done := d.deferredClose[h.ID]
	delete(d.deferredClose, h.ID)
	d.handles.Release(h.ID)
	d.emit(&Result{
		Handle:    h.ID,
		UnitName:  h.Unit.Name,
		EventType: EventPreempted,
		Op:        EventClose,
	}, done)
}

func (d *Driver) openHandle(op EventType, id handles.ID, done Listener) (*handles.Handle, error) {
	h, err := d.handles.GetOpen(id)
	if err != nil {
		return nil, d.fail(newError(op, id, d.unitName(id), err), done)
	}
	return h, nil
}

// Read reads count bytes from a register.
func (d *Driver) Read(id handles.ID, flags wire.Flags, reg int16, count uint16, done Listener) error {
	h, err := d.openHandle(EventRead, id, done)
	if err != nil {
		return err
	}
	req := &wire.ReadRequest{Flags: flags, Register: reg, Count: count}
	err = d.send(h, wire.ActionRead, req.Encode(), func(resp *dispatch.Response) {
		d.emit(d.result(EventRead, h, resp), done)
	})
	if err != nil {
		return d.fail(newError(EventRead, id, h.Unit.Name, err), done)
	}
	return nil
}

// Write writes data to a register.
func (d *Driver) Write(id handles.ID, flags wire.Flags, reg int16, data []byte, done Listener) error {
	h, err := d.openHandle(EventWrite, id, done)
	if err != nil {
		return err
	}
	req := &wire.WriteRequest{Flags: flags, Register: reg, Data: data}
	err = d.send(h, wire.ActionWrite, req.Encode(), func(resp *dispatch.Response) {
		d.emit(d.result(EventWrite, h, resp), done)
	})
	if err != nil {
		return d.fail(newError(EventWrite, id, h.Unit.Name, err), done)
	}
	return nil
}

// Close closes a handle. The handle stops accepting commands and loses its
// continuous listener immediately. The close command goes out once the
// in-flight command of the handle (if any) completes, and the handle is
// released when the board confirms. A failed close leaves the handle
// Closing so Close can be retried.
func (d *Driver) Close(id handles.ID, done Listener) error {
	wasClosing := false
	if h, err := d.handles.Get(id); err == nil {
		wasClosing = h.State() == handles.Closing
	}
	h, err := d.handles.BeginClose(id)
	if err != nil {
		return d.fail(newError(EventClose, id, d.unitName(id), err), done)
	}
	d.mux.Unsubscribe(id)
	_, deferred := d.deferredClose[id]
	busy := d.dispatcher.Busy(id)
	switch {
	case deferred, wasClosing && busy && !d.retiring[id]:
		// a close is already queued or in flight
		return d.fail(newError(EventClose, id, h.Unit.Name, ErrHandleBusy), done)
	case d.retiring[id] || busy:
		d.deferredClose[id] = done
		return nil
	}
	return d.sendClose(h, done)
}

func (d *Driver) sendClose(h *handles.Handle, done Listener) error {
	req := &wire.CloseRequest{}
	err := d.send(h, wire.ActionClose, req.Encode(), func(resp *dispatch.Response) {
		if resp.Code.IsSuccess() {
			d.handles.Release(h.ID)
		}
		d.emit(d.result(EventClose, h, resp), done)
	})
	if err != nil {
		return d.fail(newError(EventClose, h.ID, h.Unit.Name, err), done)
	}
	return nil
}

// EnableContinuous subscribes listener to the reports of the handle and
// starts a repeated read on the millisecond timer. Enabling again replaces
// the listener.
func (d *Driver) EnableContinuous(id handles.ID, reg int16, count uint16, listener Listener, done Listener) error {
	h, err := d.openHandle(EventRead, id, done)
	if err != nil {
		return err
	}
	if d.dispatcher.Busy(id) {
		return d.fail(newError(EventRead, id, h.Unit.Name, ErrHandleBusy), done)
	}
	err = d.mux.Subscribe(id, func(r *stream.Report) {
		d.report(h, r, listener)
	})
	if err != nil {
		return d.fail(newError(EventRead, id, h.Unit.Name, err), done)
	}
	req := &wire.ReadRequest{Flags: wire.MilliRun, Register: reg, Count: count}
	err = d.send(h, wire.ActionRead, req.Encode(), func(resp *dispatch.Response) {
		res := d.result(EventRead, h, resp)
		if !res.OK() {
			d.mux.Unsubscribe(id)
		}
		d.emit(res, done)
	})
	if err != nil {
		d.mux.Unsubscribe(id)
		return d.fail(newError(EventRead, id, h.Unit.Name, err), done)
	}
	return nil
}

func (d *Driver) report(h *handles.Handle, r *stream.Report, listener Listener) {
	var res *Result
	if code := r.Reply.Code(); !code.IsSuccess() {
		res = statusError(EventReadContinuous, h.ID, h.Unit.Name, code).Result()
	} else {
		res = &Result{
			Status:    status.ESUCCESS,
			Handle:    h.ID,
			UnitName:  h.Unit.Name,
			EventType: EventReadContinuous,
			Op:        EventReadContinuous,
			Register:  r.Reply.Register,
			Data:      r.Reply.Data,
		}
	}
	d.emit(res, listener)
}

// DisableContinuous drops the listener and halts the repeated read.
func (d *Driver) DisableContinuous(id handles.ID, done Listener) error {
	h, err := d.openHandle(EventRead, id, done)
	if err != nil {
		return err
	}
	d.mux.Unsubscribe(id)
	req := &wire.ReadRequest{Flags: wire.Halt}
	err = d.send(h, wire.ActionRead, req.Encode(), func(resp *dispatch.Response) {
		d.emit(d.result(EventRead, h, resp), done)
	})
	if err != nil {
		return d.fail(newError(EventRead, id, h.Unit.Name, err), done)
	}
	return nil
}

// SetIntervals configures the repeat intervals of continuous reads.
// A zero interval leaves the current value unchanged.
func (d *Driver) SetIntervals(id handles.ID, micros, millis uint32, done Listener) error {
	return d.Write(id, 0, wire.RegIntervals, wire.EncodeIntervals(micros, millis), done)
}
