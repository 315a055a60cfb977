// Package sim simulates a remote board hosting device drivers, for
// running the host without hardware.
package sim

import (
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rdd.go/pkg/rdd/status"
	"github.com/robotalks/rdd.go/pkg/rdd/units"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
)

// LibraryVersion is reported in RegLibraryVersion.
const LibraryVersion = "rdd-sim 1.0.0"

// Default repeat intervals of continuous reads.
const (
	DefaultMicros uint32 = 0
	DefaultMillis uint32 = 1000
)

type slot struct {
	unit   units.Unit
	device Device
	owner  byte

	micros, millis uint32
	stopRun        chan struct{}
}

// Board is the simulated remote board. Its host end is a
// transport.Transport: frames written by the host are executed
// synchronously, responses and reports are queued for ReadPacket.
type Board struct {
	// Drop swallows the response of a request when it returns true.
	Drop func(*wire.Frame) bool

	lock    sync.Mutex
	slots   map[byte]*slot
	handles map[byte]*slot
	muted   bool
	delay   time.Duration

	outCh     chan []byte
	readyCh   chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewBoard creates a board hosting the units of table. The board is
// ready immediately.
func NewBoard(table *units.Table) *Board {
	b := &Board{
		slots:   make(map[byte]*slot),
		handles: make(map[byte]*slot),
		outCh:   make(chan []byte, 256),
		readyCh: make(chan struct{}),
		closeCh: make(chan struct{}),
	}
	var names []string
	var meta *Meta
	for _, u := range table.Units() {
		dev := NewDevice(u.Driver)
		if m, ok := dev.(*Meta); ok && meta == nil {
			meta = m
		}
		names = append(names, u.Name)
		b.slots[u.Address] = &slot{unit: u, device: dev, micros: DefaultMicros, millis: DefaultMillis}
	}
	if meta != nil {
		meta.names = names
	}
	close(b.readyCh)
	return b
}

// NewNotReadyBoard creates a board which becomes ready on SetReady.
func NewNotReadyBoard(table *units.Table) *Board {
	b := NewBoard(table)
	b.readyCh = make(chan struct{})
	return b
}

// SetReady signals the board is ready.
func (b *Board) SetReady() {
	select {
	case <-b.readyCh:
	default:
		close(b.readyCh)
	}
}

// Device returns the device at a unit address.
func (b *Board) Device(addr uint8) Device {
	b.lock.Lock()
	defer b.lock.Unlock()
	if s := b.slots[addr]; s != nil {
		return s.device
	}
	return nil
}

// Owner returns the handle owning the unit at addr, 0 if closed.
func (b *Board) Owner(addr uint8) byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	if s := b.slots[addr]; s != nil {
		return s.owner
	}
	return 0
}

// Streaming tells if a continuous read is running on the handle.
func (b *Board) Streaming(handle byte) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	s := b.handles[handle]
	return s != nil && s.stopRun != nil
}

// SetDelay postpones every following response by d.
func (b *Board) SetDelay(d time.Duration) {
	b.lock.Lock()
	b.delay = d
	b.lock.Unlock()
}

// Mute stops answering requests when true.
func (b *Board) Mute(muted bool) {
	b.lock.Lock()
	b.muted = muted
	b.lock.Unlock()
}

// Ready implements transport.Transport.
func (b *Board) Ready() <-chan struct{} {
	return b.readyCh
}

// ReadPacket implements transport.PacketReader.
func (b *Board) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-b.outCh:
		return pkt, nil
	case <-b.closeCh:
		return nil, io.EOF
	}
}

// WritePacket implements transport.PacketWriter.
func (b *Board) WritePacket(pkt []byte) error {
	select {
	case <-b.closeCh:
		return io.ErrClosedPipe
	default:
	}
	f, err := wire.Decode(pkt)
	if err != nil {
		glog.Warningf("sim: %v", err)
		return nil
	}
	if f.Kind != wire.KindRequest {
		glog.Warningf("sim: unexpected %s frame kind %#x", f.Action, byte(f.Kind))
		return nil
	}
	b.lock.Lock()
	if b.muted || (b.Drop != nil && b.Drop(f)) {
		b.lock.Unlock()
		return nil
	}
	reply, delay := b.execute(f), b.delay
	b.lock.Unlock()
	b.respond(f, reply, delay)
	return nil
}

// Close implements io.Closer.
func (b *Board) Close() error {
	b.closeOnce.Do(func() {
		b.lock.Lock()
		for _, s := range b.handles {
			b.stopStream(s)
		}
		b.lock.Unlock()
		close(b.closeCh)
	})
	return nil
}

func (b *Board) respond(req *wire.Frame, reply *wire.Reply, delay time.Duration) {
	resp := &wire.Frame{
		Kind:    wire.KindResponse,
		Action:  req.Action,
		Token:   req.Token,
		Handle:  req.Handle,
		Payload: reply.Encode(),
	}
	if delay > 0 {
		time.AfterFunc(delay, func() { b.push(resp) })
	} else {
		b.push(resp)
	}
}

func (b *Board) push(f *wire.Frame) {
	select {
	case b.outCh <- f.Bytes():
	case <-b.closeCh:
	}
}

func ok(count int, reg int16, data []byte) *wire.Reply {
	return &wire.Reply{Status: int16(count), Register: reg, Data: data}
}

func (b *Board) execute(f *wire.Frame) *wire.Reply {
	switch f.Action {
	case wire.ActionOpen:
		req, err := wire.DecodeOpenRequest(f.Payload)
		if err != nil {
			return wire.NewErrorReply(status.EBADMSG)
		}
		return b.open(f.Handle, req)
	}
	s := b.handles[f.Handle]
	if s == nil || s.owner != f.Handle {
		return wire.NewErrorReply(status.EBADF)
	}
	switch f.Action {
	case wire.ActionRead:
		req, err := wire.DecodeReadRequest(f.Payload)
		if err != nil {
			return wire.NewErrorReply(status.EBADMSG)
		}
		return b.read(f, s, req)
	case wire.ActionWrite:
		req, err := wire.DecodeWriteRequest(f.Payload)
		if err != nil {
			return wire.NewErrorReply(status.EBADMSG)
		}
		return b.write(s, req)
	default:
		b.stopStream(s)
		delete(b.handles, f.Handle)
		s.owner = 0
		return ok(0, 0, nil)
	}
}

func (b *Board) open(handle byte, req *wire.OpenRequest) *wire.Reply {
	if handle == 0 {
		return wire.NewErrorReply(status.EBADF)
	}
	s := b.slots[req.Address]
	if s == nil {
		return wire.NewErrorReply(status.ENXIO)
	}
	if other := b.handles[handle]; other != nil && other != s {
		return wire.NewErrorReply(status.EMFILE)
	}
	if s.owner != 0 && s.owner != handle {
		if req.Flags&wire.Force == 0 {
			return wire.NewErrorReply(status.EBUSY)
		}
		glog.V(2).Infof("sim: %s reclaimed from handle %d", s.unit.Name, s.owner)
		b.stopStream(s)
		delete(b.handles, s.owner)
	}
	s.owner = handle
	s.micros, s.millis = DefaultMicros, DefaultMillis
	b.handles[handle] = s
	s.device.Reset()
	return ok(0, 0, nil)
}

func (b *Board) readRegister(s *slot, reg int16, count uint16) ([]byte, status.Code) {
	switch reg {
	case wire.RegDriverVersion:
		return truncate([]byte(s.device.Version()), count), status.ESUCCESS
	case wire.RegLibraryVersion:
		return truncate([]byte(LibraryVersion), count), status.ESUCCESS
	case wire.RegIntervals:
		return wire.EncodeIntervals(s.micros, s.millis), status.ESUCCESS
	}
	return s.device.Read(reg, count)
}

func (b *Board) read(f *wire.Frame, s *slot, req *wire.ReadRequest) *wire.Reply {
	if req.Flags&wire.Halt != 0 {
		b.stopStream(s)
		return ok(0, req.Register, nil)
	}
	data, code := b.readRegister(s, req.Register, req.Count)
	if !code.IsSuccess() {
		return wire.NewErrorReply(code)
	}
	if req.Flags&(wire.MilliRun|wire.MicroRun) != 0 {
		interval := time.Duration(s.millis) * time.Millisecond
		if req.Flags&wire.MicroRun != 0 && s.micros > 0 {
			interval = time.Duration(s.micros) * time.Microsecond
		}
		if interval <= 0 {
			return wire.NewErrorReply(status.EINVAL)
		}
		b.startStream(s, f.Handle, f.Token, req.Register, req.Count, interval)
	}
	return ok(len(data), req.Register, data)
}

func (b *Board) write(s *slot, req *wire.WriteRequest) *wire.Reply {
	if req.Register == wire.RegIntervals {
		micros, millis, err := wire.DecodeIntervals(req.Data)
		if err != nil {
			return wire.NewErrorReply(status.EMSGSIZE)
		}
		if micros != 0 {
			s.micros = micros
		}
		if millis != 0 {
			s.millis = millis
		}
		return ok(len(req.Data), req.Register, nil)
	}
	if req.Register < 0 && req.Register != wire.RegConfigure {
		return wire.NewErrorReply(status.EPERM)
	}
	if code := s.device.Write(req.Register, req.Data); !code.IsSuccess() {
		return wire.NewErrorReply(code)
	}
	return ok(len(req.Data), req.Register, nil)
}

func (b *Board) startStream(s *slot, handle, token byte, reg int16, count uint16, interval time.Duration) {
	b.stopStream(s)
	stopCh := make(chan struct{})
	s.stopRun = stopCh
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-b.closeCh:
				return
			case <-ticker.C:
			}
			b.lock.Lock()
			if s.stopRun != stopCh {
				b.lock.Unlock()
				return
			}
			var reply *wire.Reply
			if b.muted {
				b.lock.Unlock()
				continue
			}
			data, code := b.readRegister(s, reg, count)
			if code.IsSuccess() {
				reply = ok(len(data), reg, data)
			} else {
				reply = wire.NewErrorReply(code)
			}
			b.lock.Unlock()
			b.push(&wire.Frame{
				Kind:    wire.KindReport,
				Action:  wire.ActionRead,
				Token:   token,
				Handle:  handle,
				Payload: reply.Encode(),
			})
		}
	}()
}

func (b *Board) stopStream(s *slot) {
	if s.stopRun != nil {
		close(s.stopRun)
		s.stopRun = nil
	}
}
