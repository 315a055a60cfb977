package link

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rdd.go/pkg/transport"
)

// StateNotifier is called when the link state changed.
type StateNotifier interface {
	StateChanged(context.Context, SyncState)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, SyncState)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, state SyncState) {
	f(ctx, state)
}

// Link implements transport.Transport over a byte stream.
// Run must be running for the link to sync and receive.
type Link struct {
	ReadWriter  io.ReadWriter
	Notifier    StateNotifier
	Timeout     time.Duration
	ReadTimeout bool // set to true if ReadWriter already supports timeout with Read

	seq   PacketSeq
	state SyncState
	lock  sync.RWMutex

	syncTimer <-chan time.Time
	parser    Parser
	stats     ParserStats

	packetCh  chan []byte
	readyCh   chan struct{}
	readyOnce sync.Once
	closeCh   chan struct{}
	closeOnce sync.Once
}

// DefaultTimeout is the default sync timeout.
const DefaultTimeout = 100 * time.Millisecond

// New creates a Link.
func New(rw io.ReadWriter) *Link {
	return &Link{
		ReadWriter: rw,
		Timeout:    DefaultTimeout,
		seq:        NewPacketSeq(),
		packetCh:   make(chan []byte, 16),
		readyCh:    make(chan struct{}),
		closeCh:    make(chan struct{}),
	}
}

// State gets the state.
func (l *Link) State() SyncState {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.state
}

// Stats returns the counters of the receiving side.
func (l *Link) Stats() ParserStats {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.stats
}

// Ready implements transport.Transport. The channel is closed when
// the link synchronizes for the first time.
func (l *Link) Ready() <-chan struct{} {
	return l.readyCh
}

// WritePacket implements transport.PacketWriter.
func (l *Link) WritePacket(data []byte) error {
	if len(data) > MaxPacketSize {
		return fmt.Errorf("packet of %d bytes exceeds %d", len(data), MaxPacketSize)
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	if !l.state.IsReady() {
		return transport.ErrNotReady
	}
	pkt := &Packet{Seq: l.seq, Data: data}
	if _, err := pkt.WriteTo(l.ReadWriter); err != nil {
		return err
	}
	l.seq = l.seq.Next()
	return nil
}

// ReadPacket implements transport.PacketReader.
func (l *Link) ReadPacket() ([]byte, error) {
	select {
	case data := <-l.packetCh:
		return data, nil
	case <-l.closeCh:
		return nil, io.EOF
	}
}

// Close implements io.Closer, closing the underlying stream if possible.
func (l *Link) Close() (err error) {
	l.closeOnce.Do(func() {
		close(l.closeCh)
		if closer, ok := l.ReadWriter.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return
}

// Run processes the stream in the background.
func (l *Link) Run(ctx context.Context) error {
	if l.ReadTimeout {
		err := l.applyParseResult(ctx, l.parser.Reset())
		if err != nil {
			return err
		}
		buf := make([]byte, 1)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.closeCh:
				return io.EOF
			case <-l.syncTimer:
				err = l.applyParseResult(ctx, l.parser.Timeout())
			default:
				var n int
				if n, err = l.ReadWriter.Read(buf); err != nil {
					if os.IsTimeout(err) {
						err = l.applyParseResult(ctx, l.parser.Timeout())
					}
				} else if n == 0 {
					err = l.applyParseResult(ctx, l.parser.Timeout())
				} else {
					err = l.applyParseResult(ctx, l.parser.Parse(buf[0]))
				}
			}
			if err != nil {
				return err
			}
		}
	}

	byteCh, errCh := make(chan byte, 64), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go l.readLoop(subCtx, byteCh, errCh)
	err := l.applyParseResult(ctx, l.parser.Reset())
	if err != nil {
		return err
	}
	for {
		select {
		case b := <-byteCh:
			err = l.applyParseResult(ctx, l.parser.Parse(b))
		case err = <-errCh:
		case <-ctx.Done():
			return ctx.Err()
		case <-l.closeCh:
			return io.EOF
		case <-l.syncTimer:
			err = l.applyParseResult(ctx, l.parser.Timeout())
		}
		if err != nil {
			return err
		}
	}
}

func (l *Link) readLoop(ctx context.Context, byteCh chan byte, errCh chan error) {
	buf := make([]byte, 1)
	for {
		if _, err := l.ReadWriter.Read(buf); err != nil {
			errCh <- err
			return
		}
		select {
		case byteCh <- buf[0]:
		case <-ctx.Done():
			return
		}
	}
}

func (l *Link) applyParseResult(ctx context.Context, pr ParseResult) (err error) {
	var notifier StateNotifier
	l.lock.Lock()
	l.stats = l.parser.Stats()
	if l.state != pr.State {
		l.state = pr.State
		notifier = l.Notifier
	}
	if pr.Sync != 0 {
		_, err = l.ReadWriter.Write([]byte{pr.Sync, byte(l.seq)})
	}
	l.lock.Unlock()
	if err != nil {
		return
	}

	if l.ReadTimeout {
		if pr.Sync == syncREQ {
			l.syncTimer = time.After(l.Timeout)
		} else {
			l.syncTimer = nil
		}
	} else {
		switch pr.WhatAboutTimer() {
		case TimerRestart:
			l.syncTimer = time.After(l.Timeout)
		case TimerStop:
			l.syncTimer = nil
		}
	}

	if pr.State.IsReady() {
		l.readyOnce.Do(func() {
			glog.V(2).Info("link synchronized")
			close(l.readyCh)
		})
	}
	if notifier != nil {
		notifier.StateChanged(ctx, pr.State)
	}
	if pr.Packet != nil {
		select {
		case l.packetCh <- pr.Packet.Data:
		case <-l.closeCh:
			return io.EOF
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return
}
