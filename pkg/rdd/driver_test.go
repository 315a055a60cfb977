package rdd_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/status"
	"github.com/robotalks/rdd.go/pkg/rdd/units"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
	"github.com/robotalks/rdd.go/pkg/sim"
)

const waitTimeout = 2 * time.Second

type harness struct {
	t      *testing.T
	loop   *fx.Loop
	board  *sim.Board
	drv    *rdd.Driver
	cancel func()
}

func newHarnessWith(t *testing.T, board *sim.Board, opts rdd.Options) *harness {
	h := &harness{t: t, loop: fx.NewLoop(), board: board}
	h.drv = rdd.New(h.loop, board, units.Default(), opts)
	h.loop.Add(h.drv)
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		h.loop.Run(ctx)
		close(doneCh)
	}()
	h.cancel = func() {
		cancel()
		<-doneCh
	}
	return h
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, sim.NewBoard(units.Default()), rdd.Options{CommandTimeout: 200 * time.Millisecond})
}

func (h *harness) do(fn func()) {
	require.NoError(h.t, h.loop.Call(context.Background(), fn))
}

// await issues an operation on the loop and waits for its Result.
func (h *harness) await(op func(done rdd.Listener) error) (*rdd.Result, error) {
	resCh := make(chan *rdd.Result, 1)
	var err error
	h.do(func() {
		err = op(func(res *rdd.Result) { resCh <- res })
	})
	return h.wait(resCh), err
}

func (h *harness) wait(resCh <-chan *rdd.Result) *rdd.Result {
	select {
	case res := <-resCh:
		return res
	case <-time.After(waitTimeout):
		h.t.Fatal("result timeout")
	}
	return nil
}

func (h *harness) mustOpen(unit string, flags wire.Flags) handles.ID {
	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.Open(unit, flags, 0, done)
	})
	require.NoError(h.t, err)
	require.True(h.t, res.OK(), "open %s: %v", unit, res)
	require.Equal(h.t, rdd.EventOpen, res.EventType)
	require.Equal(h.t, unit, res.UnitName)
	require.NotZero(h.t, res.Handle)
	return res.Handle
}

func (h *harness) mustClose(id handles.ID) {
	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.Close(id, done)
	})
	require.NoError(h.t, err)
	require.Equal(h.t, rdd.EventClose, res.EventType)
	require.Equal(h.t, id, res.Handle)
}

func TestHelloScenario(t *testing.T) {
	h := newHarness(t)
	defer h.cancel()

	id := h.mustOpen("Hello:0", wire.Force)

	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.Read(id, 0, sim.HelloRegGreeting, 0, done)
	})
	require.NoError(t, err)
	require.Equal(t, rdd.EventRead, res.EventType)
	require.Equal(t, sim.DefaultGreeting, string(res.Data))

	res, err = h.await(func(done rdd.Listener) error {
		return h.drv.Write(id, 0, sim.HelloRegGreeting, []byte("blah, blah"), done)
	})
	require.NoError(t, err)
	require.Equal(t, rdd.EventWrite, res.EventType)
	require.True(t, res.OK())

	res, err = h.await(func(done rdd.Listener) error {
		return h.drv.Read(id, 0, sim.HelloRegGreeting, 0, done)
	})
	require.NoError(t, err)
	require.Equal(t, "blah, blah", string(res.Data))

	h.mustClose(id)
	h.do(func() {
		_, err := h.drv.Handle(id)
		require.True(t, errors.Is(err, rdd.ErrInvalidHandle))
	})
	require.Zero(t, h.board.Owner(1))
}

func TestUnknownUnit(t *testing.T) {
	h := newHarness(t)
	defer h.cancel()

	var emitted []*rdd.Result
	h.do(func() {
		h.drv.On(rdd.EventError, func(res *rdd.Result) { emitted = append(emitted, res) })
	})
	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.Open("Nope:0", 0, 0, done)
	})
	require.True(t, errors.Is(err, rdd.ErrUnitNotFound))
	var rerr *rdd.Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, rdd.EventOpen, rerr.Op)
	require.Equal(t, status.UnitNotFound, rerr.Status)

	require.Equal(t, rdd.EventError, res.EventType)
	require.Equal(t, rdd.EventOpen, res.Op)
	require.Equal(t, status.UnitNotFound, res.Status)
	require.Zero(t, res.Handle)
	h.do(func() {
		require.Len(t, emitted, 1)
	})

	// no handle was consumed
	require.Equal(t, handles.ID(1), h.mustOpen("Hello:0", 0))
}

func TestDistinctHandlesAndReuse(t *testing.T) {
	h := newHarnessWith(t, sim.NewBoard(units.Default()), rdd.Options{MaxHandles: 2})
	defer h.cancel()

	a := h.mustOpen("Hello:0", 0)
	b := h.mustOpen("Servo:0", 0)
	require.NotEqual(t, a, b)

	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.Open("Meta:0", 0, 0, done)
	})
	require.True(t, errors.Is(err, rdd.ErrResourceExhausted))
	require.Equal(t, status.ResourceExhausted, res.Status)

	h.mustClose(a)
	c := h.mustOpen("Meta:0", 0)
	require.Equal(t, a, c)
}

func TestCallbacksNeverInline(t *testing.T) {
	h := newHarness(t)
	defer h.cancel()

	resCh := make(chan *rdd.Result, 1)
	h.do(func() {
		called := false
		err := h.drv.Read(42, 0, 0, 0, func(res *rdd.Result) {
			called = true
			resCh <- res
		})
		require.True(t, errors.Is(err, rdd.ErrInvalidHandle))
		require.False(t, called)
	})
	res := h.wait(resCh)
	require.Equal(t, rdd.EventError, res.EventType)
	require.Equal(t, rdd.EventRead, res.Op)
	require.Equal(t, status.InvalidHandle, res.Status)
	require.True(t, errors.Is(res.Err, rdd.ErrInvalidHandle))
}

func TestOneCommandPerHandle(t *testing.T) {
	board := sim.NewBoard(units.Default())
	h := newHarnessWith(t, board, rdd.Options{})
	defer h.cancel()
	a := h.mustOpen("Hello:0", 0)
	b := h.mustOpen("Servo:0", 0)
	board.SetDelay(20 * time.Millisecond)

	resCh := make(chan *rdd.Result, 4)
	done := func(res *rdd.Result) { resCh <- res }
	h.do(func() {
		require.NoError(t, h.drv.Read(a, 0, sim.HelloRegGreeting, 0, done))
		require.True(t, h.drv.Busy(a))
		err := h.drv.Write(a, 0, sim.HelloRegGreeting, []byte("x"), done)
		require.True(t, errors.Is(err, rdd.ErrHandleBusy))
		require.NoError(t, h.drv.Read(b, 0, wire.RegDriverVersion, 0, done))
	})
	results := []*rdd.Result{h.wait(resCh), h.wait(resCh), h.wait(resCh)}
	var busy, reads int
	for _, res := range results {
		switch res.EventType {
		case rdd.EventError:
			require.Equal(t, status.HandleBusy, res.Status)
			busy++
		case rdd.EventRead:
			reads++
		}
	}
	require.Equal(t, 1, busy)
	require.Equal(t, 2, reads)
}

func TestDeferredClose(t *testing.T) {
	board := sim.NewBoard(units.Default())
	h := newHarnessWith(t, board, rdd.Options{})
	defer h.cancel()
	id := h.mustOpen("Hello:0", 0)
	board.SetDelay(20 * time.Millisecond)

	resCh := make(chan *rdd.Result, 4)
	done := func(res *rdd.Result) { resCh <- res }
	h.do(func() {
		require.NoError(t, h.drv.Read(id, 0, sim.HelloRegGreeting, 0, done))
		require.NoError(t, h.drv.Close(id, done))
		err := h.drv.Read(id, 0, sim.HelloRegGreeting, 0, nil)
		require.True(t, errors.Is(err, rdd.ErrInvalidHandle))
		err = h.drv.Close(id, nil)
		require.True(t, errors.Is(err, rdd.ErrHandleBusy))
	})
	first, second := h.wait(resCh), h.wait(resCh)
	require.Equal(t, rdd.EventRead, first.EventType)
	require.Equal(t, sim.DefaultGreeting, string(first.Data))
	require.Equal(t, rdd.EventClose, second.EventType)
	require.Equal(t, id, second.Handle)
	require.Zero(t, board.Owner(1))
}

func TestContinuousStopsAfterClose(t *testing.T) {
	board := sim.NewBoard(units.Default())
	h := newHarnessWith(t, board, rdd.Options{})
	defer h.cancel()
	id := h.mustOpen("Hello:0", wire.Force)

	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.SetIntervals(id, 0, 10, done)
	})
	require.NoError(t, err)
	require.True(t, res.OK())

	streamCh := make(chan *rdd.Result, 64)
	var emitted int
	h.do(func() {
		h.drv.On(rdd.EventReadContinuous, func(*rdd.Result) { emitted++ })
	})
	res, err = h.await(func(done rdd.Listener) error {
		return h.drv.EnableContinuous(id, sim.HelloRegGreeting, 0, func(res *rdd.Result) {
			streamCh <- res
		}, done)
	})
	require.NoError(t, err)
	require.Equal(t, rdd.EventRead, res.EventType)
	require.True(t, board.Streaming(byte(id)))

	for i := 0; i < 3; i++ {
		res := h.wait(streamCh)
		require.Equal(t, rdd.EventReadContinuous, res.EventType)
		require.Equal(t, id, res.Handle)
		require.Equal(t, sim.DefaultGreeting, string(res.Data))
	}

	h.mustClose(id)
	var seen int
	h.do(func() {
		seen = emitted
		for len(streamCh) > 0 {
			<-streamCh
		}
	})
	require.GreaterOrEqual(t, seen, 3)
	time.Sleep(50 * time.Millisecond)
	h.do(func() {
		require.Equal(t, seen, emitted)
	})
	require.Empty(t, streamCh)
	require.False(t, board.Streaming(byte(id)))
}

func TestDisableContinuous(t *testing.T) {
	board := sim.NewBoard(units.Default())
	h := newHarnessWith(t, board, rdd.Options{})
	defer h.cancel()
	id := h.mustOpen("Hello:0", 0)
	_, err := h.await(func(done rdd.Listener) error {
		return h.drv.SetIntervals(id, 0, 5, done)
	})
	require.NoError(t, err)

	streamCh := make(chan *rdd.Result, 64)
	_, err = h.await(func(done rdd.Listener) error {
		return h.drv.EnableContinuous(id, sim.HelloRegGreeting, 0, func(res *rdd.Result) { streamCh <- res }, done)
	})
	require.NoError(t, err)
	h.wait(streamCh)

	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.DisableContinuous(id, done)
	})
	require.NoError(t, err)
	require.Equal(t, rdd.EventRead, res.EventType)
	require.False(t, board.Streaming(byte(id)))
	h.do(func() {
		for len(streamCh) > 0 {
			<-streamCh
		}
	})
	time.Sleep(30 * time.Millisecond)
	require.Empty(t, streamCh)
	h.mustClose(id)
}

func TestDeviceError(t *testing.T) {
	h := newHarness(t)
	defer h.cancel()
	id := h.mustOpen("Hello:0", 0)
	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.Read(id, 0, 9, 0, done)
	})
	require.NoError(t, err)
	require.Equal(t, rdd.EventError, res.EventType)
	require.Equal(t, rdd.EventRead, res.Op)
	require.Equal(t, status.EINVAL, res.Status)
	require.Equal(t, "Hello:0", res.UnitName)
	require.Contains(t, res.Err.Error(), "EINVAL")
}

func TestTimeout(t *testing.T) {
	board := sim.NewBoard(units.Default())
	h := newHarnessWith(t, board, rdd.Options{CommandTimeout: 30 * time.Millisecond})
	defer h.cancel()
	id := h.mustOpen("Hello:0", 0)
	board.Mute(true)
	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.Read(id, 0, sim.HelloRegGreeting, 0, done)
	})
	require.NoError(t, err)
	require.Equal(t, rdd.EventError, res.EventType)
	require.Equal(t, status.Timeout, res.Status)
	require.True(t, errors.Is(res.Err, rdd.ErrTimeout))
	h.do(func() {
		require.False(t, h.drv.Busy(id))
	})
}

func TestOpenBusyAndForcePreemption(t *testing.T) {
	h := newHarness(t)
	defer h.cancel()
	first := h.mustOpen("Hello:0", 0)

	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.Open("Hello:0", 0, 0, done)
	})
	require.NoError(t, err)
	require.Equal(t, rdd.EventError, res.EventType)
	require.Equal(t, status.HandleBusy, res.Status)

	preemptedCh := make(chan *rdd.Result, 1)
	closes := 0
	h.do(func() {
		h.drv.On(rdd.EventPreempted, func(res *rdd.Result) { preemptedCh <- res })
		h.drv.On(rdd.EventClose, func(*rdd.Result) { closes++ })
	})
	second := h.mustOpen("Hello:0", wire.Force)
	require.NotEqual(t, first, second)
	retired := h.wait(preemptedCh)
	require.Equal(t, first, retired.Handle)
	require.Equal(t, "Hello:0", retired.UnitName)
	require.Equal(t, rdd.EventClose, retired.Op)
	require.True(t, retired.OK())

	h.do(func() {
		err := h.drv.Read(first, 0, 0, 0, nil)
		require.True(t, errors.Is(err, rdd.ErrInvalidHandle))
		require.Zero(t, closes)
	})
	require.Equal(t, byte(second), h.board.Owner(1))
}

func TestTransportLoss(t *testing.T) {
	board := sim.NewBoard(units.Default())
	h := newHarnessWith(t, board, rdd.Options{CommandTimeout: time.Minute})
	defer h.cancel()
	id := h.mustOpen("Hello:0", 0)
	board.Mute(true)

	resCh := make(chan *rdd.Result, 1)
	h.do(func() {
		require.NoError(t, h.drv.Read(id, 0, 0, 0, func(res *rdd.Result) { resCh <- res }))
	})
	board.Close()
	res := h.wait(resCh)
	require.Equal(t, status.TransportUnavailable, res.Status)

	_, err := h.await(func(done rdd.Listener) error {
		return h.drv.Read(id, 0, 0, 0, done)
	})
	require.True(t, errors.Is(err, rdd.ErrTransportUnavailable))
}

func TestTransportNotReady(t *testing.T) {
	board := sim.NewNotReadyBoard(units.Default())
	h := newHarnessWith(t, board, rdd.Options{})
	defer h.cancel()
	res, err := h.await(func(done rdd.Listener) error {
		return h.drv.Open("Hello:0", 0, 0, done)
	})
	require.True(t, errors.Is(err, rdd.ErrTransportUnavailable))
	require.Equal(t, status.TransportUnavailable, res.Status)

	board.SetReady()
	h.mustOpen("Hello:0", 0)
}
