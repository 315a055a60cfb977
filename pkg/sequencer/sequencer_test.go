package sequencer

import (
	"context"
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

type fakeSource struct {
	loop    *fx.Loop
	emitter fx.Emitter[rdd.EventType, *rdd.Result]
}

func (s *fakeSource) On(event rdd.EventType, fn rdd.Listener) *fx.Subscription {
	return s.emitter.On(event, fn)
}

// complete emits a Result asynchronously, like a Driver does.
func (s *fakeSource) complete(event rdd.EventType, code status.Code) {
	res := &rdd.Result{Status: code, EventType: event}
	if !code.IsSuccess() {
		res.Op, res.EventType = event, rdd.EventError
	}
	s.loop.Post(func() { s.emitter.Emit(res.EventType, res) })
}

func startLoop(t *testing.T) (*fx.Loop, func()) {
	loop := fx.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(doneCh)
	}()
	return loop, func() {
		cancel()
		<-doneCh
	}
}

type outcome struct {
	event Event
	res   *rdd.Result
}

func watch(s *Sequencer) <-chan outcome {
	ch := make(chan outcome, 4)
	s.On(EventDone, func(res *rdd.Result) { ch <- outcome{EventDone, res} })
	s.On(EventError, func(res *rdd.Result) { ch <- outcome{EventError, res} })
	return ch
}

func waitOutcome(t *testing.T, ch <-chan outcome) outcome {
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("sequence not finished")
	}
	return outcome{}
}

func requireQuiet(t *testing.T, ch <-chan outcome) {
	select {
	case o := <-ch:
		t.Fatalf("unexpected %s", o.event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "Running", Running.String())
	require.Equal(t, "State(9)", State(9).String())
}

func TestSequenceOrder(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()
	src := &fakeSource{loop: loop}
	var seq *Sequencer
	var trace []int
	var outCh <-chan outcome

	step := func(n int, event rdd.EventType) Step {
		return func(*rdd.Result) {
			trace = append(trace, n)
			src.complete(event, status.ESUCCESS)
		}
	}
	require.NoError(t, loop.Call(context.Background(), func() {
		seq = New(loop, src)
		outCh = watch(seq)
		require.NoError(t, seq.Start([]Step{
			step(0, rdd.EventOpen),
			step(1, rdd.EventRead),
			step(2, rdd.EventWrite),
			step(3, rdd.EventClose),
		}))
	}))
	o := waitOutcome(t, outCh)
	require.Equal(t, EventDone, o.event)
	require.Equal(t, rdd.EventClose, o.res.EventType)
	requireQuiet(t, outCh)
	require.NoError(t, loop.Call(context.Background(), func() {
		require.Equal(t, []int{0, 1, 2, 3}, trace)
		require.Equal(t, Done, seq.State())
		require.Equal(t, 0, src.emitter.Listeners(rdd.EventOpen))
		require.Equal(t, 0, src.emitter.Listeners(rdd.EventError))
	}))
}

func TestSequenceFailsAtStep(t *testing.T) {
	for failAt := 0; failAt < 3; failAt++ {
		loop, stop := startLoop(t)
		src := &fakeSource{loop: loop}
		var seq *Sequencer
		var ran int
		var outCh <-chan outcome
		steps := make([]Step, 3)
		for i := range steps {
			n := i
			steps[i] = func(*rdd.Result) {
				ran++
				code := status.ESUCCESS
				if n == failAt {
					code = status.EIO
				}
				src.complete(rdd.EventRead, code)
			}
		}
		require.NoError(t, loop.Call(context.Background(), func() {
			seq = New(loop, src, rdd.EventRead)
			outCh = watch(seq)
			require.NoError(t, seq.Start(steps))
		}))
		o := waitOutcome(t, outCh)
		require.Equal(t, EventError, o.event)
		require.Equal(t, status.EIO, o.res.Status)
		requireQuiet(t, outCh)
		require.NoError(t, loop.Call(context.Background(), func() {
			require.Equal(t, failAt+1, ran)
			require.Equal(t, Failed, seq.State())
			require.Equal(t, failAt, seq.Cursor())
		}))
		stop()
	}
}

func TestSequenceIgnoresOtherEvents(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()
	src := &fakeSource{loop: loop}
	var seq *Sequencer
	var outCh <-chan outcome
	require.NoError(t, loop.Call(context.Background(), func() {
		seq = New(loop, src, rdd.EventWrite)
		outCh = watch(seq)
		require.NoError(t, seq.Start([]Step{
			func(*rdd.Result) { src.complete(rdd.EventRead, status.ESUCCESS) },
		}))
	}))
	requireQuiet(t, outCh)
	require.NoError(t, loop.Call(context.Background(), func() {
		require.Equal(t, Running, seq.State())
		require.Equal(t, ErrRunning, seq.Start(nil))
		src.complete(rdd.EventWrite, status.ESUCCESS)
	}))
	require.Equal(t, EventDone, waitOutcome(t, outCh).event)
}

func TestEmptySequence(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()
	src := &fakeSource{loop: loop}
	require.NoError(t, loop.Call(context.Background(), func() {
		seq := New(loop, src)
		outCh := watch(seq)
		require.NoError(t, seq.Start(nil))
		require.Equal(t, Done, seq.State())
		require.Equal(t, EventDone, (<-outCh).event)
	}))
}

func TestSequenceAfterAndAbort(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()
	src := &fakeSource{loop: loop}
	var seq *Sequencer
	var outCh <-chan outcome
	firedCh := make(chan struct{}, 1)
	require.NoError(t, loop.Call(context.Background(), func() {
		seq = New(loop, src)
		outCh = watch(seq)
		require.NoError(t, seq.Start([]Step{
			func(*rdd.Result) {
				seq.After(10*time.Millisecond, func() {
					src.complete(rdd.EventOpen, status.ESUCCESS)
				})
			},
			func(*rdd.Result) {
				seq.After(10*time.Millisecond, func() { firedCh <- struct{}{} })
				seq.Abort()
			},
		}))
	}))
	o := waitOutcome(t, outCh)
	require.Equal(t, EventError, o.event)
	require.Equal(t, status.Canceled, o.res.Status)
	select {
	case <-firedCh:
		t.Fatal("timer fired after abort")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSequenceWithDriver(t *testing.T) {
	loop := fx.NewLoop()
	board := sim.NewBoard(units.Default())
	drv := rdd.New(loop, board, units.Default(), rdd.Options{CommandTimeout: 200 * time.Millisecond})
	loop.Add(drv)
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(doneCh)
	}()
	defer func() {
		cancel()
		<-doneCh
	}()

	var handle handles.ID
	var greetings []string
	var outCh <-chan outcome
	require.NoError(t, loop.Call(context.Background(), func() {
		seq := New(loop, drv)
		outCh = watch(seq)
		require.NoError(t, seq.Start([]Step{
			func(*rdd.Result) { drv.Open("Hello:0", 0, 0, nil) },
			func(res *rdd.Result) {
				handle = res.Handle
				drv.Read(handle, 0, sim.HelloRegGreeting, 0, nil)
			},
			func(res *rdd.Result) {
				greetings = append(greetings, string(res.Data))
				drv.Write(handle, 0, sim.HelloRegGreeting, []byte("Hi"), nil)
			},
			func(*rdd.Result) { drv.Read(handle, 0, sim.HelloRegGreeting, 0, nil) },
			func(res *rdd.Result) {
				greetings = append(greetings, string(res.Data))
				drv.Close(handle, nil)
			},
		}))
	}))
	o := waitOutcome(t, outCh)
	require.Equal(t, EventDone, o.event)
	require.Equal(t, rdd.EventClose, o.res.EventType)
	require.Equal(t, []string{sim.DefaultGreeting, "Hi"}, greetings)
}

func TestSequenceForcedReopen(t *testing.T) {
	loop := fx.NewLoop()
	board := sim.NewBoard(units.Default())
	drv := rdd.New(loop, board, units.Default(), rdd.Options{CommandTimeout: 200 * time.Millisecond})
	loop.Add(drv)
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(doneCh)
	}()
	defer func() {
		cancel()
		<-doneCh
	}()

	var first, second handles.ID
	var seen []string
	record := func(step string, res *rdd.Result) {
		seen = append(seen, step+":"+string(res.EventType))
	}
	var outCh <-chan outcome
	require.NoError(t, loop.Call(context.Background(), func() {
		seq := New(loop, drv)
		outCh = watch(seq)
		require.NoError(t, seq.Start([]Step{
			func(*rdd.Result) { drv.Open("Hello:0", 0, 0, nil) },
			func(res *rdd.Result) {
				record("reopen", res)
				first = res.Handle
				drv.Open("Hello:0", wire.Force, 0, nil)
			},
			func(res *rdd.Result) {
				record("read", res)
				second = res.Handle
				drv.Read(second, 0, sim.HelloRegGreeting, 0, nil)
			},
			func(res *rdd.Result) {
				record("close", res)
				drv.Close(second, nil)
			},
		}))
	}))
	o := waitOutcome(t, outCh)
	require.Equal(t, EventDone, o.event, "%v", o.res)
	require.Equal(t, []string{"reopen:open", "read:open", "close:read"}, seen)
	require.NotEqual(t, first, second)
	require.NoError(t, loop.Call(context.Background(), func() {
		_, err := drv.Handle(first)
		require.Error(t, err)
	}))
}
