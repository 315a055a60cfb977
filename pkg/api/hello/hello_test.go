package hello

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/units"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
	"github.com/robotalks/rdd.go/pkg/sequencer"
	"github.com/robotalks/rdd.go/pkg/sim"
)

func startDriver(t *testing.T) (*fx.Loop, *sim.Board, *API, func()) {
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
	return loop, board, New(drv), func() {
		cancel()
		<-doneCh
	}
}

func TestRegisters(t *testing.T) {
	require.Equal(t, sim.HelloRegGreeting, RegGreeting)
}

func TestGreetingScenario(t *testing.T) {
	loop, _, a, stop := startDriver(t)
	defer stop()

	var handle handles.ID
	var said []string
	var versions []string
	var seq *sequencer.Sequencer
	finishCh := make(chan sequencer.Event, 1)
	require.NoError(t, loop.Call(context.Background(), func() {
		seq = sequencer.New(loop, a)
		seq.On(sequencer.EventDone, func(*rdd.Result) { finishCh <- sequencer.EventDone })
		seq.On(sequencer.EventError, func(res *rdd.Result) {
			t.Logf("failed: %v", res)
			finishCh <- sequencer.EventError
		})
		require.NoError(t, seq.Start([]sequencer.Step{
			func(*rdd.Result) { a.Open("Hello:0", wire.Force, 0, nil) },
			func(res *rdd.Result) {
				handle = res.Handle
				a.DriverVersion(handle, nil)
			},
			func(res *rdd.Result) {
				versions = append(versions, string(res.Data))
				a.GetGreeting(handle, nil)
			},
			func(res *rdd.Result) {
				said = append(said, string(res.Data))
				a.SetGreeting(handle, "blah, blah", nil)
			},
			func(*rdd.Result) { a.GetGreeting(handle, nil) },
			func(res *rdd.Result) {
				said = append(said, string(res.Data))
				a.Close(handle, nil)
			},
		}))
	}))
	select {
	case ev := <-finishCh:
		require.Equal(t, sequencer.EventDone, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("sequence timeout")
	}
	require.Equal(t, []string{sim.DefaultGreeting, "blah, blah"}, said)
	require.Equal(t, []string{"Hello 0.1.0"}, versions)
}

func TestContinuousGreeting(t *testing.T) {
	loop, board, a, stop := startDriver(t)
	defer stop()

	resCh := make(chan *rdd.Result, 16)
	reportCh := make(chan *rdd.Result, 64)
	next := func() *rdd.Result {
		select {
		case res := <-resCh:
			require.True(t, res.OK(), "%v", res)
			return res
		case <-time.After(2 * time.Second):
			t.Fatal("result timeout")
		}
		return nil
	}
	done := func(res *rdd.Result) { resCh <- res }

	require.NoError(t, loop.Call(context.Background(), func() {
		require.NoError(t, a.Open("Hello:0", 0, 0, done))
	}))
	h := next().Handle
	require.NoError(t, loop.Call(context.Background(), func() {
		require.NoError(t, a.SetIntervals(h, 0, 10, done))
	}))
	next()
	require.NoError(t, loop.Call(context.Background(), func() {
		require.NoError(t, a.GetContinuousGreeting(h, func(res *rdd.Result) { reportCh <- res }, done))
	}))
	require.Equal(t, sim.DefaultGreeting, string(next().Data))
	for i := 0; i < 3; i++ {
		select {
		case res := <-reportCh:
			require.Equal(t, rdd.EventReadContinuous, res.EventType)
			require.Equal(t, sim.DefaultGreeting, string(res.Data))
		case <-time.After(time.Second):
			t.Fatal("report timeout")
		}
	}
	require.NoError(t, loop.Call(context.Background(), func() {
		require.NoError(t, a.StopContinuousGreeting(h, done))
	}))
	next()
	require.False(t, board.Streaming(byte(h)))
	require.NoError(t, loop.Call(context.Background(), func() {
		require.NoError(t, a.Close(h, done))
	}))
	require.Equal(t, rdd.EventClose, next().EventType)
}
