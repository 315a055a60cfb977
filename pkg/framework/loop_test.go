package framework

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T, l *Loop) func() {
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- l.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-doneCh:
			require.Equal(t, context.Canceled, err)
		case <-time.After(time.Second):
			t.Fatal("loop not stopped")
		}
	}
}

func TestLoopPostOrder(t *testing.T) {
	l := NewLoop()
	stop := runLoop(t, l)
	defer stop()

	var seen []int
	for i := 0; i < 10; i++ {
		n := i
		l.Post(func() { seen = append(seen, n) })
	}
	require.NoError(t, l.Call(context.Background(), func() {}))
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestLoopPostFromTask(t *testing.T) {
	l := NewLoop()
	stop := runLoop(t, l)
	defer stop()

	resultCh := make(chan []string, 1)
	l.Post(func() {
		trace := []string{"outer"}
		l.Post(func() {
			trace = append(trace, "inner")
			resultCh <- trace
		})
		trace = append(trace, "outer-end")
	})
	select {
	case trace := <-resultCh:
		require.Equal(t, []string{"outer", "outer-end", "inner"}, trace)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestLoopTimer(t *testing.T) {
	l := NewLoop()
	stop := runLoop(t, l)
	defer stop()

	firedCh := make(chan string, 2)
	l.After(10*time.Millisecond, func() { firedCh <- "fired" })
	stopped := l.After(10*time.Millisecond, func() { firedCh <- "stopped" })
	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())

	select {
	case s := <-firedCh:
		require.Equal(t, "fired", s)
	case <-time.After(time.Second):
		t.Fatal("timer not fired")
	}
	select {
	case s := <-firedCh:
		t.Fatalf("unexpected %s", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoopTimerStopAfterFire(t *testing.T) {
	l := NewLoop()
	stop := runLoop(t, l)
	defer stop()

	firedCh := make(chan struct{})
	timer := l.After(time.Millisecond, func() { close(firedCh) })
	<-firedCh
	require.False(t, timer.Stop())
}

func TestLoopRunnables(t *testing.T) {
	l := NewLoop()
	gotLoop := make(chan *Loop, 1)
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		gotLoop <- LoopFrom(ctx)
		<-ctx.Done()
		return ctx.Err()
	}))
	stop := runLoop(t, l)
	require.Same(t, l, <-gotLoop)
	stop()
}

func TestAggregatedError(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	require.Equal(t, "a", errs.Add(errA).Aggregate().Error())
	err := errs.Add(errB).Aggregate()
	require.Equal(t, "2 errors:\n  a\n  b", err.Error())
	require.True(t, errors.Is(err, errB))
}

func TestRunnerWait(t *testing.T) {
	errBad := errors.New("bad")
	r := NewRunner().Go(
		NamedRun("ok", RunFunc(func(context.Context) error { return nil })),
		NamedRun("eof", RunFunc(func(context.Context) error { return io.EOF })),
		NamedRun("bad", RunFunc(func(context.Context) error { return errBad })),
	)
	err := r.Wait()
	require.Error(t, err)
	require.True(t, errors.Is(err, errBad))
	var re *RunnerError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "bad", re.Name)
	require.Equal(t, "bad: bad", err.Error())
}

type closeRecorder struct{ closed int }

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	var c closeRecorder
	require.Equal(t, io.EOF, RunWithContextCloser(context.Background(), &c, func() error { return io.EOF }))
	require.Equal(t, 1, c.closed)

	ctx, cancel := context.WithCancel(context.Background())
	unblockCh := make(chan struct{})
	c = closeRecorder{}
	closer := &unblockCloser{closeRecorder: &c, ch: unblockCh}
	cancel()
	require.Equal(t, context.Canceled, RunWithContextCloser(ctx, closer, func() error {
		<-unblockCh
		return io.ErrClosedPipe
	}))
	require.Equal(t, 1, c.closed)
}

type unblockCloser struct {
	*closeRecorder
	ch chan struct{}
}

func (c *unblockCloser) Close() error {
	close(c.ch)
	return c.closeRecorder.Close()
}
