package framework

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Loop executes posted tasks one at a time on a single goroutine.
// All protocol state (handles, pending commands, subscriptions,
// sequences) is confined to this goroutine, so none of it needs locking.
// Runnables added to the loop run in their own goroutines and hand
// work over with Post.
type Loop struct {
	runners []Runnable

	tasks taskList
	lock  sync.Mutex

	wakeUpCh chan struct{}
	initOnce sync.Once
}

// ErrLoopStopped indicates the loop is no longer running.
var ErrLoopStopped = errors.New("loop stopped")

type taskList struct {
	head *taskItem
	tail *taskItem
}

type taskItem struct {
	fn   func()
	next *taskItem
}

func (l *taskList) append(item *taskItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
}

func (l *taskList) splice(src *taskList) {
	l.head, l.tail = src.head, src.tail
	src.head, src.tail = nil, nil
}

var (
	loopCtxKey = &Loop{}
)

// LoopFrom gets the Loop from the context passed to Runnables.
func LoopFrom(ctx context.Context) *Loop {
	l, _ := ctx.Value(loopCtxKey).(*Loop)
	return l
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	l := &Loop{}
	l.init()
	return l
}

func (l *Loop) init() {
	l.initOnce.Do(func() {
		l.wakeUpCh = make(chan struct{}, 1)
	})
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Post implements Scheduler. It is safe to call from any goroutine.
func (l *Loop) Post(fn func()) {
	l.init()
	l.lock.Lock()
	l.tasks.append(&taskItem{fn: fn})
	l.lock.Unlock()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// After implements Scheduler.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if atomic.CompareAndSwapInt32(&t.state, timerPending, timerFired) {
				fn()
			}
		})
	})
	return t
}

// Call runs fn on the loop and waits for it to finish.
// It must not be called from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	doneCh := make(chan struct{})
	l.Post(func() {
		defer close(doneCh)
		fn()
	})
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.init()
	runCtx, cancel := context.WithCancel(ctx)
	runner := NewRunnerWith(context.WithValue(runCtx, loopCtxKey, l))
	runner.Go(l.runners...)
	defer func() {
		cancel()
		if err := runner.Wait(); err != nil {
			glog.Warningf("loop runners: %v", err)
		}
	}()

	for {
		l.runTasks()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wakeUpCh:
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

func (l *Loop) runTasks() {
	for {
		var tasks taskList
		l.lock.Lock()
		tasks.splice(&l.tasks)
		l.lock.Unlock()
		if tasks.head == nil {
			return
		}
		for item := tasks.head; item != nil; item = item.next {
			item.fn()
		}
	}
}

const (
	timerPending int32 = iota
	timerFired
	timerStopped
)

// Timer is a single-shot task scheduled by Loop.After.
type Timer struct {
	timer *time.Timer
	state int32
}

// Stop cancels the timer. It returns false if the task already
// executed or the timer was stopped before.
func (t *Timer) Stop() bool {
	if !atomic.CompareAndSwapInt32(&t.state, timerPending, timerStopped) {
		return false
	}
	t.timer.Stop()
	return true
}
