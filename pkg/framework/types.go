package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

// Scheduler defers work onto the single goroutine owning the
// protocol state.
type Scheduler interface {
	// Post enqueues fn to be executed on the loop goroutine.
	Post(fn func())
	// After executes fn on the loop goroutine once d elapsed,
	// unless the returned Timer is stopped first.
	After(d time.Duration, fn func()) *Timer
}
