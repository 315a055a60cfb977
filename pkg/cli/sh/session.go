package sh

import (
	"context"
	"fmt"
	"time"

	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/env"
	"github.com/robotalks/rdd.go/pkg/rdd"
)

// Session is a running loop with a driver connected to a board.
type Session struct {
	Ctx    context.Context
	Cancel func()
	Port   string
	Loop   *fx.Loop
	Env    *env.Env

	doneCh chan struct{}
}

// ErrNoResult indicates a command got no Result in time.
var ErrNoResult = fmt.Errorf("command timeout")

// NewSession connects the board configured by conf and runs the loop.
func NewSession(conf *env.Config) (*Session, error) {
	s := &Session{Port: conf.Port, Loop: fx.NewLoop(), doneCh: make(chan struct{})}
	e, err := conf.NewEnv(s.Loop)
	if err != nil {
		return nil, err
	}
	s.Env = e
	s.Loop.Add(e)
	s.Ctx, s.Cancel = context.WithCancel(context.Background())
	go func() {
		s.Loop.Run(s.Ctx)
		close(s.doneCh)
	}()
	return s, nil
}

// Close stops the loop and waits for it.
func (s *Session) Close() {
	s.Cancel()
	<-s.doneCh
}

// Driver returns the driver of the session.
func (s *Session) Driver() *rdd.Driver {
	return s.Env.Driver
}

// WaitReady waits for the board to be ready.
func (s *Session) WaitReady(timeout time.Duration) error {
	select {
	case <-s.Env.Transport.Ready():
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("board on %s not ready", s.Port)
	}
}

// Call runs fn on the loop.
func (s *Session) Call(fn func()) error {
	return s.Loop.Call(s.Ctx, fn)
}

// Do issues an operation on the loop and waits for its Result. The
// Result is also returned when the operation fails locally.
func (s *Session) Do(timeout time.Duration, op func(done rdd.Listener) error) (*rdd.Result, error) {
	resCh := make(chan *rdd.Result, 1)
	if err := s.Call(func() {
		op(func(res *rdd.Result) { resCh <- res })
	}); err != nil {
		return nil, err
	}
	select {
	case res := <-resCh:
		return res, nil
	case <-time.After(timeout):
		return nil, ErrNoResult
	}
}
