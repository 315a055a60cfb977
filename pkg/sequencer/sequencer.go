// Package sequencer runs an ordered list of asynchronous steps, advancing
// on each Result of the previous step.
package sequencer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/status"
)

// State is the state of a Sequencer.
type State int

// States.
const (
	Idle State = iota
	Running
	Done
	Failed
)

var stateNames = [...]string{"Idle", "Running", "Done", "Failed"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event is emitted when a run ends.
type Event string

// Events.
const (
	EventDone  Event = "done"
	EventError Event = "error"
)

// Step performs one operation with the Result of the previous step.
// It's expected to issue exactly one operation (or one After call)
// whose Result advances the sequence.
type Step func(*rdd.Result)

// Source emits Results, e.g. rdd.Driver or a device API.
type Source interface {
	On(rdd.EventType, rdd.Listener) *fx.Subscription
}

// DefaultEvents advance the sequence when no events are specified.
var DefaultEvents = []rdd.EventType{rdd.EventOpen, rdd.EventRead, rdd.EventWrite, rdd.EventClose}

// ErrRunning is returned by Start when a run is in progress.
var ErrRunning = errors.New("sequence already running")

// Sequencer must be used on the loop of its Source.
type Sequencer struct {
	source Source
	sched  fx.Scheduler
	events []rdd.EventType

	state  State
	steps  []Step
	cursor int
	subs   []*fx.Subscription
	timers map[*fx.Timer]struct{}

	emitter fx.Emitter[Event, *rdd.Result]
}

// New creates a Sequencer advancing on Results of the given event types.
func New(sched fx.Scheduler, source Source, events ...rdd.EventType) *Sequencer {
	if len(events) == 0 {
		events = DefaultEvents
	}
	return &Sequencer{
		source: source,
		sched:  sched,
		events: events,
		timers: make(map[*fx.Timer]struct{}),
	}
}

// On registers a listener of done or error.
func (s *Sequencer) On(event Event, fn func(*rdd.Result)) *fx.Subscription {
	return s.emitter.On(event, fn)
}

// State returns the current state.
func (s *Sequencer) State() State {
	return s.state
}

// Cursor returns the index of the current step.
func (s *Sequencer) Cursor() int {
	return s.cursor
}

// Start runs steps[0] with a synthetic start Result. The steps slice is
// not modified.
func (s *Sequencer) Start(steps []Step) error {
	if s.state == Running {
		return ErrRunning
	}
	s.steps, s.cursor, s.state = steps, 0, Running
	if len(steps) == 0 {
		s.finish(Done, EventDone, &rdd.Result{})
		return nil
	}
	for _, event := range s.events {
		if event != rdd.EventError {
			s.subs = append(s.subs, s.source.On(event, s.advance))
		}
	}
	s.subs = append(s.subs, s.source.On(rdd.EventError, s.advance))
	glog.V(2).Infof("sequence started with %d steps", len(steps))
	steps[0](&rdd.Result{Status: status.ESUCCESS})
	return nil
}

// After calls fn on the loop once d elapsed, unless the run ends first.
func (s *Sequencer) After(d time.Duration, fn func()) {
	if s.state != Running {
		return
	}
	var timer *fx.Timer
	timer = s.sched.After(d, func() {
		delete(s.timers, timer)
		if s.state == Running {
			fn()
		}
	})
	s.timers[timer] = struct{}{}
}

// Abort fails a running sequence with ECANCELED.
func (s *Sequencer) Abort() {
	if s.state != Running {
		return
	}
	s.finish(Failed, EventError, &rdd.Result{
		Status:    status.Canceled,
		EventType: rdd.EventError,
		Err:       status.NewError(status.Canceled, "sequence aborted"),
	})
}

func (s *Sequencer) advance(res *rdd.Result) {
	if s.state != Running {
		return
	}
	if !res.OK() {
		glog.V(2).Infof("sequence failed at step %d: %s", s.cursor, res.Status)
		s.finish(Failed, EventError, res)
		return
	}
	if s.cursor++; s.cursor >= len(s.steps) {
		s.finish(Done, EventDone, res)
		return
	}
	s.steps[s.cursor](res)
}

func (s *Sequencer) finish(state State, event Event, res *rdd.Result) {
	s.state = state
	for _, sub := range s.subs {
		sub.Close()
	}
	s.subs = nil
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[*fx.Timer]struct{})
	s.emitter.Emit(event, res)
}
