// Package publish forwards driver Results to MQTT as telemetry.
package publish

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/msgs"
	"github.com/robotalks/rdd.go/pkg/transport/mqtt"
)

// TopicRoot is the first level of telemetry topics.
const TopicRoot = "rdd"

// AllTopics matches every telemetry topic.
const AllTopics = TopicRoot + "/#"

// NoUnit replaces the unit level of a Result without unit name.
const NoUnit = "_"

// Topic returns the telemetry topic of a Result, relative to the queue prefix.
func Topic(unit string, event rdd.EventType) string {
	if unit == "" {
		unit = NoUnit
	}
	return TopicRoot + "/" + unit + "/" + string(event)
}

// ParseTopic splits a telemetry topic into unit and event.
func ParseTopic(topic string) (unit string, event rdd.EventType, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicRoot {
		return "", "", fmt.Errorf("invalid telemetry topic %q", topic)
	}
	return parts[1], rdd.EventType(parts[2]), nil
}

// Sink accepts encoded telemetry. It must not block.
type Sink interface {
	Publish(topic string, payload []byte) error
}

// QueueSink publishes with QoS 0 on an MQTT queue.
type QueueSink struct {
	Queue *mqtt.Queue
	// Timeout bounds the wait for a publish to report failures.
	Timeout time.Duration
}

// Publish implements Sink.
func (s *QueueSink) Publish(topic string, payload []byte) error {
	token := s.Queue.Pub(topic, payload)
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	go func() {
		if !token.WaitTimeout(timeout) {
			glog.Warningf("publish %s timed out", topic)
		} else if err := token.Error(); err != nil {
			glog.Warningf("publish %s: %v", topic, err)
		}
	}()
	return nil
}

// Source emits Results.
type Source interface {
	On(rdd.EventType, rdd.Listener) *fx.Subscription
}

// Publisher publishes every Result of a Source.
type Publisher struct {
	Sink Sink
	Now  func() time.Time

	subs []*fx.Subscription
}

// New creates a Publisher.
func New(sink Sink) *Publisher {
	return &Publisher{Sink: sink, Now: time.Now}
}

// Attach subscribes to all event types of source. It's called on the
// loop of source.
func (p *Publisher) Attach(source Source) *Publisher {
	for _, event := range rdd.EventTypes {
		p.subs = append(p.subs, source.On(event, p.publish))
	}
	return p
}

// Close detaches from every source.
func (p *Publisher) Close() error {
	for _, sub := range p.subs {
		sub.Close()
	}
	p.subs = nil
	return nil
}

func (p *Publisher) publish(res *rdd.Result) {
	payload, err := msgs.NewResultEvent(res, p.Now()).Encode()
	if err != nil {
		glog.Errorf("encode %v: %v", res, err)
		return
	}
	topic := Topic(res.UnitName, res.EventType)
	glog.V(4).Infof("PUB %s", topic)
	if err := p.Sink.Publish(topic, payload); err != nil {
		glog.Warningf("publish %s: %v", topic, err)
	}
}

// Decode parses a telemetry message received on topic.
func Decode(topic string, payload []byte) (*msgs.ResultEvent, error) {
	unit, event, err := ParseTopic(topic)
	if err != nil {
		return nil, err
	}
	m, err := msgs.DecodeResultEvent(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", topic, err)
	}
	if m.Event != string(event) || (m.Unit != unit && unit != NoUnit) {
		return nil, fmt.Errorf("%s: mismatched %s event of %q", topic, m.Event, m.Unit)
	}
	return m, nil
}

// Watch subscribes to telemetry matching filter, AllTopics if empty.
// Undecodable messages are logged and skipped.
func Watch(q *mqtt.Queue, filter string, fn func(*msgs.ResultEvent)) *mqtt.Subscription {
	if filter == "" {
		filter = AllTopics
	}
	return q.Sub(filter, func(topic string, payload []byte) {
		m, err := Decode(topic, payload)
		if err != nil {
			glog.Warning(err)
			return
		}
		fn(m)
	})
}
