// Package msgs defines the telemetry messages published for driver Results.
package msgs

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/status"
)

// ResultEvent mirrors result.proto.
type ResultEvent struct {
	Status    int32  `protobuf:"varint,1,opt,name=status,proto3" json:"status,omitempty"`
	Handle    uint32 `protobuf:"varint,2,opt,name=handle,proto3" json:"handle,omitempty"`
	Unit      string `protobuf:"bytes,3,opt,name=unit,proto3" json:"unit,omitempty"`
	Event     string `protobuf:"bytes,4,opt,name=event,proto3" json:"event,omitempty"`
	Op        string `protobuf:"bytes,5,opt,name=op,proto3" json:"op,omitempty"`
	Register  int32  `protobuf:"zigzag32,6,opt,name=register,proto3" json:"register,omitempty"`
	Data      []byte `protobuf:"bytes,7,opt,name=data,proto3" json:"data,omitempty"`
	Symbol    string `protobuf:"bytes,8,opt,name=symbol,proto3" json:"symbol,omitempty"`
	Message   string `protobuf:"bytes,9,opt,name=message,proto3" json:"message,omitempty"`
	Timestamp int64  `protobuf:"varint,10,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// Reset implements proto.Message.
func (m *ResultEvent) Reset() { *m = ResultEvent{} }

// String implements proto.Message.
func (m *ResultEvent) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*ResultEvent) ProtoMessage() {}

// NewResultEvent creates the telemetry of res observed at t.
func NewResultEvent(res *rdd.Result, t time.Time) *ResultEvent {
	return &ResultEvent{
		Status:    int32(res.Status),
		Handle:    uint32(res.Handle),
		Unit:      res.UnitName,
		Event:     string(res.EventType),
		Op:        string(res.Op),
		Register:  int32(res.Register),
		Data:      res.Data,
		Symbol:    res.Status.Symbol(),
		Message:   res.Status.Message(),
		Timestamp: t.UnixNano(),
	}
}

// Result converts the message back to a Result. Err is set for errors.
func (m *ResultEvent) Result() *rdd.Result {
	res := &rdd.Result{
		Status:    status.Code(m.Status),
		Handle:    handles.ID(m.Handle),
		UnitName:  m.Unit,
		EventType: rdd.EventType(m.Event),
		Op:        rdd.EventType(m.Op),
		Register:  int16(m.Register),
		Data:      m.Data,
	}
	if res.EventType == rdd.EventError {
		res.Err = status.NewError(res.Status, "")
	}
	return res
}

// Time returns the observation time.
func (m *ResultEvent) Time() time.Time {
	return time.Unix(0, m.Timestamp)
}

// Summary formats the event for humans.
func (m *ResultEvent) Summary() string {
	if m.Event == string(rdd.EventError) {
		return fmt.Sprintf("%s %s#%d failed: %s (%d) %s", m.Op, m.Unit, m.Handle, m.Symbol, m.Status, m.Message)
	}
	return fmt.Sprintf("%s %s#%d reg=%d data=%q", m.Event, m.Unit, m.Handle, m.Register, m.Data)
}

// Encode serializes the message.
func (m *ResultEvent) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// DecodeResultEvent parses a serialized ResultEvent.
func DecodeResultEvent(data []byte) (*ResultEvent, error) {
	var m ResultEvent
	if err := proto.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
