package mqtt

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rdd.go/pkg/transport"
)

// DefaultBoard is the board name used when the URL doesn't specify one.
const DefaultBoard = "board"

// PublishTimeout bounds waiting for a publish acknowledgement.
const PublishTimeout = time.Second

// Topics used by a board bridge:
//
//	<prefix>board/<name>/cmd   host -> board
//	<prefix>board/<name>/msg   board -> host
func Topics(board string) (cmd, msg string) {
	base := "board/" + board
	return base + "/cmd", base + "/msg"
}

// Bridge implements transport.Transport over the topics of a board
// bridge. Run must be running for the connection to be made.
type Bridge struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh  chan []byte
	readyCh   chan struct{}
	readyOnce sync.Once
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewBridge creates the host side of a board bridge.
func NewBridge(q *Queue, board string) *Bridge {
	cmd, msg := Topics(board)
	b := &Bridge{
		Queue:    q,
		SubTopic: msg,
		PubTopic: cmd,
		packetCh: make(chan []byte, 16),
		readyCh:  make(chan struct{}),
		closeCh:  make(chan struct{}),
	}
	q.OnConnect = func(*Queue) {
		b.readyOnce.Do(func() { close(b.readyCh) })
	}
	return b
}

// ReadPacket implements transport.PacketReader.
func (b *Bridge) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-b.packetCh:
		return pkt, nil
	case <-b.closeCh:
		return nil, io.EOF
	}
}

// WritePacket implements transport.PacketWriter.
func (b *Bridge) WritePacket(pkt []byte) error {
	if !transport.IsReady(b) || !b.Queue.Client.IsConnected() {
		return transport.ErrNotReady
	}
	token := b.Queue.Pub(b.PubTopic, pkt)
	if !token.WaitTimeout(PublishTimeout) {
		return errors.New("mqtt publish timeout")
	}
	return token.Error()
}

// Ready implements transport.Transport.
func (b *Bridge) Ready() <-chan struct{} {
	return b.readyCh
}

// Close implements io.Closer.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() { close(b.closeCh) })
	return nil
}

// Run implements framework.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.Queue.Sub(b.SubTopic, b.handleMsg)
	b.Queue.Connect()
	select {
	case <-ctx.Done():
	case <-b.closeCh:
	}
	sub.Close()
	b.Queue.Close()
	if err := ctx.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (b *Bridge) handleMsg(_ string, payload []byte) {
	select {
	case b.packetCh <- payload:
	case <-b.closeCh:
	case <-time.After(time.Second):
		glog.Warningf("mqtt bridge: receiver stalled, packet dropped")
	}
}

// Open creates a Bridge from mqtt://broker/prefix?board=name.
func Open(u *url.URL) (*Bridge, error) {
	if u.Host == "" {
		return nil, errors.New("mqtt broker host missing")
	}
	opts, topicPrefix := ClientOptionsFromURL(u)
	board := u.Query().Get("board")
	if board == "" {
		board = DefaultBoard
	}
	return NewBridge(NewQueue(opts, topicPrefix), board), nil
}

func init() {
	for _, scheme := range []string{"mqtt", "mqtts"} {
		transport.Register(scheme, func(u *url.URL) (transport.Transport, error) {
			return Open(u)
		})
	}
}
