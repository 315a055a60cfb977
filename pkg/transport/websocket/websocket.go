// Package websocket carries one packet per websocket binary message.
package websocket

import (
	"fmt"
	"net/url"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/rdd.go/pkg/transport"
)

// ReadWriter implements transport.Transport.
type ReadWriter websocket.Conn

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return (*ReadWriter)(conn)
}

// ReadPacket implements transport.PacketReader.
func (p *ReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(p), &pkt)
	return
}

// WritePacket implements transport.PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(p), pkt)
}

// Ready implements transport.Transport.
func (p *ReadWriter) Ready() <-chan struct{} {
	return readyCh
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}

var readyCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Dial connects to a ws:// or wss:// endpoint. The origin defaults to
// the http(s) form of the endpoint host, and can be overridden with the
// origin query parameter.
func Dial(u *url.URL) (*ReadWriter, error) {
	q := u.Query()
	origin := q.Get("origin")
	if origin == "" {
		scheme := "http"
		if u.Scheme == "wss" {
			scheme = "https"
		}
		origin = scheme + "://" + u.Host + "/"
	}
	q.Del("origin")
	target := *u
	target.RawQuery = q.Encode()
	conn, err := websocket.Dial(target.String(), "", origin)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", target.String(), err)
	}
	conn.PayloadType = websocket.BinaryFrame
	glog.Infof("websocket connected to %s", target.String())
	return New(conn), nil
}

func init() {
	for _, scheme := range []string{"ws", "wss"} {
		transport.Register(scheme, func(u *url.URL) (transport.Transport, error) {
			return Dial(u)
		})
	}
}
