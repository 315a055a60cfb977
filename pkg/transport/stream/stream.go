// Package stream carries packets over a byte stream (e.g. a TCP serial
// bridge), each prefixed by its 4-byte little-endian length.
package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rdd.go/pkg/transport"
)

// MaxPacketSize limits the size of a received packet.
const MaxPacketSize = 0x10000

// DialTimeout bounds connecting to the bridge.
const DialTimeout = 5 * time.Second

// ReadWriter implements transport.Transport.
type ReadWriter struct {
	rw      io.ReadWriteCloser
	wlock   sync.Mutex
	readyCh chan struct{}
}

// New creates a ReadWriter over an established stream.
func New(rw io.ReadWriteCloser) *ReadWriter {
	ch := make(chan struct{})
	close(ch)
	return &ReadWriter{rw: rw, readyCh: ch}
}

// ReadPacket implements transport.PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	var size uint32
	if err := binary.Read(p.rw, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > MaxPacketSize {
		return nil, fmt.Errorf("packet size %d exceeds %d", size, MaxPacketSize)
	}
	pkt := make([]byte, size)
	_, err := io.ReadFull(p.rw, pkt)
	return pkt, err
}

// WritePacket implements transport.PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	buf := make([]byte, 4+len(pkt))
	binary.LittleEndian.PutUint32(buf, uint32(len(pkt)))
	copy(buf[4:], pkt)
	p.wlock.Lock()
	defer p.wlock.Unlock()
	_, err := p.rw.Write(buf)
	return err
}

// Ready implements transport.Transport.
func (p *ReadWriter) Ready() <-chan struct{} {
	return p.readyCh
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return p.rw.Close()
}

// Dial connects to tcp://host:port.
func Dial(u *url.URL) (*ReadWriter, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("host missing in %q", u.String())
	}
	conn, err := net.DialTimeout("tcp", u.Host, DialTimeout)
	if err != nil {
		return nil, err
	}
	glog.Infof("connected to %s", u.Host)
	return New(conn), nil
}

func init() {
	transport.Register("tcp", func(u *url.URL) (transport.Transport, error) {
		return Dial(u)
	})
}
