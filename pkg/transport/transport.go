// Package transport defines the message framed channel to the remote
// board and selects a binding by URL.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Transport is a message framed channel to the board.
// A binding that needs a background worker also implements
// framework.Runnable.
type Transport interface {
	PacketReadWriter
	io.Closer
	// Ready is closed once the channel can carry packets.
	Ready() <-chan struct{}
}

// ErrNotReady indicates the transport is not ready for communication.
var ErrNotReady = errors.New("transport not ready")

// OpenFunc creates a Transport from a parsed URL.
type OpenFunc func(*url.URL) (Transport, error)

var (
	bindings     = make(map[string]OpenFunc)
	bindingsLock sync.RWMutex
)

// Register registers a binding for a URL scheme.
func Register(scheme string, fn OpenFunc) {
	bindingsLock.Lock()
	defer bindingsLock.Unlock()
	bindings[scheme] = fn
}

// Schemes lists registered URL schemes.
func Schemes() []string {
	bindingsLock.RLock()
	defer bindingsLock.RUnlock()
	schemes := make([]string, 0, len(bindings))
	for s := range bindings {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Open opens a Transport by URL, e.g. serial:///dev/ttyACM0?baud=57600.
func Open(rawURL string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid transport URL: %w", err)
	}
	bindingsLock.RLock()
	fn := bindings[u.Scheme]
	bindingsLock.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("unknown transport URL scheme: %q", u.Scheme)
	}
	return fn(u)
}

// IsReady checks the ready signal without blocking.
func IsReady(t Transport) bool {
	select {
	case <-t.Ready():
		return true
	default:
		return false
	}
}

// readyNow is a closed channel.
var readyNow = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Wrapped adapts a PacketReadWriter that is usable immediately.
type Wrapped struct {
	PacketReadWriter
}

// Wrap creates a Transport from a PacketReadWriter which is ready as
// soon as it exists, closing it via io.Closer if implemented.
func Wrap(rw PacketReadWriter) *Wrapped {
	return &Wrapped{PacketReadWriter: rw}
}

// Ready implements Transport.
func (w *Wrapped) Ready() <-chan struct{} {
	return readyNow
}

// Close implements Transport.
func (w *Wrapped) Close() error {
	if closer, ok := w.PacketReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
