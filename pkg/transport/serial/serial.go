// Package serial binds a serial port to the framed link protocol.
package serial

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/rdd.go/pkg/transport"
	"github.com/robotalks/rdd.go/pkg/transport/link"
)

// DefaultBaudRate is the baud rate used when not specified.
const DefaultBaudRate = 57600

// DefaultReadTimeout bounds a single byte read so the link can run its
// sync timer on the same goroutine.
const DefaultReadTimeout = 20 * time.Millisecond

// Config describes the serial port.
type Config struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
	SyncTimeout time.Duration
}

// ConfigFromURL parses serial:///dev/ttyUSB0?baud=57600&sync=100ms.
func ConfigFromURL(u *url.URL) (*Config, error) {
	conf := &Config{
		Device:      u.Path,
		BaudRate:    DefaultBaudRate,
		ReadTimeout: DefaultReadTimeout,
		SyncTimeout: link.DefaultTimeout,
	}
	if conf.Device == "" {
		conf.Device = u.Opaque
	}
	if conf.Device == "" {
		return nil, fmt.Errorf("serial device missing in %q", u.String())
	}
	q := u.Query()
	if str := q.Get("baud"); str != "" {
		baud, err := strconv.Atoi(str)
		if err != nil || baud <= 0 {
			return nil, fmt.Errorf("invalid baud rate %q", str)
		}
		conf.BaudRate = baud
	}
	for key, dst := range map[string]*time.Duration{
		"read-timeout": &conf.ReadTimeout,
		"sync":         &conf.SyncTimeout,
	} {
		if str := q.Get(key); str != "" {
			d, err := time.ParseDuration(str)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", key, str, err)
			}
			*dst = d
		}
	}
	return conf, nil
}

// Open opens the serial port and wraps it in a Link.
// The returned Link must be run (it implements framework.Runnable).
func Open(conf *Config) (*link.Link, error) {
	mode := &serial.Mode{
		BaudRate: conf.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(conf.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", conf.Device, err)
	}
	if err := port.SetReadTimeout(conf.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	glog.Infof("serial port %s opened at %d baud", conf.Device, conf.BaudRate)
	l := link.New(port)
	l.ReadTimeout = true
	l.Timeout = conf.SyncTimeout
	return l, nil
}

func init() {
	transport.Register("serial", func(u *url.URL) (transport.Transport, error) {
		conf, err := ConfigFromURL(u)
		if err != nil {
			return nil, err
		}
		return Open(conf)
	})
}
