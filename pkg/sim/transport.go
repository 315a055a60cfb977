package sim

import (
	"fmt"
	"net/url"
	"time"

	"github.com/robotalks/rdd.go/pkg/rdd/units"
	"github.com/robotalks/rdd.go/pkg/transport"
)

// Open creates a board from sim://?units=file.yaml&delay=10ms.
func Open(u *url.URL) (*Board, error) {
	q := u.Query()
	table := units.Default()
	if fn := q.Get("units"); fn != "" {
		t, err := units.LoadFile(fn)
		if err != nil {
			return nil, err
		}
		table = t
	}
	b := NewBoard(table)
	if str := q.Get("delay"); str != "" {
		d, err := time.ParseDuration(str)
		if err != nil {
			return nil, fmt.Errorf("invalid delay %q: %w", str, err)
		}
		b.SetDelay(d)
	}
	return b, nil
}

func init() {
	transport.Register("sim", func(u *url.URL) (transport.Transport, error) {
		return Open(u)
	})
}
