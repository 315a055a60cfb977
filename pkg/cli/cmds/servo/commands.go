package servo

import (
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rdd.go/pkg/api/servo"
	"github.com/robotalks/rdd.go/pkg/cli/sh"
	"github.com/robotalks/rdd.go/pkg/rdd"
)

func parseUint(arg, name string, bits int) (uint64, error) {
	val, err := strconv.ParseUint(arg, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("Invalid %s: %v", name, err)
	}
	return val, nil
}

var (
	// AttachCmd attaches a servo to a pin.
	AttachCmd = ishell.Cmd{
		Name:    "servo.attach",
		Aliases: []string{"sa"},
		Help:    "HANDLE PIN [MIN(us) MAX(us)]",
		Func: sh.MustBeConnected(sh.WithArgs(2, "servo.attach HANDLE PIN [MIN MAX]", func(c *ishell.Context) {
			h, err := sh.ParseHandle(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			var att servo.Attachment
			pin, err := parseUint(c.Args[1], "PIN", 8)
			if err != nil {
				c.Err(err)
				return
			}
			att.Pin = byte(pin)
			if len(c.Args) > 3 {
				minPulse, err := parseUint(c.Args[2], "MIN", 16)
				if err != nil {
					c.Err(err)
					return
				}
				maxPulse, err := parseUint(c.Args[3], "MAX", 16)
				if err != nil {
					c.Err(err)
					return
				}
				att.MinPulse, att.MaxPulse = uint16(minPulse), uint16(maxPulse)
			}
			sh.DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
				return servo.New(drv).Attach(h, att, done)
			})
		})),
	}

	// ToCmd moves the shaft.
	ToCmd = ishell.Cmd{
		Name:    "servo.to",
		Aliases: []string{"st"},
		Help:    "HANDLE DEGREES",
		Func: sh.MustBeConnected(sh.WithArgs(2, "servo.to HANDLE DEGREES", func(c *ishell.Context) {
			h, err := sh.ParseHandle(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			deg, err := strconv.ParseInt(c.Args[1], 10, 16)
			if err != nil {
				c.Err(fmt.Errorf("Invalid DEGREES: %v", err))
				return
			}
			sh.DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
				return servo.New(drv).To(h, int16(deg), done)
			})
		})),
	}

	// PositionCmd reads the shaft position.
	PositionCmd = ishell.Cmd{
		Name:    "servo.pos",
		Aliases: []string{"sp"},
		Help:    "HANDLE",
		Func: sh.MustBeConnected(sh.WithArgs(1, "servo.pos HANDLE", func(c *ishell.Context) {
			h, err := sh.ParseHandle(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			res, err := sh.DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
				return servo.New(drv).Position(h, done)
			})
			if err != nil || !res.OK() {
				return
			}
			if pos, err := servo.DecodePosition(res); err == nil {
				c.Printf("%d degrees\n", pos)
			}
		})),
	}
)

func init() {
	sh.AddCmds(
		&AttachCmd,
		&ToCmd,
		&PositionCmd,
	)
}
