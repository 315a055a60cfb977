package hello

import (
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rdd.go/pkg/api/hello"
	"github.com/robotalks/rdd.go/pkg/cli/sh"
	"github.com/robotalks/rdd.go/pkg/rdd"
)

func handle(c *ishell.Context, fn func(*hello.API, rdd.Listener) error) {
	sh.DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
		return fn(hello.New(drv), done)
	})
}

var (
	// GetCmd reads the greeting.
	GetCmd = ishell.Cmd{
		Name:    "hello.get",
		Aliases: []string{"hg"},
		Help:    "HANDLE",
		Func: sh.MustBeConnected(sh.WithArgs(1, "hello.get HANDLE", func(c *ishell.Context) {
			h, err := sh.ParseHandle(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			handle(c, func(a *hello.API, done rdd.Listener) error {
				return a.GetGreeting(h, done)
			})
		})),
	}

	// SetCmd sets the greeting.
	SetCmd = ishell.Cmd{
		Name:    "hello.set",
		Aliases: []string{"hs"},
		Help:    "HANDLE GREETING...",
		Func: sh.MustBeConnected(sh.WithArgs(2, "hello.set HANDLE GREETING", func(c *ishell.Context) {
			h, err := sh.ParseHandle(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			greeting := strings.Join(c.Args[1:], " ")
			handle(c, func(a *hello.API, done rdd.Listener) error {
				return a.SetGreeting(h, greeting, done)
			})
		})),
	}

	// WatchCmd prints the greeting continuously.
	WatchCmd = ishell.Cmd{
		Name:    "hello.watch",
		Aliases: []string{"hw"},
		Help:    "HANDLE",
		Func: sh.MustBeConnected(sh.WithArgs(1, "hello.watch HANDLE", func(c *ishell.Context) {
			h, err := sh.ParseHandle(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			s := sh.ShellFrom(c)
			handle(c, func(a *hello.API, done rdd.Listener) error {
				return a.GetContinuousGreeting(h, s.Print, done)
			})
		})),
	}

	// UnwatchCmd stops printing the greeting.
	UnwatchCmd = ishell.Cmd{
		Name:    "hello.unwatch",
		Aliases: []string{"huw"},
		Help:    "HANDLE",
		Func: sh.MustBeConnected(sh.WithArgs(1, "hello.unwatch HANDLE", func(c *ishell.Context) {
			h, err := sh.ParseHandle(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			handle(c, func(a *hello.API, done rdd.Listener) error {
				return a.StopContinuousGreeting(h, done)
			})
		})),
	}
)

func init() {
	sh.AddCmds(
		&GetCmd,
		&SetCmd,
		&WatchCmd,
		&UnwatchCmd,
	)
}
