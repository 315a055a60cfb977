package sh

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rdd.go/pkg/env"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/status"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell   *ishell.Shell
	Config  *env.Config
	Session *Session
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
	readyTimeout      = 5 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&UnitsCmd,
		&StatusCmd,
		&OpenCmd,
		&CloseCmd,
		&ReadCmd,
		&WriteCmd,
		&WatchCmd,
		&UnwatchCmd,
		&IntervalsCmd,
		&VersionCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// WithArgs wraps command func requires at least n arguments.
func WithArgs(n int, usage string, fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if len(c.Args) < n {
			c.Err(fmt.Errorf("usage: %s", usage))
			return
		}
		fn(c)
	}
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Print prints a Result, from any goroutine.
func (s *Shell) Print(res *rdd.Result) {
	out, err := FormatResult(res, s.OutputJSON)
	if err != nil {
		s.Shell.Println(err)
		return
	}
	s.Shell.Println(out)
}

// DoCommand runs an operation and prints its Result.
func DoCommand(c *ishell.Context, op func(*rdd.Driver, rdd.Listener) error) (*rdd.Result, error) {
	s := ShellFrom(c)
	if s.Session == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return nil, err
	}
	drv := s.Session.Driver()
	res, err := s.Session.Do(s.Config.Timeout*2+time.Second, func(done rdd.Listener) error {
		return op(drv, done)
	})
	if err != nil {
		c.Err(err)
		return nil, err
	}
	s.Print(res)
	return res, nil
}

// Connect connects the board on port, the configured one if empty.
func (s *Shell) Connect(port string) error {
	conf := *s.Config
	if port != "" {
		conf.Port = port
	}
	session, err := NewSession(&conf)
	if err != nil {
		return err
	}
	if err := session.WaitReady(readyTimeout); err != nil {
		session.Close()
		return err
	}
	s.Disconnect()
	s.Session = session
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", conf.Port))
	return nil
}

// Disconnect disconnects current board.
func (s *Shell) Disconnect() {
	if s.Session != nil {
		s.Session.Close()
		s.Session = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Port)
		}
		if err := s.Connect(""); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Port, err)
		}
		defer s.Disconnect()
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func handleArg(c *ishell.Context, index int) (handles.ID, bool) {
	id, err := ParseHandle(c.Args[index])
	if err != nil {
		c.Err(err)
		return 0, false
	}
	return id, true
}

var (
	// ConnectCmd connects a board.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[PORT-URL]",
		Func: func(c *ishell.Context) {
			var port string
			if len(c.Args) > 0 {
				port = c.Args[0]
			}
			if err := ShellFrom(c).Connect(port); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current board.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// UnitsCmd lists the unit table.
	UnitsCmd = ishell.Cmd{
		Name:    "units",
		Aliases: []string{"u"},
		Help:    "",
		Func: func(c *ishell.Context) {
			table, err := ShellFrom(c).Config.Units()
			if err != nil {
				c.Err(err)
				return
			}
			for _, u := range table.Units() {
				c.Printf("%-12s %-6s address %d\n", u.Name, u.Driver, u.Address)
			}
		},
	}

	// StatusCmd explains status codes.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"sc"},
		Help:    "[CODE...]",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				for _, e := range status.Codes() {
					c.Printf("%4d %-12s %s\n", int(e.Code), e.Symbol, e.Message)
				}
				return
			}
			for _, arg := range c.Args {
				n, err := strconv.Atoi(arg)
				if err != nil {
					c.Err(fmt.Errorf("invalid CODE %q", arg))
					return
				}
				if n < 0 {
					n = -n
				}
				c.Println(status.Code(n).String())
			}
		},
	}

	// OpenCmd opens a unit.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "UNIT [force]",
		Func: MustBeConnected(WithArgs(1, "open UNIT [force]", func(c *ishell.Context) {
			var flags wire.Flags
			if len(c.Args) > 1 && strings.EqualFold(c.Args[1], "force") {
				flags |= wire.Force
			}
			DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
				return drv.Open(c.Args[0], flags, 0, done)
			})
		})),
	}

	// CloseCmd closes a handle.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"x"},
		Help:    "HANDLE",
		Func: MustBeConnected(WithArgs(1, "close HANDLE", func(c *ishell.Context) {
			h, ok := handleArg(c, 0)
			if !ok {
				return
			}
			DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
				return drv.Close(h, done)
			})
		})),
	}

	// ReadCmd reads a register.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "HANDLE REG [COUNT]",
		Func: MustBeConnected(WithArgs(2, "read HANDLE REG [COUNT]", func(c *ishell.Context) {
			h, ok := handleArg(c, 0)
			if !ok {
				return
			}
			reg, err := ParseRegister(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			count, err := ParseCount(c.Args, 2)
			if err != nil {
				c.Err(err)
				return
			}
			DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
				return drv.Read(h, 0, reg, count, done)
			})
		})),
	}

	// WriteCmd writes a register.
	WriteCmd = ishell.Cmd{
		Name:    "write",
		Aliases: []string{"w"},
		Help:    "HANDLE REG DATA|hex:DATA",
		Func: MustBeConnected(WithArgs(3, "write HANDLE REG DATA", func(c *ishell.Context) {
			h, ok := handleArg(c, 0)
			if !ok {
				return
			}
			reg, err := ParseRegister(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			data, err := ParseData(c.Args[2:])
			if err != nil {
				c.Err(err)
				return
			}
			DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
				return drv.Write(h, 0, reg, data, done)
			})
		})),
	}

	// WatchCmd starts a continuous read, printing every report.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"wa"},
		Help:    "HANDLE REG [COUNT]",
		Func: MustBeConnected(WithArgs(2, "watch HANDLE REG [COUNT]", func(c *ishell.Context) {
			h, ok := handleArg(c, 0)
			if !ok {
				return
			}
			reg, err := ParseRegister(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			count, err := ParseCount(c.Args, 2)
			if err != nil {
				c.Err(err)
				return
			}
			s := ShellFrom(c)
			DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
				return drv.EnableContinuous(h, reg, count, s.Print, done)
			})
		})),
	}

	// UnwatchCmd stops a continuous read.
	UnwatchCmd = ishell.Cmd{
		Name:    "unwatch",
		Aliases: []string{"uw"},
		Help:    "HANDLE",
		Func: MustBeConnected(WithArgs(1, "unwatch HANDLE", func(c *ishell.Context) {
			h, ok := handleArg(c, 0)
			if !ok {
				return
			}
			DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
				return drv.DisableContinuous(h, done)
			})
		})),
	}

	// IntervalsCmd sets the intervals of continuous reads.
	IntervalsCmd = ishell.Cmd{
		Name:    "intervals",
		Aliases: []string{"iv"},
		Help:    "HANDLE MICROS MILLIS (0 keeps the current value)",
		Func: MustBeConnected(WithArgs(3, "intervals HANDLE MICROS MILLIS", func(c *ishell.Context) {
			h, ok := handleArg(c, 0)
			if !ok {
				return
			}
			var vals [2]uint32
			for n := range vals {
				val, err := strconv.ParseUint(c.Args[n+1], 0, 32)
				if err != nil {
					c.Err(fmt.Errorf("invalid interval %q", c.Args[n+1]))
					return
				}
				vals[n] = uint32(val)
			}
			DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
				return drv.SetIntervals(h, vals[0], vals[1], done)
			})
		})),
	}

	// VersionCmd reads the driver and library versions of a handle.
	VersionCmd = ishell.Cmd{
		Name:    "version",
		Aliases: []string{"v"},
		Help:    "HANDLE",
		Func: MustBeConnected(WithArgs(1, "version HANDLE", func(c *ishell.Context) {
			h, ok := handleArg(c, 0)
			if !ok {
				return
			}
			for _, reg := range []int16{wire.RegDriverVersion, wire.RegLibraryVersion} {
				res, err := DoCommand(c, func(drv *rdd.Driver, done rdd.Listener) error {
					return drv.Read(h, 0, reg, 0, done)
				})
				if err != nil || !res.OK() {
					return
				}
			}
		})),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
