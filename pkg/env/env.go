// Package env sets up the driver, its transport and telemetry from
// environment variables, an optional .env file and command line flags.
package env

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/joho/godotenv"

	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/publish"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/units"
	"github.com/robotalks/rdd.go/pkg/transport"
	"github.com/robotalks/rdd.go/pkg/transport/mqtt"
)

// DefaultEnvFile is loaded when RDD_ENV_FILE is not set.
const DefaultEnvFile = ".env"

// Config provides common options to set up a driver.
type Config struct {
	// Port is the transport URL, e.g. serial:///dev/ttyUSB0?baud=57600.
	Port string
	// UnitsFile is a YAML unit table, the default table if empty.
	UnitsFile string
	// Timeout bounds a command waiting for its response.
	Timeout time.Duration
	// MaxHandles limits the handles open at the same time.
	MaxHandles int
	// MQTTURL enables Result telemetry when set,
	// e.g. mqtt://host:port/topic-prefix
	MQTTURL string
	// ClientID identifies the MQTT client unless the URL has client-id.
	ClientID string
}

var defaultConfig = Config{
	Port:       "sim://",
	Timeout:    time.Second,
	MaxHandles: 0,
}

func init() {
	envFile := os.Getenv("RDD_ENV_FILE")
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := LoadEnvFile(envFile); err != nil {
		log.Println(err)
	}
	applyEnv(&defaultConfig, os.LookupEnv)
	defaultConfig.ClientID = ClientID()
}

// LoadEnvFile loads variables from a .env file without overriding the
// ones already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config, lookup func(string) (string, bool)) {
	if val, ok := lookup("RDD_PORT"); ok && val != "" {
		c.Port = val
	}
	if val, ok := lookup("RDD_UNITS"); ok {
		c.UnitsFile = val
	}
	if val, ok := lookup("RDD_TIMEOUT"); ok && val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Timeout = d
		} else {
			log.Printf("invalid RDD_TIMEOUT %q: %v", val, err)
		}
	}
	if val, ok := lookup("RDD_MAX_HANDLES"); ok && val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxHandles = n
		} else {
			log.Printf("invalid RDD_MAX_HANDLES %q: %v", val, err)
		}
	}
	if val, ok := lookup("RDD_MQTT_URL"); ok {
		c.MQTTURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Transport URL of the board")
	flag.StringVar(&defaultConfig.UnitsFile, "units", defaultConfig.UnitsFile, "YAML unit table")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Command timeout")
	flag.IntVar(&defaultConfig.MaxHandles, "max-handles", defaultConfig.MaxHandles, "Maximum open handles")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL for telemetry")
	flag.StringVar(&defaultConfig.ClientID, "client-id", defaultConfig.ClientID, "MQTT client ID")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Units loads the unit table.
func (c *Config) Units() (*units.Table, error) {
	if c.UnitsFile == "" {
		return units.Default(), nil
	}
	return units.LoadFile(c.UnitsFile)
}

// TransportURL returns Port, passing UnitsFile to a simulated board.
func (c *Config) TransportURL() (string, error) {
	u, err := url.Parse(c.Port)
	if err != nil {
		return "", fmt.Errorf("invalid port URL: %w", err)
	}
	if u.Scheme == "sim" && c.UnitsFile != "" {
		q := u.Query()
		if q.Get("units") == "" {
			q.Set("units", c.UnitsFile)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

// OpenTransport opens the transport to the board.
func (c *Config) OpenTransport() (transport.Transport, error) {
	rawURL, err := c.TransportURL()
	if err != nil {
		return nil, err
	}
	return transport.Open(rawURL)
}

// ClientOptions builds the MQTT client options and topic prefix from MQTTURL.
func (c *Config) ClientOptions() (*paho.ClientOptions, string, error) {
	u, err := url.Parse(c.MQTTURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid MQTT URL: %w", err)
	}
	opts, prefix := mqtt.ClientOptionsFromURL(u)
	if opts.ClientID == "" {
		opts.SetClientID(c.ClientID)
	}
	return opts, prefix, nil
}

// NewQueue creates the telemetry queue, nil if MQTTURL is empty.
func (c *Config) NewQueue() (*mqtt.Queue, error) {
	if c.MQTTURL == "" {
		return nil, nil
	}
	opts, prefix, err := c.ClientOptions()
	if err != nil {
		return nil, err
	}
	return mqtt.NewQueue(opts, prefix), nil
}

// Env is the driver with its transport and telemetry.
type Env struct {
	Config    *Config
	Transport transport.Transport
	Driver    *rdd.Driver
	Queue     *mqtt.Queue
	Publisher *publish.Publisher
}

// NewEnv creates the Env on loop.
func (c *Config) NewEnv(loop *fx.Loop) (*Env, error) {
	table, err := c.Units()
	if err != nil {
		return nil, err
	}
	tr, err := c.OpenTransport()
	if err != nil {
		return nil, err
	}
	e := &Env{Config: c, Transport: tr}
	e.Driver = rdd.New(loop, tr, table, rdd.Options{
		MaxHandles:     c.MaxHandles,
		CommandTimeout: c.Timeout,
	})
	if e.Queue, err = c.NewQueue(); err != nil {
		tr.Close()
		return nil, err
	}
	if e.Queue != nil {
		e.Publisher = publish.New(&publish.QueueSink{Queue: e.Queue}).Attach(e.Driver)
	}
	return e, nil
}

// MustNewEnv creates the Env and fails on error.
func (c *Config) MustNewEnv(loop *fx.Loop) *Env {
	e, err := c.NewEnv(loop)
	if err != nil {
		log.Fatalln(err)
	}
	return e
}

// AddToLoop implements framework.LoopAdder.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.Add(e.Driver)
	if e.Queue != nil {
		loop.AddRunnable(fx.NamedRun("telemetry", fx.RunFunc(e.runQueue)))
	}
}

func (e *Env) runQueue(ctx context.Context) error {
	if token := e.Queue.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry connect: %w", token.Error())
	}
	glog.Infof("publishing telemetry to %s", e.Config.MQTTURL)
	<-ctx.Done()
	e.Publisher.Close()
	e.Queue.Close()
	return ctx.Err()
}

// OnReady posts fn to loop once the board is ready.
func (e *Env) OnReady(loop *fx.Loop, fn func()) {
	loop.AddRunnable(fx.NamedRun("ready", fx.RunFunc(func(ctx context.Context) error {
		select {
		case <-e.Transport.Ready():
			loop.Post(fn)
		case <-ctx.Done():
		}
		return nil
	})))
}
