package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rdd.go/pkg/api/hello"
	"github.com/robotalks/rdd.go/pkg/env"
	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
	"github.com/robotalks/rdd.go/pkg/sequencer"

	_ "github.com/robotalks/rdd.go/pkg/transport/all"
)

var (
	unitName  = "Hello:0"
	greeting  = "blah, blah"
	interval  = time.Second
	exitAfter time.Duration
)

func init() {
	env.SetupFlags()
	flag.StringVar(&unitName, "unit", unitName, "Hello unit to open")
	flag.StringVar(&greeting, "greeting", greeting, "New greeting")
	flag.DurationVar(&interval, "interval", interval, "Interval of the continuous greeting")
	flag.DurationVar(&exitAfter, "exit-after", exitAfter, "Close and exit after watching the greeting this long, 0 watches forever")
}

func main() {
	flag.Parse()

	loop := fx.NewLoop()
	e := env.Default().MustNewEnv(loop)
	api := hello.New(e.Driver)
	seq := sequencer.New(loop, api, rdd.EventOpen, rdd.EventRead, rdd.EventWrite, rdd.EventClose)

	ctx, cancel := context.WithCancel(context.Background())
	seq.On(sequencer.EventError, func(res *rdd.Result) {
		glog.Errorf("Error %s", res.Status)
		cancel()
	})
	seq.On(sequencer.EventDone, func(*rdd.Result) {
		glog.Info("Goodbye.")
		cancel()
	})

	var handle handles.ID
	steps := []sequencer.Step{
		func(*rdd.Result) {
			glog.Info("Begin step processing.")
			api.Open(unitName, wire.Force, 0, nil)
		},
		func(res *rdd.Result) {
			glog.Infof("Opened %s with handle %d.", res.UnitName, res.Handle)
			handle = res.Handle
			api.GetGreeting(handle, nil)
		},
		func(res *rdd.Result) {
			glog.Infof("%s says %s", unitName, res.Data)
			api.GetGreeting(handle, nil)
		},
		func(res *rdd.Result) {
			glog.Infof("%s says %s", unitName, res.Data)
			api.SetGreeting(handle, greeting, nil)
		},
		func(*rdd.Result) {
			glog.Info("New greeting has been set.")
			api.GetGreeting(handle, nil)
		},
		func(res *rdd.Result) {
			glog.Infof("%s says %s", unitName, res.Data)
			api.SetIntervals(handle, 0, uint32(interval/time.Millisecond), nil)
		},
		func(*rdd.Result) {
			glog.Info("New intervals have been set.")
			api.GetContinuousGreeting(handle, func(res *rdd.Result) {
				if res.OK() {
					glog.Infof("%s says %s", unitName, res.Data)
				}
			}, nil)
		},
		func(*rdd.Result) {
			glog.Info("Continuous greeting started.")
			if exitAfter > 0 {
				seq.After(exitAfter, func() { api.Close(handle, nil) })
			}
		},
	}
	e.OnReady(loop, func() {
		glog.Info("Board is ready.")
		if err := seq.Start(steps); err != nil {
			log.Fatalln(err)
		}
	})
	loop.Add(e)

	if err := fx.NewRunnerWith(ctx).HandleSignals().Go(loop).Wait(); err != nil {
		log.Fatalln(err)
	}
}
