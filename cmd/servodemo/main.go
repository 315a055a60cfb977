package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rdd.go/pkg/api/servo"
	"github.com/robotalks/rdd.go/pkg/env"
	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
	"github.com/robotalks/rdd.go/pkg/sequencer"

	_ "github.com/robotalks/rdd.go/pkg/transport/all"
)

var (
	unitName = "Servo:0"
	pin      = 3
	pause    = time.Second
)

func init() {
	env.SetupFlags()
	flag.StringVar(&unitName, "unit", unitName, "Servo unit to open")
	flag.IntVar(&pin, "pin", pin, "Output pin of the servo")
	flag.DurationVar(&pause, "pause", pause, "Pause between moves")
}

func main() {
	flag.Parse()

	loop := fx.NewLoop()
	e := env.Default().MustNewEnv(loop)
	api := servo.New(e.Driver)
	seq := sequencer.New(loop, api)

	ctx, cancel := context.WithCancel(context.Background())
	seq.On(sequencer.EventError, func(res *rdd.Result) {
		glog.Errorf("Error %s", res.Status)
		cancel()
	})
	seq.On(sequencer.EventDone, func(res *rdd.Result) {
		glog.Infof("Closed handle %d. Goodbye.", res.Handle)
		cancel()
	})

	var handle handles.ID
	moveTo := func(deg int16) sequencer.Step {
		return func(*rdd.Result) {
			seq.After(pause, func() { api.To(handle, deg, nil) })
		}
	}
	steps := []sequencer.Step{
		func(*rdd.Result) {
			glog.Info("Begin step processing.")
			api.Open(unitName, wire.Force, 0, nil)
		},
		func(res *rdd.Result) {
			glog.Infof("Opened %s with handle %d.", res.UnitName, res.Handle)
			handle = res.Handle
			api.Attach(handle, servo.Attachment{Pin: byte(pin)}, nil)
		},
		func(*rdd.Result) {
			glog.Infof("%s attached to servo.", unitName)
			api.To(handle, 0, nil)
		},
		moveTo(180),
		moveTo(0),
		func(*rdd.Result) {
			glog.Info("Requested servo move to 0.")
			seq.After(pause, func() { api.Close(handle, nil) })
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
