package main

import (
	"github.com/robotalks/rdd.go/pkg/cli/sh"
	"github.com/robotalks/rdd.go/pkg/env"

	_ "github.com/robotalks/rdd.go/pkg/cli/cmds/all"
	_ "github.com/robotalks/rdd.go/pkg/transport/all"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
