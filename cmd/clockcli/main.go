package main

import (
	"github.com/robotalks/clock.go/pkg/cli/sh"
	env "github.com/robotalks/clock.go/pkg/bus/env/connector"

	_ "github.com/robotalks/clock.go/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
