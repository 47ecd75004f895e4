package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/clock.go/pkg/bus"
	env "github.com/robotalks/clock.go/pkg/bus/env/device"
	"github.com/robotalks/clock.go/pkg/clockd"
	fx "github.com/robotalks/clock.go/pkg/framework"
)

var configFile string

func init() {
	env.SetDeviceType("ntpclock", bus.DeviceMeta{Description: "NTP Disciplined Clock"})
	env.SetupFlags()
	clockd.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML config file, flags override it")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if configFile != "" {
		if err := clockd.LoadFile(configFile); err != nil {
			glog.Exit(err)
		}
	}
	conf := clockd.NewConfig()
	if err := conf.Validate(); err != nil {
		glog.Exit(err)
	}

	ctl := clockd.New(conf)
	d, err := conf.NewDisplay(os.Stdout)
	if err != nil {
		glog.Exit(err)
	}
	ctl.Display = d

	loop := fx.NewLoop()
	loop.Interval = time.Second
	if devConf := env.NewConfig(); devConf.HasEndpoints() {
		e := devConf.MustNewEnv()
		for _, u := range e.RegistryURLs {
			glog.Infof("serving on %s", u)
		}
		loop.Add(e)
		ctl.Registrar = e.Registrar
	}
	// the controller must be in the loop before host callbacks dispatch.
	loop.Add(ctl)
	host, err := conf.NewSystemHost(ctl)
	if err != nil {
		glog.Exit(err)
	}
	ctl.Init(host)

	if err := fx.Run(loop); err != nil {
		glog.Exit(err)
	}
}
