// Package device sets up the bus for a device daemon.
package device

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	fx "github.com/robotalks/clock.go/pkg/framework"
	"github.com/robotalks/clock.go/pkg/bus"
	"github.com/robotalks/clock.go/pkg/bus/comm"
	"github.com/robotalks/clock.go/pkg/bus/comm/mqtt"
	"github.com/robotalks/clock.go/pkg/bus/comm/stream"
	"github.com/robotalks/clock.go/pkg/bus/comm/websocket"
	"github.com/robotalks/clock.go/pkg/bus/env"
)

// Config provides common options to setup an env for devices.
type Config struct {
	Info bus.DeviceInfo

	// MQTTBrokerURL specifies the MQTT broker to use.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	// WebsocketAddr is the listening address of websocket endpoint.
	WebsocketAddr string
	// TCPAddr is the listening address of TCP endpoint.
	TCPAddr string
	// Announce enables mDNS announcement of websocket and TCP endpoints.
	Announce bool
}

var defaultConfig = Config{}

func init() {
	if val := os.Getenv("CLOCK_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("CLOCK_WS_ADDR"); val != "" {
		defaultConfig.WebsocketAddr = val
	}
	if val := os.Getenv("CLOCK_TCP_ADDR"); val != "" {
		defaultConfig.TCPAddr = val
	}
	defaultConfig.Info.Ref.ID = env.AppMachineID("clock.go")
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Info.Ref.Type, "type", defaultConfig.Info.Ref.Type, "Device type")
	flag.StringVar(&defaultConfig.Info.Ref.ID, "id", defaultConfig.Info.Ref.ID, "Device ID")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.WebsocketAddr, "ws-listen", defaultConfig.WebsocketAddr, "Websocket listening address")
	flag.StringVar(&defaultConfig.TCPAddr, "tcp-listen", defaultConfig.TCPAddr, "TCP listening address")
	flag.BoolVar(&defaultConfig.Announce, "mdns", defaultConfig.Announce, "Announce endpoints over mDNS")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// HasEndpoints reports whether any way of reaching the device is configured.
func (c *Config) HasEndpoints() bool {
	return c.MQTTBrokerURL != "" || c.WebsocketAddr != "" || c.TCPAddr != ""
}

// SetDeviceType should be called in init with basic info about the device.
func SetDeviceType(typ string, meta bus.DeviceMeta) {
	defaultConfig.Info.Ref.Type = typ
	defaultConfig.Info.Meta = meta
}

// Env is the env for devices.
type Env struct {
	Config       *Config
	RegistryURLs []string
	Registrar    *comm.RegistrarMux
	Hub          *comm.Hub

	adders    []fx.LoopAdder
	announcer *env.Announcer
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewEnv creates Env from config.
// Listeners are bound here so the actual ports are known.
func (c *Config) NewEnv() (*Env, error) {
	if !c.Info.Ref.IsValid() {
		return nil, fmt.Errorf("device type and id must be specified")
	}
	e := &Env{
		Config:    c,
		Registrar: &comm.RegistrarMux{},
	}
	if c.MQTTBrokerURL != "" {
		reg, err := mqtt.NewRegistrar(c.MQTTBrokerURL, c.Info)
		if err != nil {
			return nil, fmt.Errorf("create MQTT registrar error: %v", err)
		}
		e.Registrar.Add(reg)
		e.RegistryURLs = append(e.RegistryURLs, c.MQTTBrokerURL)
	}

	announcer := &env.Announcer{Info: c.Info}
	if c.WebsocketAddr != "" || c.TCPAddr != "" {
		e.Hub = comm.NewHub()
		e.Registrar.Add(e.Hub)
	}
	if c.WebsocketAddr != "" {
		server := &websocket.Server{Addr: c.WebsocketAddr, Path: websocket.DefaultPath, Hub: e.Hub}
		if err := server.Listen(); err != nil {
			return nil, fmt.Errorf("websocket listen error: %v", err)
		}
		e.adders = append(e.adders, server)
		e.addEndpoint(announcer, "ws", server.ListenAddr(), server.Path)
	}
	if c.TCPAddr != "" {
		listener := &stream.Listener{Addr: c.TCPAddr, Hub: e.Hub}
		if err := listener.Listen(); err != nil {
			return nil, fmt.Errorf("tcp listen error: %v", err)
		}
		e.adders = append(e.adders, listener)
		e.addEndpoint(announcer, "tcp", listener.ListenAddr(), "")
	}
	if c.Announce && len(announcer.Endpoints) > 0 {
		e.announcer = announcer
	}

	if e.Registrar.Len() == 0 {
		return nil, fmt.Errorf("at least one registrar is required")
	}
	return e, nil
}

func (e *Env) addEndpoint(a *env.Announcer, scheme string, addr net.Addr, path string) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return
	}
	ep := env.Endpoint{Scheme: scheme, Port: tcpAddr.Port, Path: path}
	a.Endpoints = append(a.Endpoints, ep)
	e.RegistryURLs = append(e.RegistryURLs, scheme+"://"+addr.String()+path)
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	e, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return e
}

// AddToLoop adds controllers/runners to loop.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.Add(e.Registrar)
	loop.Add(e.adders...)
	if e.announcer != nil {
		loop.AddRunnable(e.announcer)
	}
	loop.Add(&comm.UnsupportedCommands{})
}
