// Package connector configures how clients reach a device.
package connector

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/robotalks/clock.go/pkg/bus"
	"github.com/robotalks/clock.go/pkg/bus/comm/mqtt"
	"github.com/robotalks/clock.go/pkg/bus/comm/stream"
	"github.com/robotalks/clock.go/pkg/bus/comm/websocket"
	"github.com/robotalks/clock.go/pkg/bus/env"
)

// Config provides common options to setup Connectors.
type Config struct {
	Ref bus.DeviceRef

	// RegistryURL specifies how devices are found, e.g.
	//   mqtt://host:port/topic-prefix
	//   ws://host:port/bus
	//   tcp://host:port
	//   mdns://
	RegistryURL string
}

var defaultConfig = Config{
	Ref:         bus.DeviceRef{Type: "ntpclock"},
	RegistryURL: "mqtt://localhost:1883/clock/",
}

func init() {
	if val := os.Getenv("CLOCK_TYPE"); val != "" {
		defaultConfig.Ref.Type = val
	}
	if val := os.Getenv("CLOCK_ID"); val != "" {
		defaultConfig.Ref.ID = val
	}
	if val := os.Getenv("CLOCK_REGISTRY_URL"); val != "" {
		defaultConfig.RegistryURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Ref.Type, "device-type", defaultConfig.Ref.Type, "Device type to connect.")
	flag.StringVar(&defaultConfig.Ref.ID, "device-id", defaultConfig.Ref.ID, "Device ID to connect.")
	flag.StringVar(&defaultConfig.RegistryURL, "registry", defaultConfig.RegistryURL, "Device registry URL (mqtt, ws, tcp or mdns).")
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

// NewConnector creates a Connector using current config.
func (c *Config) NewConnector() (bus.Connector, error) {
	parsedURL, err := url.Parse(c.RegistryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid registry URL: %v", err)
	}
	switch parsedURL.Scheme {
	case "mqtt", "mqtts":
		return mqtt.NewConnector(c.RegistryURL)
	case "ws", "wss", "tcp":
		return &DialConnector{URL: parsedURL}, nil
	case "mdns":
		return &MDNSConnector{}, nil
	default:
		return nil, fmt.Errorf("unknown registry URL scheme: %q", parsedURL.Scheme)
	}
}

// MustNewConnector creates a Connector and fails on error.
func (c *Config) MustNewConnector() bus.Connector {
	conn, err := c.NewConnector()
	if err != nil {
		log.Fatalln(err)
	}
	return conn
}

// Connect directly connects to the device.
func (c *Config) Connect(ctx context.Context) (bus.DeviceConn, error) {
	connector, err := c.NewConnector()
	if err != nil {
		return nil, err
	}
	if _, direct := connector.(*DialConnector); !direct && !c.Ref.IsValid() {
		return nil, fmt.Errorf("device type and id must be specified")
	}
	return connector.Connect(ctx, c.Ref)
}

// MustConnect connects to the device or fails.
func (c *Config) MustConnect(ctx context.Context) bus.DeviceConn {
	conn, err := c.Connect(ctx)
	if err != nil {
		log.Fatalln(err)
	}
	return conn
}

// DialConnector connects to a device endpoint directly.
// The endpoint serves exactly one device.
type DialConnector struct {
	URL *url.URL
}

// Discover implements bus.Connector.
// The device behind the endpoint can't be enumerated, so it reports the
// endpoint itself.
func (c *DialConnector) Discover(context.Context) ([]bus.DeviceInfo, error) {
	return []bus.DeviceInfo{{
		Ref:  bus.DeviceRef{Type: c.URL.Scheme, ID: c.URL.Host},
		Meta: bus.DeviceMeta{Description: c.URL.String()},
	}}, nil
}

// Connect implements bus.Connector.
func (c *DialConnector) Connect(ctx context.Context, _ bus.DeviceRef) (bus.DeviceConn, error) {
	return Dial(ctx, c.URL)
}

// Dial connects to a device endpoint by URL.
func Dial(ctx context.Context, u *url.URL) (bus.DeviceConn, error) {
	switch u.Scheme {
	case "ws", "wss":
		if u.Path == "" {
			u.Path = websocket.DefaultPath
		}
		return websocket.Dial(ctx, u.String())
	case "tcp":
		return stream.Dial(ctx, u.Host)
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme: %q", u.Scheme)
	}
}

// MDNSConnector finds devices announced over mDNS.
type MDNSConnector struct {
	Timeout time.Duration
}

// Discover implements bus.Connector.
func (c *MDNSConnector) Discover(ctx context.Context) ([]bus.DeviceInfo, error) {
	services, err := env.Browse(ctx, c.Timeout)
	if err != nil {
		return nil, err
	}
	seen := make(map[bus.DeviceRef]bool)
	var infos []bus.DeviceInfo
	for _, svc := range services {
		if !seen[svc.Info.Ref] {
			seen[svc.Info.Ref] = true
			infos = append(infos, svc.Info)
		}
	}
	return infos, nil
}

// Connect implements bus.Connector.
func (c *MDNSConnector) Connect(ctx context.Context, ref bus.DeviceRef) (bus.DeviceConn, error) {
	services, err := env.Browse(ctx, c.Timeout)
	if err != nil {
		return nil, err
	}
	for _, svc := range services {
		if svc.Info.Ref != ref {
			continue
		}
		u, err := url.Parse(svc.Endpoint.URL())
		if err != nil {
			continue
		}
		return Dial(ctx, u)
	}
	return nil, fmt.Errorf("device %s not found", ref.Name())
}
