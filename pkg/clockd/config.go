package clockd

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/clock.go/pkg/clock"
	"github.com/robotalks/clock.go/pkg/display"
	"github.com/robotalks/clock.go/pkg/hw"
	"github.com/robotalks/clock.go/pkg/ntp"
)

// Display modes.
const (
	DisplayText = "text"
	DisplayBCD  = "bcd"
	DisplayNone = "none"
)

// DefaultResyncTicks is the number of ticks between samples.
const DefaultResyncTicks = 600

// Config is the configuration of the clock daemon.
type Config struct {
	// Server is the hostname or address of the time server.
	Server string `yaml:"server"`
	// ResyncTicks is the number of ticks between requests.
	ResyncTicks int `yaml:"resync_ticks"`
	// DNSTimeout is how long to wait for resolution before retrying.
	DNSTimeout time.Duration `yaml:"dns_timeout"`
	// PhaseWindow is the number of ticks a phase error is spread over.
	PhaseWindow int64 `yaml:"phase_window"`
	// RateTolerance rejects observed rates off nominal by more than the
	// fraction. Negative disables the check.
	RateTolerance float64 `yaml:"rate_tolerance"`
	// Zone is the time zone of the display, empty for UTC.
	Zone string `yaml:"zone"`
	// Display is one of text, bcd and none.
	Display string `yaml:"display"`
	// VerifyTicks is the number of ticks between verification probes,
	// 0 disables verification.
	VerifyTicks int `yaml:"verify_ticks"`
	// ResolvConf is where DNS servers are loaded.
	ResolvConf string `yaml:"resolv_conf"`
	// LocalAddr is the local address of the UDP endpoint.
	LocalAddr string `yaml:"local_addr"`
}

var defaultConfig = Config{
	Server:        "pool.ntp.org",
	ResyncTicks:   DefaultResyncTicks,
	DNSTimeout:    ntp.DefaultDNSTimeout,
	PhaseWindow:   clock.DefaultPhaseWindow,
	RateTolerance: clock.DefaultRateTolerance,
	Display:       DisplayText,
	ResolvConf:    hw.DefaultResolvConf,
}

func init() {
	if val := os.Getenv("CLOCK_NTP_SERVER"); val != "" {
		defaultConfig.Server = val
	}
	if val := os.Getenv("CLOCK_ZONE"); val != "" {
		defaultConfig.Zone = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Server, "server", defaultConfig.Server, "NTP server")
	flag.IntVar(&defaultConfig.ResyncTicks, "resync-ticks", defaultConfig.ResyncTicks, "Ticks between NTP requests")
	flag.DurationVar(&defaultConfig.DNSTimeout, "dns-timeout", defaultConfig.DNSTimeout, "DNS resolution timeout")
	flag.Int64Var(&defaultConfig.PhaseWindow, "phase-window", defaultConfig.PhaseWindow, "Ticks to spread phase correction over")
	flag.Float64Var(&defaultConfig.RateTolerance, "rate-tolerance", defaultConfig.RateTolerance, "Max fraction of observed rate off nominal, negative to disable")
	flag.StringVar(&defaultConfig.Zone, "zone", defaultConfig.Zone, "Display time zone, e.g. Europe/London")
	flag.StringVar(&defaultConfig.Display, "display", defaultConfig.Display, "Display mode: text, bcd or none")
	flag.IntVar(&defaultConfig.VerifyTicks, "verify-ticks", defaultConfig.VerifyTicks, "Ticks between verification probes, 0 to disable")
	flag.StringVar(&defaultConfig.ResolvConf, "resolv-conf", defaultConfig.ResolvConf, "resolv.conf for DNS servers")
	flag.StringVar(&defaultConfig.LocalAddr, "local-addr", defaultConfig.LocalAddr, "Local address of the NTP socket")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Decode applies YAML over the config. Absent keys are left unchanged.
func (c *Config) Decode(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %v", err)
	}
	return nil
}

// LoadFile applies a YAML file over the default config.
// Flags given on the command line take precedence over the file.
func LoadFile(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %v", err)
	}
	explicit := make(map[string]string)
	flag.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})
	if err = defaultConfig.Decode(data); err != nil {
		return err
	}
	for name, val := range explicit {
		flag.Set(name, val)
	}
	return nil
}

// Validate checks the config.
func (c *Config) Validate() error {
	switch {
	case c.Server == "":
		return fmt.Errorf("server must be specified")
	case c.ResyncTicks <= 0:
		return fmt.Errorf("resync-ticks must be positive: %d", c.ResyncTicks)
	case c.PhaseWindow <= 0:
		return fmt.Errorf("phase-window must be positive: %d", c.PhaseWindow)
	case c.VerifyTicks < 0:
		return fmt.Errorf("verify-ticks must not be negative: %d", c.VerifyTicks)
	}
	switch c.Display {
	case DisplayText, DisplayBCD, DisplayNone:
	default:
		return fmt.Errorf("unknown display: %q", c.Display)
	}
	return nil
}

// NewDisplay creates the configured display writing to out.
// It returns nil for DisplayNone.
func (c *Config) NewDisplay(out io.Writer) (display.Display, error) {
	var d display.Display
	switch c.Display {
	case DisplayText:
		d = &display.Text{Out: out}
	case DisplayBCD:
		d = &display.BCD{Out: out}
	case DisplayNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown display: %q", c.Display)
	}
	if c.Zone != "" {
		z, err := display.NewZone(d, c.Zone)
		if err != nil {
			return nil, err
		}
		d = z
	}
	return &display.Last{Display: d}, nil
}

// NewSystemHost creates the host capabilities with callbacks delivered
// through d.
func (c *Config) NewSystemHost(d hw.Dispatcher) (hw.Host, error) {
	resolver, err := hw.NewDNSResolver(d, c.ResolvConf)
	if err != nil {
		return hw.Host{}, fmt.Errorf("load %s: %v", c.ResolvConf, err)
	}
	return hw.Host{
		Clock:    hw.NewSystemClock(),
		Alarms:   hw.NewSystemAlarms(d),
		Net:      &hw.UDPNet{Dispatcher: d, LocalAddr: c.LocalAddr},
		Resolver: resolver,
	}, nil
}
