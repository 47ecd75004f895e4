package clockd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/clock.go/pkg/display"
)

func TestConfigDecode(t *testing.T) {
	conf := NewConfig()
	require.NoError(t, conf.Decode([]byte(`
server: time.example.org
resync_ticks: 60
dns_timeout: 3s
rate_tolerance: -1
zone: Europe/London
display: bcd
`)))
	require.Equal(t, "time.example.org", conf.Server)
	require.Equal(t, 60, conf.ResyncTicks)
	require.Equal(t, 3*time.Second, conf.DNSTimeout)
	require.Equal(t, -1.0, conf.RateTolerance)
	require.Equal(t, "Europe/London", conf.Zone)
	require.Equal(t, DisplayBCD, conf.Display)
	// untouched.
	require.Equal(t, int64(1000), conf.PhaseWindow)
	require.NoError(t, conf.Validate())

	require.Error(t, conf.Decode([]byte("resync_ticks: [")))
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"server", func(c *Config) { c.Server = "" }},
		{"resync", func(c *Config) { c.ResyncTicks = 0 }},
		{"phase-window", func(c *Config) { c.PhaseWindow = -1 }},
		{"verify", func(c *Config) { c.VerifyTicks = -1 }},
		{"display", func(c *Config) { c.Display = "lcd" }},
	}
	require.NoError(t, NewConfig().Validate())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := NewConfig()
			tc.modify(conf)
			require.Error(t, conf.Validate())
		})
	}
}

func TestConfigNewDisplay(t *testing.T) {
	var buf bytes.Buffer
	conf := NewConfig()
	conf.Display = DisplayNone
	d, err := conf.NewDisplay(&buf)
	require.NoError(t, err)
	require.Nil(t, d)

	conf.Display = DisplayText
	conf.Zone = "UTC"
	d, err = conf.NewDisplay(&buf)
	require.NoError(t, err)
	require.NoError(t, d.Update(time.Date(2024, 7, 1, 12, 34, 56, 0, time.FixedZone("X", 3600))))
	require.Equal(t, "11:34:56\n", buf.String())
	require.NoError(t, display.Blank(d))
	require.Equal(t, "11:34:56\n"+display.Placeholder+"\n", buf.String())

	conf.Zone = "No/Such_Zone"
	_, err = conf.NewDisplay(&buf)
	require.Error(t, err)
}
