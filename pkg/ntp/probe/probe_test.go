package probe

import (
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	local := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New("time.example.org")
	p.now = func() time.Time { return local }
	p.query = func(host string, opt ntp.QueryOptions) (*ntp.Response, error) {
		require.Equal(t, "time.example.org", host)
		require.Equal(t, DefaultTimeout, opt.Timeout)
		return &ntp.Response{
			Time:          local.Add(2 * time.Second),
			ReferenceTime: local,
			ClockOffset:   2 * time.Second,
			RTT:           10 * time.Millisecond,
			Stratum:       2,
		}, nil
	}
	r, err := p.Probe()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, r.Offset)
	require.Equal(t, uint8(2), r.Stratum)
	require.Equal(t, local.Add(2*time.Second), r.ServerTime(local))
	require.Equal(t, -1500*time.Millisecond, r.OffsetOf(local.Add(500*time.Millisecond), local))
}

func TestProbeInvalid(t *testing.T) {
	p := New("time.example.org")
	p.query = func(string, ntp.QueryOptions) (*ntp.Response, error) {
		return &ntp.Response{Stratum: 0}, nil
	}
	_, err := p.Probe()
	require.Error(t, err)

	p.query = func(string, ntp.QueryOptions) (*ntp.Response, error) {
		return nil, errors.New("timeout")
	}
	_, err = p.Probe()
	require.Error(t, err)
}
