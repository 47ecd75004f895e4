// Package probe queries a time server independently of the disciplined
// clock, used to verify how far the clock is off.
package probe

import (
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// DefaultTimeout is the query timeout when Prober.Timeout is not set.
const DefaultTimeout = 5 * time.Second

// Result is the outcome of a probe.
type Result struct {
	Server string
	// Offset is the offset of the host clock from the server.
	Offset  time.Duration
	RTT     time.Duration
	Stratum uint8
	// Local is the host time when the result was received.
	Local time.Time
}

// ServerTime returns the server time at the host time t.
func (r *Result) ServerTime(t time.Time) time.Time {
	return t.Add(r.Offset)
}

// OffsetOf returns how far reported is ahead of the server, both taken at
// the host time at.
func (r *Result) OffsetOf(reported, at time.Time) time.Duration {
	return reported.Sub(r.ServerTime(at))
}

// Prober queries a server with full round-trip compensation.
type Prober struct {
	Server  string
	Timeout time.Duration

	query func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
	now   func() time.Time
}

// New creates a Prober.
func New(server string) *Prober {
	return &Prober{Server: server}
}

// Probe sends a query and validates the response. It blocks.
func (p *Prober) Probe() (*Result, error) {
	query, now := p.query, p.now
	if query == nil {
		query = ntp.QueryWithOptions
	}
	if now == nil {
		now = time.Now
	}
	timeout := p.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	resp, err := query(p.Server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("probe %s: %v", p.Server, err)
	}
	if err = resp.Validate(); err != nil {
		return nil, fmt.Errorf("probe %s: %v", p.Server, err)
	}
	return &Result{
		Server:  p.Server,
		Offset:  resp.ClockOffset,
		RTT:     resp.RTT,
		Stratum: resp.Stratum,
		Local:   now(),
	}, nil
}
