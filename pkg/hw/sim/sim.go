// Package sim provides deterministic doubles of the hw capabilities.
// Time only moves when the test advances it, datagrams are captured
// instead of sent, and name resolution completes on demand.
package sim

import (
	"errors"
	"net"
	"sort"
	"time"

	"github.com/robotalks/clock.go/pkg/hw"
)

// Clock is a manually advanced hw.Clock and hw.Alarms.
type Clock struct {
	now    hw.Instant
	lastID hw.AlarmID
	alarms []*alarm
}

type alarm struct {
	id  hw.AlarmID
	due hw.Instant
	fn  func()
}

// NewClock creates a Clock at instant zero.
func NewClock() *Clock {
	return &Clock{}
}

// Now implements hw.Clock.
func (c *Clock) Now() hw.Instant {
	return c.now
}

// AddAlarm implements hw.Alarms.
func (c *Clock) AddAlarm(delay time.Duration, fn func()) hw.AlarmID {
	c.lastID++
	c.alarms = append(c.alarms, &alarm{id: c.lastID, due: c.now + hw.Instant(delay), fn: fn})
	sort.SliceStable(c.alarms, func(i, j int) bool { return c.alarms[i].due < c.alarms[j].due })
	return c.lastID
}

// CancelAlarm implements hw.Alarms.
func (c *Clock) CancelAlarm(id hw.AlarmID) bool {
	for n, a := range c.alarms {
		if a.id == id {
			c.alarms = append(c.alarms[:n], c.alarms[n+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the number of armed alarms.
func (c *Clock) Pending() int {
	return len(c.alarms)
}

// Advance moves time forward by d, firing due alarms in order.
func (c *Clock) Advance(d time.Duration) {
	c.Set(c.now + hw.Instant(d))
}

// AdvanceMicros moves time forward by us microseconds.
func (c *Clock) AdvanceMicros(us int64) {
	c.Set(c.now.DelayedByMicros(us))
}

// Set moves time to t, firing due alarms in order.
// Time never moves backwards.
func (c *Clock) Set(t hw.Instant) {
	for len(c.alarms) > 0 && !t.Before(c.alarms[0].due) {
		a := c.alarms[0]
		c.alarms = c.alarms[1:]
		if c.now.Before(a.due) {
			c.now = a.due
		}
		a.fn()
	}
	if c.now.Before(t) {
		c.now = t
	}
}

// Datagram is a captured datagram.
type Datagram struct {
	Addr net.IP
	Port int
	Data []byte
}

// ErrEndpointUnavailable is returned when Network.Fail is set.
var ErrEndpointUnavailable = errors.New("endpoint unavailable")

// Network is a hw.Transport whose endpoints capture sent datagrams.
type Network struct {
	// Fail makes NewUDPEndpoint fail.
	Fail bool

	Endpoints []*Endpoint
}

// NewUDPEndpoint implements hw.Transport.
func (n *Network) NewUDPEndpoint() (hw.UDPEndpoint, error) {
	if n.Fail {
		return nil, ErrEndpointUnavailable
	}
	ep := &Endpoint{}
	n.Endpoints = append(n.Endpoints, ep)
	return ep, nil
}

// Endpoint is a captured hw.UDPEndpoint.
type Endpoint struct {
	Sent   []Datagram
	Closed bool
	// SendErr is returned by SendTo when set.
	SendErr error

	receiver hw.DatagramHandler
}

// SetReceiver implements hw.UDPEndpoint.
func (e *Endpoint) SetReceiver(h hw.DatagramHandler) {
	e.receiver = h
}

// SendTo implements hw.UDPEndpoint.
func (e *Endpoint) SendTo(addr net.IP, port int, data []byte) error {
	if e.SendErr != nil {
		return e.SendErr
	}
	e.Sent = append(e.Sent, Datagram{Addr: addr, Port: port, Data: append([]byte(nil), data...)})
	return nil
}

// Close implements hw.UDPEndpoint.
func (e *Endpoint) Close() error {
	e.Closed = true
	return nil
}

// Deliver injects a received datagram. It returns false if no receiver
// is registered.
func (e *Endpoint) Deliver(addr net.IP, port int, data []byte) bool {
	if e.receiver == nil {
		return false
	}
	e.receiver(addr, port, data)
	return true
}

// LastSent returns the most recent datagram, nil if nothing is sent.
func (e *Endpoint) LastSent() *Datagram {
	if len(e.Sent) == 0 {
		return nil
	}
	return &e.Sent[len(e.Sent)-1]
}

// Resolver is a hw.Resolver completing on demand.
type Resolver struct {
	// Known hosts resolve synchronously.
	Known map[string]net.IP
	// Errors makes Resolve fail immediately for the host.
	Errors map[string]error
	// Lookups counts Resolve calls per host.
	Lookups map[string]int

	pending map[string][]hw.ResolveFunc
}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{
		Known:   make(map[string]net.IP),
		Errors:  make(map[string]error),
		Lookups: make(map[string]int),
		pending: make(map[string][]hw.ResolveFunc),
	}
}

// Resolve implements hw.Resolver.
func (r *Resolver) Resolve(host string, found hw.ResolveFunc) (net.IP, error) {
	r.Lookups[host]++
	if err := r.Errors[host]; err != nil {
		return nil, err
	}
	if addr, ok := r.Known[host]; ok {
		return addr, nil
	}
	r.pending[host] = append(r.pending[host], found)
	return nil, hw.ErrInProgress
}

// Pending returns the number of outstanding lookups of host.
func (r *Resolver) Pending(host string) int {
	return len(r.pending[host])
}

// Complete finishes outstanding lookups of host with addr.
// A nil addr completes them as failed.
func (r *Resolver) Complete(host string, addr net.IP) int {
	fns := r.pending[host]
	delete(r.pending, host)
	for _, fn := range fns {
		fn(host, addr)
	}
	return len(fns)
}

// Host bundles the doubles into a hw.Host.
type Host struct {
	Clock    *Clock
	Network  *Network
	Resolver *Resolver
}

// NewHost creates a Host with fresh doubles.
func NewHost() *Host {
	return &Host{
		Clock:    NewClock(),
		Network:  &Network{},
		Resolver: NewResolver(),
	}
}

// HW returns the hw.Host view.
func (h *Host) HW() hw.Host {
	return hw.Host{
		Clock:    h.Clock,
		Alarms:   h.Clock,
		Net:      h.Network,
		Resolver: h.Resolver,
	}
}

// Endpoint returns the most recently created endpoint.
func (h *Host) Endpoint() *Endpoint {
	if n := len(h.Network.Endpoints); n > 0 {
		return h.Network.Endpoints[n-1]
	}
	return nil
}
