package ntp

import (
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/robotalks/clock.go/pkg/hw"
)

// DefaultDNSTimeout is how long Bind waits for a pending resolution
// before starting over.
const DefaultDNSTimeout = 10 * time.Second

// Callback receives validated time samples.
type Callback interface {
	OnSample(unixSeconds int64, fraction uint32)
}

// CallbackFunc is func type of Callback.
type CallbackFunc func(unixSeconds int64, fraction uint32)

// OnSample implements Callback.
func (f CallbackFunc) OnSample(unixSeconds int64, fraction uint32) {
	f(unixSeconds, fraction)
}

// Stats are counters of Client.
type Stats struct {
	Requests       uint64
	Replies        uint64
	InvalidReplies uint64
	DNSAttempts    uint64
	DNSTimeouts    uint64
	DNSFailures    uint64
}

// Client queries a time server.
// It is not safe for concurrent use.
type Client struct {
	// DNSTimeout overrides DefaultDNSTimeout when set.
	DNSTimeout time.Duration
	Notifier   StateNotifier

	callback Callback
	host     hw.Host
	endpoint hw.UDPEndpoint

	state  State
	server string
	addr   net.IP
	alarm  hw.AlarmID
	stats  Stats
	// resolving is set while a lookup of server is outstanding.
	resolving bool
}

// NewClient creates a client which is not bound to any server.
// If the UDP endpoint can't be allocated, the client stays in StateFailed.
func NewClient(cb Callback, host hw.Host) *Client {
	c := &Client{callback: cb, host: host}
	ep, err := host.Net.NewUDPEndpoint()
	if err != nil {
		glog.Errorf("ntp client: create endpoint: %v", err)
		c.state = StateFailed
		return c
	}
	c.endpoint = ep
	return c
}

// State returns the current state.
func (c *Client) State() State {
	return c.state
}

// Stats returns the counters.
func (c *Client) Stats() Stats {
	return c.stats
}

// Server returns the bound hostname.
func (c *Client) Server() string {
	return c.server
}

// Addr returns the bound address, nil if unresolved.
func (c *Client) Addr() net.IP {
	return c.addr
}

// Bind resolves server and sends a request once it's resolved.
func (c *Client) Bind(server string) {
	if c.state == StateFailed {
		return
	}
	glog.Infof("ntp client: binding to %s", server)
	c.server = server
	c.resolving = false
	c.endpoint.SetReceiver(c.handleDatagram)
	c.cancelAlarm()
	c.stats.DNSAttempts++

	addr, err := c.host.Resolver.Resolve(server, c.dnsFound)
	switch err {
	case nil:
		c.addr = addr
		c.Request()
	case hw.ErrInProgress:
		c.resolving = true
		c.setState(StateWaitingOnDNS)
		c.alarm = c.host.Alarms.AddAlarm(c.dnsTimeout(), c.dnsTimedOut)
	default:
		glog.Warningf("ntp client: resolve %s: %v", server, err)
		c.stats.DNSFailures++
		c.setState(StateDNSFailed)
	}
}

// BindAddr binds to addr directly and sends a request.
func (c *Client) BindAddr(addr net.IP) {
	if c.state == StateFailed {
		return
	}
	c.server = addr.String()
	c.addr = addr
	c.resolving = false
	c.endpoint.SetReceiver(c.handleDatagram)
	c.cancelAlarm()
	c.Request()
}

// Request sends a request to the bound server.
func (c *Client) Request() error {
	if c.state == StateFailed {
		return ErrFailed
	}
	if c.addr == nil {
		return ErrNotBound
	}
	glog.V(1).Infof("ntp client: request %s", c.addr)
	if err := c.endpoint.SendTo(c.addr, Port, NewRequest()); err != nil {
		glog.Warningf("ntp client: send to %s: %v", c.addr, err)
		return err
	}
	c.stats.Requests++
	c.setState(StateWaitingOnReply)
	return nil
}

func (c *Client) dnsTimeout() time.Duration {
	if c.DNSTimeout > 0 {
		return c.DNSTimeout
	}
	return DefaultDNSTimeout
}

func (c *Client) cancelAlarm() {
	if c.alarm != 0 {
		c.host.Alarms.CancelAlarm(c.alarm)
		c.alarm = 0
	}
}

func (c *Client) dnsTimedOut() {
	c.alarm = 0
	if !c.resolving {
		return
	}
	c.stats.DNSTimeouts++
	glog.Warningf("ntp client: resolve %s timed out", c.server)
	c.Bind(c.server)
}

func (c *Client) dnsFound(host string, addr net.IP) {
	// answers of superseded lookups.
	if !c.resolving || host != c.server {
		return
	}
	c.resolving = false
	c.cancelAlarm()
	if addr == nil {
		glog.Warningf("ntp client: resolve %s failed", host)
		c.stats.DNSFailures++
		c.setState(StateDNSFailed)
		return
	}
	glog.Infof("ntp client: %s resolved to %s", host, addr)
	c.addr = addr
	c.Request()
}

func (c *Client) handleDatagram(addr net.IP, port int, data []byte) {
	if c.state == StateFailed {
		return
	}
	sample, err := ParseReply(c.addr, addr, port, data)
	if err != nil {
		glog.V(1).Infof("ntp client: reply from %s:%d: %v", addr, port, err)
		c.stats.InvalidReplies++
		c.setState(StateReplyInvalid)
		return
	}
	c.stats.Replies++
	c.callback.OnSample(sample.UnixSeconds(), sample.Fraction)
	c.setState(StateIdle)
}

func (c *Client) setState(state State) {
	if c.state == state {
		return
	}
	c.state = state
	if c.Notifier != nil {
		c.Notifier.StateChanged(state)
	}
}
