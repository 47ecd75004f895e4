// Package hw defines the host capabilities the clock runs on: a monotonic
// timer, one-shot alarms, a UDP endpoint and a DNS resolver.
//
// Every capability is an interface so the wire client and the clock engine
// can be driven by the host implementations in this package or by the
// deterministic doubles in package sim.
package hw

import (
	"errors"
	"net"
	"time"
)

// Instant is a reading of the monotonic timer. It is the elapsed time since
// an arbitrary origin and has no relation to wall-clock time.
type Instant time.Duration

// DelayedByMicros returns the instant us microseconds after t.
func (t Instant) DelayedByMicros(us int64) Instant {
	return t + Instant(us*int64(time.Microsecond))
}

// DiffMicros returns the microseconds elapsed from t to to.
// It is negative when to is before t.
func (t Instant) DiffMicros(to Instant) int64 {
	return int64(to-t) / int64(time.Microsecond)
}

// Sub returns the duration t-u.
func (t Instant) Sub(u Instant) time.Duration {
	return time.Duration(t - u)
}

// Before reports whether t is before u.
func (t Instant) Before(u Instant) bool {
	return t < u
}

// Clock provides monotonic time.
type Clock interface {
	Now() Instant
}

// AlarmID identifies a pending alarm. Zero is never a valid id.
type AlarmID uint32

// Alarms arms one-shot delayed callbacks.
type Alarms interface {
	// AddAlarm arms fn to be called once after delay.
	AddAlarm(delay time.Duration, fn func()) AlarmID
	// CancelAlarm cancels a pending alarm. It returns false if the
	// alarm already fired or doesn't exist.
	CancelAlarm(AlarmID) bool
}

// DatagramHandler is called when a datagram is received.
type DatagramHandler func(addr net.IP, port int, data []byte)

// UDPEndpoint is a local UDP socket.
type UDPEndpoint interface {
	// SetReceiver registers the handler for received datagrams.
	SetReceiver(DatagramHandler)
	// SendTo sends a datagram.
	SendTo(addr net.IP, port int, data []byte) error
	// Close releases the endpoint.
	Close() error
}

// Transport allocates UDP endpoints.
type Transport interface {
	NewUDPEndpoint() (UDPEndpoint, error)
}

// ResolveFunc is called when a pending resolution completes.
// addr is nil if the resolution failed.
type ResolveFunc func(host string, addr net.IP)

// Resolver resolves hostnames.
type Resolver interface {
	// Resolve returns the address right away when it's known.
	// It returns ErrInProgress when found will be called later,
	// any other error means the resolution failed and found won't be called.
	Resolve(host string, found ResolveFunc) (net.IP, error)
}

var (
	// ErrInProgress indicates the resolution completes asynchronously.
	ErrInProgress = errors.New("in progress")
	// ErrNoServer indicates no DNS server is configured.
	ErrNoServer = errors.New("no dns server")
)

// Host bundles all capabilities.
type Host struct {
	Clock    Clock
	Alarms   Alarms
	Net      Transport
	Resolver Resolver
}

// Dispatcher runs callbacks on the owner's goroutine.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatchFunc is the func form of Dispatcher.
type DispatchFunc func(fn func())

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(fn func()) {
	f(fn)
}

// Direct runs callbacks on the caller's goroutine.
var Direct Dispatcher = DispatchFunc(func(fn func()) { fn() })
