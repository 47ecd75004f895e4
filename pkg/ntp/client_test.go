package ntp

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/robotalks/clock.go/pkg/hw/sim"
	"github.com/stretchr/testify/require"
)

type sampleRecord struct {
	seconds  int64
	fraction uint32
}

type clientTestEnv struct {
	t       *testing.T
	host    *sim.Host
	client  *Client
	samples []sampleRecord
	states  []State
}

var (
	testServer     = "time.example.org"
	testServerAddr = net.IPv4(192, 0, 2, 123)
)

func newClientTestEnv(t *testing.T) *clientTestEnv {
	env := &clientTestEnv{t: t, host: sim.NewHost()}
	env.client = NewClient(CallbackFunc(func(seconds int64, fraction uint32) {
		env.samples = append(env.samples, sampleRecord{seconds: seconds, fraction: fraction})
	}), env.host.HW())
	env.client.Notifier = StateChangedFunc(func(state State) {
		env.states = append(env.states, state)
	})
	return env
}

func (e *clientTestEnv) bindResolved() *sim.Endpoint {
	e.host.Resolver.Known[testServer] = testServerAddr
	e.client.Bind(testServer)
	require.Equal(e.t, StateWaitingOnReply, e.client.State())
	return e.host.Endpoint()
}

func (e *clientTestEnv) expectRequest(ep *sim.Endpoint, count int) {
	require.Len(e.t, ep.Sent, count)
	d := ep.LastSent()
	require.True(e.t, testServerAddr.Equal(d.Addr))
	require.Equal(e.t, Port, d.Port)
	require.Equal(e.t, NewRequest(), d.Data)
}

func TestClientEndpointFailure(t *testing.T) {
	host := sim.NewHost()
	host.Network.Fail = true
	client := NewClient(CallbackFunc(func(int64, uint32) {}), host.HW())
	require.Equal(t, StateFailed, client.State())

	host.Resolver.Known[testServer] = testServerAddr
	client.Bind(testServer)
	client.BindAddr(testServerAddr)
	require.Equal(t, ErrFailed, client.Request())
	require.Equal(t, StateFailed, client.State())
	require.Empty(t, host.Resolver.Lookups)
}

func TestClientRequestUnbound(t *testing.T) {
	env := newClientTestEnv(t)
	require.Equal(t, StateStartup, env.client.State())
	require.Equal(t, ErrNotBound, env.client.Request())
	require.Empty(t, env.host.Endpoint().Sent)
}

func TestClientBindCached(t *testing.T) {
	env := newClientTestEnv(t)
	ep := env.bindResolved()
	env.expectRequest(ep, 1)
	require.Equal(t, 0, env.host.Clock.Pending())
	require.Equal(t, []State{StateWaitingOnReply}, env.states)
}

func TestClientBindAddr(t *testing.T) {
	env := newClientTestEnv(t)
	env.client.BindAddr(testServerAddr)
	require.Equal(t, StateWaitingOnReply, env.client.State())
	env.expectRequest(env.host.Endpoint(), 1)
	require.Empty(t, env.host.Resolver.Lookups)
}

func TestClientBindPending(t *testing.T) {
	env := newClientTestEnv(t)
	env.client.Bind(testServer)
	require.Equal(t, StateWaitingOnDNS, env.client.State())
	require.Equal(t, 1, env.host.Clock.Pending())
	ep := env.host.Endpoint()
	require.Empty(t, ep.Sent)

	require.Equal(t, 1, env.host.Resolver.Complete(testServer, testServerAddr))
	require.Equal(t, StateWaitingOnReply, env.client.State())
	require.Equal(t, 0, env.host.Clock.Pending())
	env.expectRequest(ep, 1)
	require.True(t, testServerAddr.Equal(env.client.Addr()))
}

func TestClientBindPendingFailed(t *testing.T) {
	env := newClientTestEnv(t)
	env.client.Bind(testServer)
	env.host.Resolver.Complete(testServer, nil)
	require.Equal(t, StateDNSFailed, env.client.State())
	require.Equal(t, 0, env.host.Clock.Pending())
	require.Empty(t, env.host.Endpoint().Sent)
	require.Equal(t, uint64(1), env.client.Stats().DNSFailures)
}

func TestClientBindImmediateFailure(t *testing.T) {
	env := newClientTestEnv(t)
	env.host.Resolver.Errors[testServer] = errors.New("bad name")
	env.client.Bind(testServer)
	require.Equal(t, StateDNSFailed, env.client.State())
	require.Equal(t, 0, env.host.Clock.Pending())
}

func TestClientDNSRetry(t *testing.T) {
	env := newClientTestEnv(t)
	env.client.Bind(testServer)
	require.Equal(t, 1, env.host.Resolver.Lookups[testServer])

	for n := 2; n < 20; n++ {
		env.host.Clock.Advance(DefaultDNSTimeout - time.Millisecond)
		require.Equal(t, n-1, env.host.Resolver.Lookups[testServer])
		env.host.Clock.Advance(time.Millisecond)
		require.Equal(t, n, env.host.Resolver.Lookups[testServer])
		require.Equal(t, StateWaitingOnDNS, env.client.State())
		require.Equal(t, 1, env.host.Clock.Pending())
	}
	require.Equal(t, uint64(18), env.client.Stats().DNSTimeouts)

	// a late answer of any outstanding lookup completes the bind.
	env.host.Resolver.Complete(testServer, testServerAddr)
	require.Equal(t, StateWaitingOnReply, env.client.State())
	require.Equal(t, 0, env.host.Clock.Pending())
	env.expectRequest(env.host.Endpoint(), 1)
}

func TestClientDNSCallbackForOtherHost(t *testing.T) {
	env := newClientTestEnv(t)
	env.client.Bind("old.example.org")
	env.host.Resolver.Known[testServer] = testServerAddr
	env.client.Bind(testServer)
	require.Equal(t, 0, env.host.Clock.Pending())
	env.host.Resolver.Complete("old.example.org", net.IPv4(192, 0, 2, 1))
	require.True(t, testServerAddr.Equal(env.client.Addr()))
	require.Len(t, env.host.Endpoint().Sent, 1)
}

func TestClientStrayDatagramWhileResolving(t *testing.T) {
	env := newClientTestEnv(t)
	env.client.Bind(testServer)
	ep := env.host.Endpoint()
	require.True(t, ep.Deliver(net.IPv4(198, 51, 100, 7), 5353, []byte{1, 2, 3}))
	require.Equal(t, StateReplyInvalid, env.client.State())

	env.host.Resolver.Complete(testServer, testServerAddr)
	require.True(t, testServerAddr.Equal(env.client.Addr()))
	require.Equal(t, StateWaitingOnReply, env.client.State())
	env.expectRequest(ep, 1)

	env.host.Clock.Advance(time.Hour)
	require.Equal(t, 1, env.host.Resolver.Lookups[testServer])
	require.Equal(t, uint64(0), env.client.Stats().DNSTimeouts)
}

func TestClientStrayDatagramKeepsDNSRetry(t *testing.T) {
	env := newClientTestEnv(t)
	env.client.Bind(testServer)
	env.host.Endpoint().Deliver(net.IPv4(198, 51, 100, 7), 5353, []byte{1, 2, 3})
	env.host.Clock.Advance(DefaultDNSTimeout)
	require.Equal(t, 2, env.host.Resolver.Lookups[testServer])
	require.Equal(t, StateWaitingOnDNS, env.client.State())
	require.Equal(t, uint64(1), env.client.Stats().DNSTimeouts)
}

func TestClientRebindWithLateReplyFromOldServer(t *testing.T) {
	env := newClientTestEnv(t)
	ep := env.bindResolved()
	newAddr := net.IPv4(192, 0, 2, 200)
	env.client.Bind("new.example.org")
	require.Equal(t, StateWaitingOnDNS, env.client.State())

	ep.Deliver(testServerAddr, Port, EncodeReply(Sample{Seconds: 3908988800}, 1))
	require.Equal(t, StateIdle, env.client.State())
	require.Len(t, env.samples, 1)

	env.host.Resolver.Complete("new.example.org", newAddr)
	require.Equal(t, "new.example.org", env.client.Server())
	require.True(t, newAddr.Equal(env.client.Addr()))
	require.Equal(t, StateWaitingOnReply, env.client.State())
	require.Len(t, ep.Sent, 2)
	require.True(t, newAddr.Equal(ep.LastSent().Addr))
	require.Equal(t, 0, env.host.Clock.Pending())
}

func TestClientTimeoutAfterResolved(t *testing.T) {
	env := newClientTestEnv(t)
	env.client.Bind(testServer)
	env.host.Resolver.Complete(testServer, testServerAddr)
	// an alarm already queued on the loop when the answer arrived.
	env.client.dnsTimedOut()
	require.Equal(t, uint64(0), env.client.Stats().DNSTimeouts)
	require.Equal(t, 1, env.host.Resolver.Lookups[testServer])
	require.Equal(t, StateWaitingOnReply, env.client.State())
}

func TestClientReply(t *testing.T) {
	sample := Sample{Seconds: 3908988800, Fraction: 0x80000000}
	testCases := []struct {
		name   string
		addr   net.IP
		port   int
		data   []byte
		state  State
		ingest bool
	}{
		{"valid", testServerAddr, Port, EncodeReply(sample, 1), StateIdle, true},
		{"stratum 0", testServerAddr, Port, EncodeReply(sample, 0), StateReplyInvalid, false},
		{"47 bytes", testServerAddr, Port, EncodeReply(sample, 1)[:47], StateReplyInvalid, false},
		{"49 bytes", testServerAddr, Port, append(EncodeReply(sample, 1), 0), StateReplyInvalid, false},
		{"other port", testServerAddr, 1123, EncodeReply(sample, 1), StateReplyInvalid, false},
		{"other address", net.IPv4(192, 0, 2, 124), Port, EncodeReply(sample, 1), StateReplyInvalid, false},
		{"client mode", testServerAddr, Port, NewRequest(), StateReplyInvalid, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newClientTestEnv(t)
			ep := env.bindResolved()
			require.True(t, ep.Deliver(tc.addr, tc.port, tc.data))
			require.Equal(t, tc.state, env.client.State())
			if tc.ingest {
				require.Equal(t, []sampleRecord{{seconds: 1700000000, fraction: 0x80000000}}, env.samples)
				require.Equal(t, uint64(1), env.client.Stats().Replies)
			} else {
				require.Empty(t, env.samples)
				require.Equal(t, uint64(1), env.client.Stats().InvalidReplies)
			}
		})
	}
}

func TestClientInvalidReplyNoRetry(t *testing.T) {
	env := newClientTestEnv(t)
	ep := env.bindResolved()
	ep.Deliver(testServerAddr, Port, EncodeReply(Sample{Seconds: 3908988800}, 0))
	env.host.Clock.Advance(time.Hour)
	require.Len(t, ep.Sent, 1)
	require.Equal(t, StateReplyInvalid, env.client.State())

	require.NoError(t, env.client.Request())
	env.expectRequest(ep, 2)
	ep.Deliver(testServerAddr, Port, EncodeReply(Sample{Seconds: 3908988801}, 3))
	require.Equal(t, StateIdle, env.client.State())
	require.Len(t, env.samples, 1)
	require.Equal(t, int64(1700000001), env.samples[0].seconds)
	require.Equal(t, []State{StateWaitingOnReply, StateReplyInvalid, StateWaitingOnReply, StateIdle}, env.states)
}

func TestClientSendError(t *testing.T) {
	env := newClientTestEnv(t)
	env.host.Network.Endpoints[0].SendErr = errors.New("unreachable")
	env.host.Resolver.Known[testServer] = testServerAddr
	env.client.Bind(testServer)
	require.Equal(t, StateStartup, env.client.State())
	require.Error(t, env.client.Request())
	require.Equal(t, uint64(0), env.client.Stats().Requests)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "dns-failed", StateDNSFailed.String())
	require.Equal(t, "unknown", State(100).String())
}
