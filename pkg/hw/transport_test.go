package hw

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

type resolved struct {
	host string
	addr net.IP
}

func startDNSServer(t *testing.T) (string, func()) {
	mux := dns.NewServeMux()
	mux.HandleFunc("time.example.org.", func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   req.Question[0].Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    300,
			},
			A: net.IPv4(192, 0, 2, 123),
		})
		w.WriteMsg(m)
	})
	mux.HandleFunc("missing.example.org.", func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeNameError)
		w.WriteMsg(m)
	})
	mux.HandleFunc("empty.example.org.", func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		w.WriteMsg(m)
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		Handler:           mux,
		NotifyStartedFunc: func() { close(started) },
	}
	go server.ActivateAndServe()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("dns server not started")
	}
	return pc.LocalAddr().String(), func() { server.Shutdown() }
}

func newTestDNSResolver(t *testing.T) (*DNSResolver, chan func(), func()) {
	addr, stop := startDNSServer(t)
	dispatched := make(chan func(), 4)
	r := &DNSResolver{
		Servers:    []string{addr},
		Timeout:    time.Second,
		Dispatcher: DispatchFunc(func(fn func()) { dispatched <- fn }),
	}
	return r, dispatched, stop
}

func resolveAsync(t *testing.T, r *DNSResolver, dispatched chan func(), host string) resolved {
	results := make(chan resolved, 1)
	addr, err := r.Resolve(host, func(host string, addr net.IP) {
		results <- resolved{host: host, addr: addr}
	})
	require.Equal(t, ErrInProgress, err)
	require.Nil(t, addr)
	select {
	case fn := <-dispatched:
		fn()
	case <-time.After(3 * time.Second):
		t.Fatal("resolution not dispatched")
	}
	return <-results
}

func TestDNSResolverQuery(t *testing.T) {
	r, dispatched, stop := newTestDNSResolver(t)
	defer stop()

	res := resolveAsync(t, r, dispatched, "time.example.org")
	require.Equal(t, "time.example.org", res.host)
	require.True(t, net.IPv4(192, 0, 2, 123).Equal(res.addr))

	addr, err := r.Resolve("time.example.org", nil)
	require.NoError(t, err)
	require.True(t, net.IPv4(192, 0, 2, 123).Equal(addr))
}

func TestDNSResolverQueryFailure(t *testing.T) {
	r, dispatched, stop := newTestDNSResolver(t)
	defer stop()

	for _, host := range []string{"missing.example.org", "empty.example.org"} {
		t.Run(host, func(t *testing.T) {
			res := resolveAsync(t, r, dispatched, host)
			require.Equal(t, host, res.host)
			require.Nil(t, res.addr)
			require.Nil(t, r.cached(host))
		})
	}
}

func TestDNSResolverQueryRcode(t *testing.T) {
	addr, stop := startDNSServer(t)
	defer stop()
	r := &DNSResolver{Servers: []string{addr}, Timeout: time.Second}
	_, _, err := r.query("missing.example.org")
	require.Error(t, err)
	require.Contains(t, err.Error(), "NXDOMAIN")
	_, _, err = r.query("empty.example.org")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no A record")
}

func TestUDPNetRoundTrip(t *testing.T) {
	dispatched := make(chan func(), 4)
	n := &UDPNet{
		LocalAddr:  "127.0.0.1:0",
		Dispatcher: DispatchFunc(func(fn func()) { dispatched <- fn }),
	}
	ep, err := n.NewUDPEndpoint()
	require.NoError(t, err)
	defer ep.Close()
	local := ep.(*udpEndpoint).conn.LocalAddr().(*net.UDPAddr)

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()
	peerAddr := peer.LocalAddr().(*net.UDPAddr)

	type datagram struct {
		addr net.IP
		port int
		data []byte
	}
	received := make(chan datagram, 1)
	ep.SetReceiver(func(addr net.IP, port int, data []byte) {
		received <- datagram{addr: addr, port: port, data: data}
	})

	_, err = peer.WriteToUDP([]byte("reply"), local)
	require.NoError(t, err)
	select {
	case fn := <-dispatched:
		fn()
	case <-time.After(time.Second):
		t.Fatal("datagram not dispatched")
	}
	d := <-received
	require.True(t, net.IPv4(127, 0, 0, 1).Equal(d.addr))
	require.Equal(t, peerAddr.Port, d.port)
	require.Equal(t, []byte("reply"), d.data)

	require.NoError(t, ep.SendTo(net.IPv4(127, 0, 0, 1), peerAddr.Port, []byte("request")))
	buf := make([]byte, 64)
	peer.SetReadDeadline(time.Now().Add(time.Second))
	cnt, from, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "request", string(buf[:cnt]))
	require.Equal(t, local.Port, from.Port)
}
