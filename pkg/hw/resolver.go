package hw

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/miekg/dns"
)

// DefaultResolvConf is where DNS servers are loaded by default.
const DefaultResolvConf = "/etc/resolv.conf"

// DNSResolver resolves IPv4 addresses by querying DNS servers directly.
// Answers are cached for their TTL, so a following Resolve of the
// same host completes synchronously.
// Completions are delivered through Dispatcher.
type DNSResolver struct {
	Dispatcher Dispatcher
	// Servers are host:port of DNS servers, tried in order.
	Servers []string
	Timeout time.Duration
	// MinTTL is the minimum time an answer is cached.
	MinTTL time.Duration

	cache map[string]cachedAddr
	lock  sync.Mutex
	now   func() time.Time
}

type cachedAddr struct {
	addr    net.IP
	expires time.Time
}

// NewDNSResolver creates a DNSResolver using servers from resolv.conf.
// An empty path means DefaultResolvConf.
func NewDNSResolver(d Dispatcher, resolvConf string) (*DNSResolver, error) {
	if resolvConf == "" {
		resolvConf = DefaultResolvConf
	}
	conf, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return nil, err
	}
	r := &DNSResolver{Dispatcher: d}
	for _, server := range conf.Servers {
		r.Servers = append(r.Servers, net.JoinHostPort(server, conf.Port))
	}
	return r, nil
}

// Resolve implements Resolver.
func (r *DNSResolver) Resolve(host string, found ResolveFunc) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	if addr := r.cached(host); addr != nil {
		return addr, nil
	}
	if len(r.Servers) == 0 {
		return nil, ErrNoServer
	}
	d := r.Dispatcher
	if d == nil {
		d = Direct
	}
	go func() {
		addr, ttl, err := r.query(host)
		if err != nil {
			glog.Warningf("resolve %s: %v", host, err)
		} else {
			r.store(host, addr, ttl)
		}
		d.Dispatch(func() { found(host, addr) })
	}()
	return nil, ErrInProgress
}

func (r *DNSResolver) query(host string) (net.IP, time.Duration, error) {
	client := &dns.Client{Timeout: r.Timeout}
	if client.Timeout == 0 {
		client.Timeout = 5 * time.Second
	}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	var lastErr error
	for _, server := range r.Servers {
		reply, _, err := client.Exchange(msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if reply.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%s from %s", dns.RcodeToString[reply.Rcode], server)
			continue
		}
		for _, rr := range reply.Answer {
			if a, ok := rr.(*dns.A); ok {
				return a.A, time.Duration(a.Hdr.Ttl) * time.Second, nil
			}
		}
		lastErr = fmt.Errorf("no A record from %s", server)
	}
	return nil, 0, lastErr
}

func (r *DNSResolver) cached(host string) net.IP {
	r.lock.Lock()
	defer r.lock.Unlock()
	entry, ok := r.cache[host]
	if !ok {
		return nil
	}
	if !r.clock().Before(entry.expires) {
		delete(r.cache, host)
		return nil
	}
	return entry.addr
}

func (r *DNSResolver) store(host string, addr net.IP, ttl time.Duration) {
	if ttl < r.MinTTL {
		ttl = r.MinTTL
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.cache == nil {
		r.cache = make(map[string]cachedAddr)
	}
	r.cache[host] = cachedAddr{addr: addr, expires: r.clock().Add(ttl)}
}

func (r *DNSResolver) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
