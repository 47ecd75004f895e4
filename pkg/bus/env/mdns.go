package env

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/hashicorp/mdns"

	"github.com/robotalks/clock.go/pkg/bus"
)

// ServiceType is the mDNS service type devices are announced with.
const ServiceType = "_clockbus._tcp"

// DefaultBrowseTimeout is how long Browse collects answers.
const DefaultBrowseTimeout = time.Second

// TXT record keys.
const (
	txtType   = "type"
	txtID     = "id"
	txtScheme = "scheme"
	txtPath   = "path"
	txtDesc   = "desc"
)

// Endpoint is a directly connectable transport of a device.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	Path   string
}

// URL returns the URL to dial the endpoint.
func (e Endpoint) URL() string {
	return e.Scheme + "://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) + e.Path
}

// Service is a device endpoint found by Browse.
type Service struct {
	Info     bus.DeviceInfo
	Endpoint Endpoint
}

// Announcer announces device endpoints over mDNS.
type Announcer struct {
	Info      bus.DeviceInfo
	Endpoints []Endpoint
	// IPs are announced addresses, all non-loopback IPv4 addresses
	// when empty.
	IPs []net.IP
}

// TXT builds the TXT record of an endpoint.
func (a *Announcer) TXT(ep Endpoint) []string {
	txt := []string{
		txtType + "=" + a.Info.Ref.Type,
		txtID + "=" + a.Info.Ref.ID,
		txtScheme + "=" + ep.Scheme,
	}
	if ep.Path != "" {
		txt = append(txt, txtPath+"="+ep.Path)
	}
	if desc := a.Info.Meta.Description; desc != "" {
		txt = append(txt, txtDesc+"="+desc)
	}
	return txt
}

// Run implements Runnable.
func (a *Announcer) Run(ctx context.Context) error {
	ips := a.IPs
	if len(ips) == 0 {
		var err error
		if ips, err = LocalIPs(); err != nil {
			return err
		}
	}
	var servers []*mdns.Server
	defer func() {
		for _, server := range servers {
			server.Shutdown()
		}
	}()
	for _, ep := range a.Endpoints {
		instance := a.Info.Ref.Type + "-" + a.Info.Ref.ID + "-" + ep.Scheme
		service, err := mdns.NewMDNSService(instance, ServiceType, "", "", ep.Port, ips, a.TXT(ep))
		if err != nil {
			return fmt.Errorf("mdns service %s: %v", instance, err)
		}
		server, err := mdns.NewServer(&mdns.Config{Zone: service})
		if err != nil {
			return fmt.Errorf("mdns server %s: %v", instance, err)
		}
		servers = append(servers, server)
		glog.Infof("mdns: announcing %s on port %d", instance, ep.Port)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Browse queries mDNS for announced device endpoints.
func Browse(ctx context.Context, timeout time.Duration) ([]Service, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	entries := make(chan *mdns.ServiceEntry, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- mdns.Query(&mdns.QueryParam{
			Service:     ServiceType,
			Domain:      "local",
			Timeout:     timeout,
			Entries:     entries,
			DisableIPv6: true,
		})
		close(entries)
	}()
	var found []Service
	for entry := range entries {
		if svc, ok := ServiceFromEntry(entry); ok {
			found = append(found, svc)
		}
	}
	return found, <-errCh
}

// ServiceFromEntry parses an mDNS answer.
func ServiceFromEntry(entry *mdns.ServiceEntry) (svc Service, ok bool) {
	fields := ParseTXT(entry.InfoFields)
	svc.Info.Ref = bus.DeviceRef{Type: fields[txtType], ID: fields[txtID]}
	svc.Info.Meta.Description = fields[txtDesc]
	svc.Endpoint = Endpoint{
		Scheme: fields[txtScheme],
		Port:   entry.Port,
		Path:   fields[txtPath],
	}
	switch {
	case entry.AddrV4 != nil:
		svc.Endpoint.Host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		svc.Endpoint.Host = entry.AddrV6.String()
	default:
		svc.Endpoint.Host = strings.TrimSuffix(entry.Host, ".")
	}
	ok = svc.Info.Ref.IsValid() && svc.Endpoint.Scheme != "" && svc.Endpoint.Host != ""
	return
}

// ParseTXT parses key=value fields.
func ParseTXT(fields []string) map[string]string {
	m := make(map[string]string)
	for _, field := range fields {
		if n := strings.IndexByte(field, '='); n > 0 {
			m[field[:n]] = field[n+1:]
		} else if field != "" {
			m[field] = ""
		}
	}
	return m
}

// LocalIPs returns non-loopback IPv4 addresses of interfaces which are up.
func LocalIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
