package hw

import (
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
)

// SystemClock reads the monotonic clock of the host.
type SystemClock struct {
	origin time.Time
}

// NewSystemClock creates a SystemClock with origin at now.
func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

// Now implements Clock.
func (c *SystemClock) Now() Instant {
	return Instant(time.Since(c.origin))
}

// SystemAlarms implements Alarms using runtime timers.
// Fired callbacks are delivered through Dispatcher.
type SystemAlarms struct {
	Dispatcher Dispatcher

	lastID AlarmID
	timers map[AlarmID]*time.Timer
	lock   sync.Mutex
}

// NewSystemAlarms creates SystemAlarms.
func NewSystemAlarms(d Dispatcher) *SystemAlarms {
	return &SystemAlarms{Dispatcher: d}
}

// AddAlarm implements Alarms.
func (a *SystemAlarms) AddAlarm(delay time.Duration, fn func()) AlarmID {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.timers == nil {
		a.timers = make(map[AlarmID]*time.Timer)
	}
	if a.lastID++; a.lastID == 0 {
		a.lastID++
	}
	id := a.lastID
	d := a.Dispatcher
	if d == nil {
		d = Direct
	}
	a.timers[id] = time.AfterFunc(delay, func() {
		d.Dispatch(func() {
			// canceled after firing but before dispatching.
			if a.take(id) {
				fn()
			}
		})
	})
	return id
}

// CancelAlarm implements Alarms.
func (a *SystemAlarms) CancelAlarm(id AlarmID) bool {
	a.lock.Lock()
	timer, ok := a.timers[id]
	delete(a.timers, id)
	a.lock.Unlock()
	if ok {
		timer.Stop()
	}
	return ok
}

func (a *SystemAlarms) take(id AlarmID) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	_, ok := a.timers[id]
	delete(a.timers, id)
	return ok
}

// UDPNet implements Transport over host sockets.
// Received datagrams are delivered through Dispatcher.
type UDPNet struct {
	Dispatcher Dispatcher
	// LocalAddr is the address to listen on, empty for any.
	LocalAddr string
}

// NewUDPEndpoint implements Transport.
func (n *UDPNet) NewUDPEndpoint() (UDPEndpoint, error) {
	var laddr *net.UDPAddr
	if n.LocalAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", n.LocalAddr)
		if err != nil {
			return nil, err
		}
		laddr = addr
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	ep := &udpEndpoint{conn: conn, dispatcher: n.Dispatcher}
	if ep.dispatcher == nil {
		ep.dispatcher = Direct
	}
	go ep.readLoop()
	return ep, nil
}

type udpEndpoint struct {
	conn       *net.UDPConn
	dispatcher Dispatcher
	handler    DatagramHandler
	lock       sync.RWMutex
}

func (e *udpEndpoint) SetReceiver(h DatagramHandler) {
	e.lock.Lock()
	e.handler = h
	e.lock.Unlock()
}

func (e *udpEndpoint) SendTo(addr net.IP, port int, data []byte) error {
	_, err := e.conn.WriteToUDP(data, &net.UDPAddr{IP: addr, Port: port})
	return err
}

func (e *udpEndpoint) Close() error {
	return e.conn.Close()
}

func (e *udpEndpoint) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			glog.V(2).Infof("udp endpoint closed: %v", err)
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		e.lock.RLock()
		h := e.handler
		e.lock.RUnlock()
		if h == nil {
			continue
		}
		e.dispatcher.Dispatch(func() {
			h(from.IP, from.Port, data)
		})
	}
}
