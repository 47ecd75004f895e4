package stream

import (
	"context"
	"net"

	"github.com/golang/glog"

	fx "github.com/robotalks/clock.go/pkg/framework"
	"github.com/robotalks/clock.go/pkg/bus/comm"
)

// Listener accepts TCP connections and serves them with a Hub.
type Listener struct {
	Addr string
	Hub  *comm.Hub

	listener net.Listener
}

// Listen starts listening. Run calls it when not yet listening.
func (l *Listener) Listen() error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	l.listener = ln
	return nil
}

// ListenAddr returns the actual listening address.
func (l *Listener) ListenAddr() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Run implements Runnable.
func (l *Listener) Run(ctx context.Context) error {
	if l.listener == nil {
		if err := l.Listen(); err != nil {
			return err
		}
	}
	glog.Infof("tcp: listening on %s", l.listener.Addr())
	return fx.RunWithContextCloser(ctx, l.listener, func() error {
		for {
			conn, err := l.listener.Accept()
			if err != nil {
				return err
			}
			go l.Hub.Serve(New(conn))
		}
	})
}

// AddToLoop implements LoopAdder.
func (l *Listener) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(l)
}

// Dial connects to a device served by a Listener.
func Dial(ctx context.Context, addr string) (*comm.DeviceConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return comm.NewDeviceConn(New(conn)), nil
}
