package websocket

import (
	"context"
	"net"
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/clock.go/pkg/framework"
	"github.com/robotalks/clock.go/pkg/bus/comm"
)

// DefaultPath is where the websocket endpoint is mounted.
const DefaultPath = "/bus"

// Server accepts websocket connections and serves them with a Hub.
type Server struct {
	Addr string
	Path string
	Hub  *comm.Hub

	listener net.Listener
}

// Listen starts listening. Run calls it when not yet listening.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// ListenAddr returns the actual listening address.
func (s *Server) ListenAddr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handler returns the http.Handler of the websocket endpoint.
func (s *Server) Handler() http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		conn.PayloadType = websocket.BinaryFrame
		s.Hub.Serve(New(conn))
	})
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	path := s.Path
	if path == "" {
		path = DefaultPath
	}
	mux := http.NewServeMux()
	mux.Handle(path, s.Handler())
	server := &http.Server{Handler: mux}
	glog.Infof("websocket: listening on %s%s", s.listener.Addr(), path)
	return fx.RunWithContextCancel(ctx, func() { server.Close() }, func() error {
		err := server.Serve(s.listener)
		if err == http.ErrServerClosed {
			err = nil
		}
		return err
	})
}

// AddToLoop implements LoopAdder.
func (s *Server) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(s)
}

// Dial connects to a device served by a Server.
func Dial(ctx context.Context, url string) (*comm.DeviceConn, error) {
	config, err := websocket.NewConfig(url, "http://localhost/")
	if err != nil {
		return nil, err
	}
	var conn *websocket.Conn
	err = fx.RunWithContext(ctx, func() (err error) {
		conn, err = websocket.DialConfig(config)
		return
	})
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return comm.NewDeviceConn(New(conn)), nil
}
