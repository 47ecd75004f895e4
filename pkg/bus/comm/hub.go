package comm

import (
	"context"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/clock.go/pkg/framework"
)

// Hub is a bus.Registrar serving any number of connected clients.
// Each connection gets its own Registrar, events are broadcast to all.
type Hub struct {
	ctx   context.Context
	ready chan struct{}
	conns map[*Registrar]string
	lock  sync.Mutex
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) readyCh() chan struct{} {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.ready == nil {
		h.ready = make(chan struct{})
	}
	return h.ready
}

// Serve serves a connection until it's closed or the hub stops.
// It blocks until the hub is running.
func (h *Hub) Serve(rw PacketReadWriter) error {
	<-h.readyCh()
	reg := NewRegistrar(rw)
	name := peerName(rw)
	h.lock.Lock()
	ctx := h.ctx
	if ctx.Err() != nil {
		h.lock.Unlock()
		reg.Close()
		return ctx.Err()
	}
	if h.conns == nil {
		h.conns = make(map[*Registrar]string)
	}
	h.conns[reg] = name
	h.lock.Unlock()

	glog.Infof("hub: %s connected", name)
	err := reg.Run(ctx)
	h.lock.Lock()
	delete(h.conns, reg)
	h.lock.Unlock()
	glog.Infof("hub: %s disconnected: %v", name, err)
	return err
}

// Len returns the number of connections.
func (h *Hub) Len() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.conns)
}

// SendEvent implements bus.Registrar.
func (h *Hub) SendEvent(ctx context.Context, msg fx.Message) error {
	h.lock.Lock()
	regs := make([]*Registrar, 0, len(h.conns))
	for reg := range h.conns {
		regs = append(regs, reg)
	}
	h.lock.Unlock()
	var errs fx.AggregatedError
	for _, reg := range regs {
		errs.Add(reg.SendEvent(ctx, msg))
	}
	return errs.Aggregate()
}

// Run implements Runnable.
// ctx must carry the loop control so commands reach the loop.
func (h *Hub) Run(ctx context.Context) error {
	ready := h.readyCh()
	h.lock.Lock()
	h.ctx = ctx
	h.lock.Unlock()
	close(ready)

	<-ctx.Done()
	h.lock.Lock()
	for reg := range h.conns {
		reg.Close()
	}
	h.lock.Unlock()
	return ctx.Err()
}

// AddToLoop implements LoopAdder.
func (h *Hub) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(h)
}
