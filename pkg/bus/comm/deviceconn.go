package comm

import (
	"container/list"
	"context"
	"sync"
	"time"

	fx "github.com/robotalks/clock.go/pkg/framework"
	"github.com/robotalks/clock.go/pkg/bus"
	"github.com/robotalks/clock.go/pkg/bus/msgs"
)

// DefaultCommandExpiration is the default expiration expecting a result.
const DefaultCommandExpiration = 2 * time.Second

// DeviceConn implements bus.DeviceConn over a Pipe.
// Commands are correlated with replies by sequence number.
// Events from the device are posted into the loop.
type DeviceConn struct {
	Expiration time.Duration

	pipe     Pipe
	seq      uint32
	commands list.List
	seqMap   map[uint32]*commandFuture
	lock     sync.Mutex
	now      func() time.Time
}

// NewDeviceConn creates a DeviceConn over rw.
func NewDeviceConn(rw PacketReadWriter) *DeviceConn {
	c := &DeviceConn{}
	c.Init(rw)
	return c
}

// Init initializes DeviceConn with defaults.
func (c *DeviceConn) Init(rw PacketReadWriter) {
	c.Expiration = DefaultCommandExpiration
	c.pipe.ReadWriter = rw
	c.pipe.Handler = msgs.HandleTypedMsgFunc(c.handleTypedMsg)
	c.seqMap = make(map[uint32]*commandFuture)
	c.now = time.Now
}

// DoCommand implements bus.DeviceConn.
func (c *DeviceConn) DoCommand(msg fx.Message) bus.CommandFuture {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.seq++; c.seq == 0 {
		c.seq++
	}
	f := &commandFuture{
		seq:      c.seq,
		expireAt: c.now().Add(c.Expiration),
		result:   make(chan bus.Result, 1),
	}
	if err := c.pipe.SendCommandMsg(msg, f.seq); err != nil {
		f.result <- bus.Result{Err: err}
		close(f.result)
		return f
	}
	f.elem = c.commands.PushBack(f)
	c.seqMap[f.seq] = f
	return f
}

// Pending returns the number of commands waiting for replies.
func (c *DeviceConn) Pending() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.commands.Len()
}

// Close closes the underlying transport.
func (c *DeviceConn) Close() error {
	return c.pipe.Close()
}

// AddToLoop implements LoopAdder.
func (c *DeviceConn) AddToLoop(l *fx.Loop) {
	l.Add(&c.pipe)
	l.AddController(fx.PrLvIdle, fx.ControlFunc(c.purgeExpired))
}

func (c *DeviceConn) handleTypedMsg(ctx context.Context, msg fx.Message, typed *msgs.Typed) error {
	if typed.IsEvent() {
		loopCtl := fx.LoopCtlFrom(ctx)
		loopCtl.PostMessage(msg)
		loopCtl.TriggerNext()
		return nil
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	f := c.seqMap[typed.Sequence]
	if f == nil {
		return nil
	}
	c.commands.Remove(f.elem)
	delete(c.seqMap, typed.Sequence)
	result := bus.Result{Msg: msg}
	if cmdErr, ok := msg.(*msgs.CommandErr); ok {
		result.Err = cmdErr
	}
	f.result <- result
	close(f.result)
	return nil
}

func (c *DeviceConn) purgeExpired(cc fx.ControlContext) error {
	now := c.now()
	c.lock.Lock()
	defer c.lock.Unlock()
	for c.commands.Len() > 0 {
		elem := c.commands.Front()
		f := elem.Value.(*commandFuture)
		if f.expireAt.After(now) {
			break
		}
		c.commands.Remove(elem)
		delete(c.seqMap, f.seq)
		f.result <- bus.Result{Err: context.DeadlineExceeded}
		close(f.result)
	}
	return nil
}

type commandFuture struct {
	seq      uint32
	expireAt time.Time
	elem     *list.Element
	result   chan bus.Result
}

func (c *commandFuture) ResultChan() <-chan bus.Result {
	return c.result
}

// Wait waits for the result of a command future.
func Wait(ctx context.Context, f bus.CommandFuture) (fx.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-f.ResultChan():
		if !ok {
			return nil, context.Canceled
		}
		return r.Msg, r.Err
	}
}
