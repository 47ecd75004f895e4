package clockd

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/clock.go/pkg/framework"
	"github.com/robotalks/clock.go/pkg/bus"
	bmsgs "github.com/robotalks/clock.go/pkg/bus/msgs"
	"github.com/robotalks/clock.go/pkg/clock"
	"github.com/robotalks/clock.go/pkg/clockd/msgs"
	"github.com/robotalks/clock.go/pkg/display"
	"github.com/robotalks/clock.go/pkg/hw"
	"github.com/robotalks/clock.go/pkg/ntp"
	"github.com/robotalks/clock.go/pkg/ntp/probe"
)

// maxCatchUpTicks limits ticks run in one iteration when the loop is late.
const maxCatchUpTicks = 10

// ErrNoServer is replied to ClockBind without a server.
var ErrNoServer = errors.New("server must be specified")

type callMsg struct {
	fn func()
}

func (m *callMsg) NewMessage() fx.Message { return &callMsg{} }

// Controller ticks the clock, keeps it synced and serves commands.
type Controller struct {
	Config    *Config
	Registrar bus.Registrar
	// Display is optional.
	Display display.Display

	loopCtl fx.LoopControl
	host    hw.Host
	clock   *clock.Clock
	client  *ntp.Client
	server  string
	started bool
	ticks   uint64
	dirty   bool

	probeFn  func(server string) (*probe.Result, error)
	probing  bool
	probeRes *probe.Result
	probeOff time.Duration
	now      func() time.Time
}

// New creates a Controller. Init must be called before the loop runs.
func New(conf *Config) *Controller {
	return &Controller{
		Config: conf,
		server: conf.Server,
		probeFn: func(server string) (*probe.Result, error) {
			return probe.New(server).Probe()
		},
		now: time.Now,
	}
}

// Init creates the clock and the client on host.
func (c *Controller) Init(host hw.Host) {
	c.host = host
	c.clock = clock.New(host.Clock)
	c.clock.PhaseWindow = c.Config.PhaseWindow
	c.clock.RateTolerance = c.Config.RateTolerance
	c.client = ntp.NewClient(ntp.CallbackFunc(c.onSample), host)
	c.client.DNSTimeout = c.Config.DNSTimeout
	c.client.Notifier = ntp.StateChangedFunc(c.stateChanged)
}

// Clock returns the disciplined clock.
func (c *Controller) Clock() *clock.Clock {
	return c.clock
}

// Client returns the NTP client.
func (c *Controller) Client() *ntp.Client {
	return c.client
}

// Dispatch implements hw.Dispatcher.
func (c *Controller) Dispatch(fn func()) {
	c.loopCtl.PostMessage(&callMsg{fn: fn})
	c.loopCtl.TriggerNext()
}

// AddToLoop implements LoopAdder.
func (c *Controller) AddToLoop(loop *fx.Loop) {
	c.loopCtl = loop
	loop.AddController(fx.PrLvCallback, fx.ControlFunc(c.runCalls))
	loop.AddController(fx.PrLvSense, fx.ControlFunc(c.sense))
	loop.AddController(fx.PrLvControl, fx.ControlFunc(c.handleCommands))
	loop.AddController(fx.PrLvPostProc, fx.ControlFunc(c.publish))
}

func (c *Controller) runCalls(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mctx fx.MessageProcessingContext) {
		if call, ok := mctx.CurrentMessage().(*callMsg); ok {
			mctx.MessageTaken()
			call.fn()
		}
	}))
	return nil
}

func (c *Controller) sense(cc fx.ControlContext) error {
	cc.WakeAfter(c.Poll())
	return nil
}

// Poll binds on first use, runs due ticks and returns the time until the
// next tick.
func (c *Controller) Poll() time.Duration {
	if !c.started {
		c.started = true
		c.client.Bind(c.server)
	}
	for n := 0; n < maxCatchUpTicks; n++ {
		now, deadline := c.host.Clock.Now(), c.clock.Deadline()
		if now.Before(deadline) {
			return deadline.Sub(now)
		}
		c.tick()
	}
	glog.Warningf("clock: more than %d ticks behind", maxCatchUpTicks)
	return 0
}

func (c *Controller) tick() {
	if c.client.State() == ntp.StateDNSFailed {
		c.client.Bind(c.server)
	}
	c.clock.Tick()
	c.ticks++
	c.show()
	if c.ticks%uint64(c.Config.ResyncTicks) == 0 && c.client.State() != ntp.StateFailed {
		if err := c.client.Request(); err != nil {
			glog.V(1).Infof("clock: resync: %v", err)
		}
	}
	if v := c.Config.VerifyTicks; v > 0 && c.ticks%uint64(v) == 0 {
		c.startProbe()
	}
}

func (c *Controller) show() {
	if c.Display == nil {
		return
	}
	var err error
	if c.clock.HasTime() {
		err = c.Display.Update(time.Unix(c.clock.Now(), 0))
	} else {
		err = display.Blank(c.Display)
	}
	if err != nil {
		glog.Warningf("display: %v", err)
	}
}

func (c *Controller) onSample(unixSeconds int64, fraction uint32) {
	c.clock.OnSample(unixSeconds, fraction)
	c.dirty = true
}

func (c *Controller) stateChanged(state ntp.State) {
	glog.Infof("clock: sync state %s", state)
	c.dirty = true
}

func (c *Controller) startProbe() {
	if c.probing || !c.clock.HasTime() {
		return
	}
	c.probing = true
	server := c.server
	go func() {
		res, err := c.probeFn(server)
		c.Dispatch(func() { c.probeDone(res, err) })
	}()
}

func (c *Controller) probeDone(res *probe.Result, err error) {
	c.probing = false
	if err != nil {
		glog.Warningf("clock: verify: %v", err)
		return
	}
	c.probeRes = res
	c.probeOff = res.OffsetOf(c.clock.Time(), c.now())
	glog.Infof("clock: verified against %s offset %v rtt %v stratum %d",
		res.Server, c.probeOff, res.RTT, res.Stratum)
	c.dirty = true
}

// Bind switches to another server.
func (c *Controller) Bind(server string) error {
	if server == "" {
		return ErrNoServer
	}
	c.server = server
	c.started = true
	c.client.Bind(server)
	c.dirty = true
	return nil
}

// Resync requests a sample now. The server is bound again if it isn't
// resolved. While resolving, the request follows the resolution.
func (c *Controller) Resync() error {
	switch c.client.State() {
	case ntp.StateFailed:
		return ntp.ErrFailed
	case ntp.StateWaitingOnDNS:
		return nil
	case ntp.StateDNSFailed:
		c.rebind()
		return nil
	}
	if c.client.Addr() == nil {
		c.rebind()
		return nil
	}
	return c.client.Request()
}

func (c *Controller) rebind() {
	c.started = true
	c.client.Bind(c.server)
}

// Status builds the status message.
func (c *Controller) Status() *msgs.ClockStatus {
	cs, ns := c.clock.Stats(), c.client.Stats()
	status := &msgs.ClockStatus{
		State:            c.client.State().String(),
		Server:           c.server,
		HasTime:          cs.HasTime,
		UnixSeconds:      cs.Seconds,
		RateMicros:       cs.RateMicros,
		StepMicros:       cs.StepMicros,
		PhaseErrorMicros: cs.PhaseErrorMicros,
		Samples:          cs.Samples,
		RejectedRates:    cs.RejectedRates,
		Requests:         ns.Requests,
		Replies:          ns.Replies,
		InvalidReplies:   ns.InvalidReplies,
		DnsFailures:      ns.DNSFailures,
	}
	if addr := c.client.Addr(); addr != nil {
		status.Addr = addr.String()
	}
	if c.probeRes != nil {
		status.ProbeOffsetMicros = int64(c.probeOff / time.Microsecond)
		status.ProbeRttMicros = int64(c.probeRes.RTT / time.Microsecond)
	}
	return status
}

// HandleCommand executes a command and returns the reply.
// It returns nil for commands of others.
func (c *Controller) HandleCommand(msg fx.Message) fx.Message {
	var err error
	switch m := msg.(type) {
	case *msgs.ClockStatusQuery:
		return &msgs.ClockStatusReply{Status: c.Status()}
	case *msgs.ClockResync:
		err = c.Resync()
	case *msgs.ClockBind:
		err = c.Bind(m.Server)
	default:
		return nil
	}
	if err != nil {
		return bmsgs.NewCommandErr(err)
	}
	return bmsgs.NewCommandOK()
}

func (c *Controller) handleCommands(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mctx fx.MessageProcessingContext) {
		cmdMsg, ok := mctx.CurrentMessage().(*bus.CommandMsg)
		if !ok {
			return
		}
		reply := c.HandleCommand(cmdMsg.Command.Msg())
		if reply == nil {
			return
		}
		mctx.MessageTaken()
		if err := cmdMsg.Command.Done(reply); err != nil {
			glog.Warningf("clock: reply: %v", err)
		}
	}))
	return nil
}

func (c *Controller) publish(cc fx.ControlContext) error {
	c.PublishStatus(cc.Context())
	return nil
}

// PublishStatus sends ClockStatus if anything changed since the last one.
func (c *Controller) PublishStatus(ctx context.Context) bool {
	if !c.dirty || c.Registrar == nil {
		return false
	}
	c.dirty = false
	if err := c.Registrar.SendEvent(ctx, c.Status()); err != nil {
		glog.V(1).Infof("clock: publish status: %v", err)
	}
	return true
}
