package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the longest wait between iterations.
const DefaultInterval = 100 * time.Millisecond

// Loop runs controllers by priority level, one iteration at a time.
// An iteration starts when Interval elapses, TriggerNext is called or the
// time requested with WakeAfter arrives, whichever comes first.
// Messages posted from any goroutine are handed to the next iteration.
type Loop struct {
	Interval time.Duration

	levels  [PriorityLevels]level
	runners []Runnable

	lock    sync.Mutex
	posted  messageQueue
	wakeAt  time.Time
	trigger chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

// level holds the controllers of one priority level. Hooks are one-shot.
type level struct {
	controllers []Controller

	lock      sync.Mutex
	preHooks  []Controller
	postHooks []Controller
}

type loopCtxKey struct{}

// LoopCtlFrom gets LoopControl from the context passed to Runnables added
// to a Loop, or from ControlContext.Context().
func LoopCtlFrom(ctx context.Context) LoopControl {
	return ctx.Value(loopCtxKey{}).(LoopControl)
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval, trigger: make(chan struct{}, 1)}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at priorityLevel. Controllers which
// are also Runnable are run with the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	lv := &l.levels[priorityLevel]
	lv.controllers = append(lv.controllers, ctls...)
	for _, ctl := range ctls {
		if r, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, r)
		}
	}
	return l
}

// AddRunnable adds Runnables started and stopped with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable. It returns when ctx is done, after all
// Runnables stopped.
func (l *Loop) Run(ctx context.Context) error {
	if l.trigger == nil {
		l.trigger = make(chan struct{}, 1)
	}
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	runner := NewRunnerWith(context.WithValue(ctx, loopCtxKey{}, LoopControl(l)))
	runner.Go(l.runners...)
	defer runner.Wait()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-l.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		l.iterate(ctx)
		timer.Reset(l.sleepFor(interval))
	}
}

// sleepFor returns the wait before the next iteration, consuming the
// time requested with WakeAfter.
func (l *Loop) sleepFor(interval time.Duration) time.Duration {
	l.lock.Lock()
	at := l.wakeAt
	l.wakeAt = time.Time{}
	l.lock.Unlock()
	if at.IsZero() {
		return interval
	}
	switch wait := time.Until(at); {
	case wait <= 0:
		return 0
	case wait < interval:
		return wait
	}
	return interval
}

// PreRunAt implements LoopControl.
func (l *Loop) PreRunAt(priorityLevel int, hooks ...Controller) {
	lv := &l.levels[priorityLevel]
	lv.lock.Lock()
	lv.preHooks = append(lv.preHooks, hooks...)
	lv.lock.Unlock()
}

// PostRunAt implements LoopControl.
func (l *Loop) PostRunAt(priorityLevel int, hooks ...Controller) {
	lv := &l.levels[priorityLevel]
	lv.lock.Lock()
	lv.postHooks = append(lv.postHooks, hooks...)
	lv.lock.Unlock()
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.posted.push(msg)
	l.lock.Unlock()
}

// WakeAfter implements LoopControl.
func (l *Loop) WakeAfter(d time.Duration) {
	at := time.Now().Add(d)
	l.lock.Lock()
	if l.wakeAt.IsZero() || at.Before(l.wakeAt) {
		l.wakeAt = at
	}
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

func (l *Loop) iterate(ctx context.Context) {
	it := &iteration{Loop: l, time: time.Now()}
	l.lock.Lock()
	it.messages.takeAll(&l.posted)
	l.lock.Unlock()
	it.ctx = context.WithValue(ctx, loopCtxKey{}, LoopControl(l))
	for n := range l.levels {
		it.priorityLevel = n
		l.levels[n].run(it)
	}
}

func (lv *level) run(it *iteration) {
	lv.lock.Lock()
	hooks := lv.preHooks
	lv.preHooks = nil
	lv.lock.Unlock()
	runControllers(it, hooks)

	runControllers(it, lv.controllers)

	// hooks added while running post hooks go to the next iteration.
	lv.lock.Lock()
	hooks = lv.postHooks
	lv.postHooks = nil
	lv.lock.Unlock()
	runControllers(it, hooks)
}

func runControllers(it *iteration, ctls []Controller) {
	for _, ctl := range ctls {
		if err := ctl.Control(it); err != nil {
			glog.Errorf("controller at level %d: %v", it.priorityLevel, err)
		}
	}
}

// iteration implements ControlContext.
type iteration struct {
	*Loop
	ctx           context.Context
	time          time.Time
	priorityLevel int
	messages      messageQueue
}

func (it *iteration) Context() context.Context { return it.ctx }
func (it *iteration) Time() time.Time          { return it.time }
func (it *iteration) PriorityLevel() int       { return it.priorityLevel }
func (it *iteration) Messages() MessageStore   { return it }

func (it *iteration) PostRun(hooks ...Controller) {
	it.PostRunAt(it.priorityLevel, hooks...)
}
