// Package clock disciplines a local oscillator against time samples.
//
// The clock counts whole seconds. Each Tick advances the reported seconds by
// exactly one and returns the local instant when the next tick is due. The
// spacing of ticks is the estimated number of local microseconds per true
// second, adjusted to pull accumulated phase error back in over PhaseWindow
// ticks instead of jumping.
package clock

import (
	"math"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/robotalks/clock.go/pkg/hw"
)

const (
	// NominalRate is local microseconds per second of a perfect oscillator.
	NominalRate = 1000000
	// DefaultPhaseWindow is the number of ticks a phase error is spread over.
	DefaultPhaseWindow = 1000
	// DefaultRateTolerance is the accepted deviation of an observed rate
	// from NominalRate.
	DefaultRateTolerance = 0.05

	// past this, localDelta*NominalRate overflows.
	maxLocalDelta = math.MaxInt64 / NominalRate
	rateWeight    = 10
)

// Stats is a snapshot of the clock.
type Stats struct {
	HasTime bool
	Seconds int64
	// RateMicros is the estimated local microseconds per true second.
	RateMicros int64
	// StepMicros is the current tick spacing.
	StepMicros int64
	// ObservedRateMicros is the rate measured between the last two samples.
	ObservedRateMicros int64
	// PhaseErrorMicros is reported minus true time at the last sample,
	// positive when the clock is ahead.
	PhaseErrorMicros int64
	Samples          uint64
	RejectedRates    uint64
	Ticks            uint64
	LastSample       time.Time
}

// Clock is the discipline engine. It implements ntp.Callback.
// Methods are safe for concurrent use, but OnSample and Tick are expected
// to be called from one goroutine.
type Clock struct {
	// PhaseWindow overrides DefaultPhaseWindow when positive.
	PhaseWindow int64
	// RateTolerance is the accepted deviation of an observed rate as a
	// fraction of NominalRate. Negative disables the check.
	RateTolerance float64

	timer hw.Clock
	lock  sync.RWMutex

	hasSample    bool
	anchorTick   hw.Instant
	anchorMicros int64
	tickStart    hw.Instant
	deadline     hw.Instant
	seconds      int64
	rate         int64
	step         int64

	observed   int64
	phaseError int64
	samples    uint64
	rejected   uint64
	ticks      uint64
}

// New creates a Clock without time.
func New(timer hw.Clock) *Clock {
	now := timer.Now()
	return &Clock{
		RateTolerance: DefaultRateTolerance,
		timer:         timer,
		tickStart:     now,
		deadline:      now,
		rate:          NominalRate,
		step:          NominalRate,
	}
}

// OnSample ingests a validated time sample.
func (c *Clock) OnSample(unixSeconds int64, fraction uint32) {
	sampleMicros := unixSeconds*NominalRate + int64(fraction)*NominalRate>>32
	now := c.timer.Now()

	c.lock.Lock()
	defer c.lock.Unlock()
	c.samples++

	if !c.hasSample {
		c.hasSample = true
		c.anchorTick, c.anchorMicros = now, sampleMicros
		c.tickStart, c.deadline = now, now
		c.seconds = unixSeconds
		glog.Infof("clock: initial time %d", unixSeconds)
		return
	}

	trueDelta := sampleMicros - c.anchorMicros
	localDelta := c.anchorTick.DiffMicros(now)
	if observed, ok := c.observeRate(localDelta, trueDelta); ok {
		c.observed = observed
		c.rate = (c.rate*rateWeight + observed) / (rateWeight + 1)
	} else {
		c.rejected++
		glog.Warningf("clock: rate not updated, local %dus true %dus", localDelta, trueDelta)
	}

	c.phaseError = c.seconds*NominalRate - sampleMicros
	c.step = c.rate + c.phaseError/c.phaseWindow()
	glog.V(1).Infof("clock: rate %d observed %d phase %dus step %d",
		c.rate, c.observed, c.phaseError, c.step)

	c.anchorTick, c.anchorMicros = now, sampleMicros
}

func (c *Clock) observeRate(localDelta, trueDelta int64) (int64, bool) {
	if trueDelta <= 0 || localDelta < 0 || localDelta > maxLocalDelta {
		return 0, false
	}
	observed := localDelta * NominalRate / trueDelta
	if tol := c.RateTolerance; tol >= 0 {
		limit := int64(NominalRate * tol)
		if observed < NominalRate-limit || observed > NominalRate+limit {
			return observed, false
		}
	}
	return observed, true
}

func (c *Clock) phaseWindow() int64 {
	if c.PhaseWindow > 0 {
		return c.PhaseWindow
	}
	return DefaultPhaseWindow
}

// Tick advances the reported time by one second and returns the instant
// the next tick is due.
func (c *Clock) Tick() hw.Instant {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tickStart = c.deadline
	c.deadline = c.deadline.DelayedByMicros(c.step)
	c.seconds++
	c.ticks++
	return c.deadline
}

// Now returns the reported Unix seconds. It is meaningless before the
// first sample.
func (c *Clock) Now() int64 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.seconds
}

// HasTime reports whether a sample has been ingested.
func (c *Clock) HasTime() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.hasSample
}

// Deadline returns the instant the next tick is due.
func (c *Clock) Deadline() hw.Instant {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.deadline
}

// Time returns the reported time with the sub-second part interpolated
// from the progress of the current tick.
func (c *Clock) Time() time.Time {
	now := c.timer.Now()
	c.lock.RLock()
	defer c.lock.RUnlock()
	var frac int64
	if elapsed := c.tickStart.DiffMicros(now); elapsed > 0 && c.step > 0 {
		frac = elapsed * NominalRate / c.step
		if frac >= NominalRate {
			frac = NominalRate - 1
		}
	}
	return time.Unix(c.seconds, frac*int64(time.Microsecond))
}

// Stats returns a snapshot.
func (c *Clock) Stats() Stats {
	c.lock.RLock()
	defer c.lock.RUnlock()
	s := Stats{
		HasTime:            c.hasSample,
		Seconds:            c.seconds,
		RateMicros:         c.rate,
		StepMicros:         c.step,
		ObservedRateMicros: c.observed,
		PhaseErrorMicros:   c.phaseError,
		Samples:            c.samples,
		RejectedRates:      c.rejected,
		Ticks:              c.ticks,
	}
	if c.hasSample {
		s.LastSample = time.Unix(0, c.anchorMicros*int64(time.Microsecond))
	}
	return s
}
