package sim

// Oscillator models a local crystal running off nominal frequency.
// The simulated Clock is advanced in local time while the caller
// tracks true time.
type Oscillator struct {
	Clock *Clock
	// PPM is the frequency error in parts per million. Positive values
	// make the local clock run fast.
	PPM int64

	// true time elapsed in microseconds.
	elapsed int64
	// local microseconds already applied to Clock.
	applied int64
}

// Elapse lets trueMicros of real time pass.
func (o *Oscillator) Elapse(trueMicros int64) {
	o.elapsed += trueMicros
	local := o.elapsed * (1000000 + o.PPM) / 1000000
	o.Clock.AdvanceMicros(local - o.applied)
	o.applied = local
}

// ElapsedMicros returns the true time elapsed.
func (o *Oscillator) ElapsedMicros() int64 {
	return o.elapsed
}

// LocalMicros returns the local time elapsed.
func (o *Oscillator) LocalMicros() int64 {
	return o.applied
}
