// Package debounce turns noisy per-frame boolean signals into stable flags.
package debounce

// Default frame thresholds.
const (
	DefaultDualThreshold   = 5
	DefaultToggleThreshold = 6
	DefaultVoiceGrace      = 20
)

// HysteresisCounter is a saturating up/down counter. The raw condition
// increments it up to the threshold and its absence decrements it down to
// zero. The stabilized output turns on only at saturation and turns off only
// at zero, so engaging and disengaging each take threshold frames.
type HysteresisCounter struct {
	threshold int
	count     int
	active    bool
}

// NewHysteresisCounter returns a counter saturating at threshold. A
// threshold below 1 is treated as 1.
func NewHysteresisCounter(threshold int) *HysteresisCounter {
	if threshold < 1 {
		threshold = 1
	}
	return &HysteresisCounter{threshold: threshold}
}

// Observe feeds one frame's raw condition and returns the stabilized value.
func (c *HysteresisCounter) Observe(raw bool) bool {
	if raw {
		if c.count < c.threshold {
			c.count++
		}
	} else if c.count > 0 {
		c.count--
	}

	switch c.count {
	case c.threshold:
		c.active = true
	case 0:
		c.active = false
	}
	return c.active
}

// Active returns the last stabilized value.
func (c *HysteresisCounter) Active() bool { return c.active }

// Count returns the raw counter value.
func (c *HysteresisCounter) Count() int { return c.count }

// Threshold returns the saturation level.
func (c *HysteresisCounter) Threshold() int { return c.threshold }

// SetThreshold changes the saturation level, clamping the current count.
func (c *HysteresisCounter) SetThreshold(threshold int) {
	if threshold < 1 {
		threshold = 1
	}
	c.threshold = threshold
	if c.count >= threshold {
		c.count = threshold
		c.active = true
	}
}

// Reset zeroes the counter and clears the output.
func (c *HysteresisCounter) Reset() {
	c.count = 0
	c.active = false
}

// GraceLatch jumps to its maximum whenever the condition is seen and then
// decays by one per frame. It stays active while the count is positive, so a
// short detection gap does not cancel an activity in progress.
type GraceLatch struct {
	max   int
	count int
}

// NewGraceLatch returns a latch that holds for max frames after the last
// detection.
func NewGraceLatch(max int) *GraceLatch {
	if max < 1 {
		max = 1
	}
	return &GraceLatch{max: max}
}

// Observe feeds one frame and returns whether the latch is held.
func (g *GraceLatch) Observe(raw bool) bool {
	if raw {
		g.count = g.max
	} else if g.count > 0 {
		g.count--
	}
	return g.count > 0
}

// Active reports whether the latch is held.
func (g *GraceLatch) Active() bool { return g.count > 0 }

// Remaining returns the frames left before the latch drops.
func (g *GraceLatch) Remaining() int { return g.count }

// SetMax changes the hold length for future detections.
func (g *GraceLatch) SetMax(max int) {
	if max < 1 {
		max = 1
	}
	g.max = max
	if g.count > max {
		g.count = max
	}
}

// Reset drops the latch immediately.
func (g *GraceLatch) Reset() { g.count = 0 }

// Thresholds configures a Debouncer.
type Thresholds struct {
	Dual   int
	Toggle int
}

// DefaultThresholds returns the stock frame counts.
func DefaultThresholds() Thresholds {
	return Thresholds{Dual: DefaultDualThreshold, Toggle: DefaultToggleThreshold}
}

// ModeFlags are the per-frame stabilized mode signals.
type ModeFlags struct {
	DualTouch     bool
	ToggleGesture bool

	// ToggleTriggered is set only on the frame ToggleGesture turns on.
	ToggleTriggered bool
}

// Debouncer owns the counters for every engine mode condition.
type Debouncer struct {
	dual   *HysteresisCounter
	toggle *HysteresisCounter
}

// NewDebouncer returns a Debouncer with the given thresholds.
func NewDebouncer(t Thresholds) *Debouncer {
	return &Debouncer{
		dual:   NewHysteresisCounter(t.Dual),
		toggle: NewHysteresisCounter(t.Toggle),
	}
}

// Observe feeds one frame of raw requests.
func (d *Debouncer) Observe(dual, toggle bool) ModeFlags {
	wasToggle := d.toggle.Active()
	flags := ModeFlags{
		DualTouch:     d.dual.Observe(dual),
		ToggleGesture: d.toggle.Observe(toggle),
	}
	flags.ToggleTriggered = flags.ToggleGesture && !wasToggle
	return flags
}

// Flags returns the current stabilized values without advancing the counters.
func (d *Debouncer) Flags() ModeFlags {
	return ModeFlags{DualTouch: d.dual.Active(), ToggleGesture: d.toggle.Active()}
}

// SetThresholds applies new thresholds without resetting the counters.
func (d *Debouncer) SetThresholds(t Thresholds) {
	d.dual.SetThreshold(t.Dual)
	d.toggle.SetThreshold(t.Toggle)
}

// Reset zeroes all counters.
func (d *Debouncer) Reset() {
	d.dual.Reset()
	d.toggle.Reset()
}
