package geometry

// DefaultJitterEpsilonSq is the squared displacement under which the smoother
// holds its previous output.
const DefaultJitterEpsilonSq = 4.0

// Smoothing divisor bounds accepted from configuration.
const (
	MinSmoothing = 1.0
	MaxSmoothing = 15.0
)

// Smoother is a first-order lag filter with a dead zone. Each call moves the
// output 1/Divisor of the way toward the target, unless the target is within
// the dead zone of the previous output, in which case the output is pinned.
type Smoother struct {
	divisor   float64
	epsilonSq float64

	prev   Point
	primed bool
}

// NewSmoother returns a smoother with the given divisor. Divisors outside
// [MinSmoothing, MaxSmoothing] are clamped.
func NewSmoother(divisor float64) *Smoother {
	s := &Smoother{epsilonSq: DefaultJitterEpsilonSq}
	s.SetDivisor(divisor)
	return s
}

// SetDivisor changes the smoothing divisor without resetting the filter.
func (s *Smoother) SetDivisor(divisor float64) {
	switch {
	case divisor < MinSmoothing:
		divisor = MinSmoothing
	case divisor > MaxSmoothing:
		divisor = MaxSmoothing
	}
	s.divisor = divisor
}

// Divisor returns the active smoothing divisor.
func (s *Smoother) Divisor() float64 {
	return s.divisor
}

// Next feeds a raw target and returns the smoothed point. The first sample
// after construction or Reset is passed through unchanged.
func (s *Smoother) Next(target Point) Point {
	if !s.primed {
		s.prev = target
		s.primed = true
		return target
	}

	if target.DistSq(s.prev) > s.epsilonSq {
		s.prev = Point{
			X: s.prev.X + (target.X-s.prev.X)/s.divisor,
			Y: s.prev.Y + (target.Y-s.prev.Y)/s.divisor,
		}
	}
	return s.prev
}

// Last returns the most recent output and whether any sample has been seen.
func (s *Smoother) Last() (Point, bool) {
	return s.prev, s.primed
}

// Reset forgets the filter history; the next sample is passed through.
func (s *Smoother) Reset() {
	s.prev = Point{}
	s.primed = false
}
