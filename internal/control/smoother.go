package control

// Smoother rate-limits fan speed changes. The first target for a fan passes
// through unchanged; afterwards the returned speed moves at most step percent
// per call from the previously returned speed.
type Smoother struct {
	last map[string]float64
}

func NewSmoother() *Smoother {
	return &Smoother{last: make(map[string]float64)}
}

// Smooth returns the speed to apply for the fan and remembers it as the
// baseline for the next call.
func (s *Smoother) Smooth(fanID string, target, step float64) float64 {
	last, seen := s.last[fanID]
	if !seen {
		s.last[fanID] = target
		return target
	}

	applied := target
	if target > last+step {
		applied = last + step
	} else if target < last-step {
		applied = last - step
	}

	s.last[fanID] = applied

	return applied
}
