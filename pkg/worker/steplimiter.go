package worker

import "github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"

// StepLimiter implements evaluator.StepCounter, rejecting the run once it
// has taken more steps than policy.MaxSteps, mirroring make_step_limiter's
// sys.settrace-based "line"/"call" event counter.
type StepLimiter struct {
	n   int
	max int
}

func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

func (s *StepLimiter) Step() error {
	s.n++
	if s.max > 0 && s.n > s.max {
		return sandboxerr.NewStepLimitError(s.n, s.max)
	}
	return nil
}

// Count returns the number of steps taken so far.
func (s *StepLimiter) Count() int { return s.n }
