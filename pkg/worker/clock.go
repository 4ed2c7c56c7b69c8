package worker

import (
	"sync"
	"time"

	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
)

// Clock is the worker's time source. Under a DeterminismConfig with
// FakeTime set, every single read advances the clock by TimeStep — including
// reads the worker itself makes for event timestamps and capability budget
// accounting, not just reads a user script could observe — mirroring
// apply_determinism's monkeypatch of time.time/time.perf_counter.
type Clock struct {
	mu   sync.Mutex
	fake bool
	t    float64
	step float64
}

// NewClock builds a Clock from det. A nil det, or one with FakeTime unset,
// yields a real wall-clock source.
func NewClock(det *policy.DeterminismConfig) *Clock {
	if det == nil || det.FakeTime == nil {
		return &Clock{}
	}
	return &Clock{fake: true, t: *det.FakeTime, step: det.TimeStep}
}

// Now returns the current time. Under a fake clock this advances the
// internal counter by the configured step on every call.
func (c *Clock) Now() time.Time {
	if !c.fake {
		return time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.t
	c.t += c.step
	return time.Unix(0, int64(v*float64(time.Second)))
}
