package camera

import (
	"time"

	"github.com/google/uuid"

	"camera-core/pkg/clock"
)

// scheduler is one streaming session: created by Start, dropped by Stop.
type scheduler struct {
	id       string
	interval time.Duration
	budget   int
	retries  int
	window   deltaWindow
	last     time.Time
	event    clock.Event
}

func newScheduler(fps float64, budget int, now time.Time) *scheduler {
	return &scheduler{
		id:       uuid.NewString(),
		interval: intervalOf(fps),
		budget:   budget,
		retries:  budget,
		last:     now,
	}
}

func intervalOf(fps float64) time.Duration {
	if fps <= 0 {
		fps = FallbackFPS
	}
	return time.Duration(float64(time.Second) / fps)
}

// succeeded records a delivered frame at now and refills the retry budget.
func (s *scheduler) succeeded(now time.Time) {
	s.window.push(now.Sub(s.last).Seconds())
	s.last = now
	s.retries = s.budget
}

// failed spends one retry and reports how many are left.
func (s *scheduler) failed() int {
	s.retries--
	return s.retries
}

func (s *scheduler) realFPS() float64 {
	return s.window.rate()
}

func (s *scheduler) schedule(clk clock.Clock, fn func()) {
	s.event = clk.Schedule(s.interval, fn)
}

func (s *scheduler) cancel() {
	if s.event != nil {
		s.event.Cancel()
		s.event = nil
	}
}

// restart re-arms the session at a new rate. Deltas measured at the old
// rate are dropped.
func (s *scheduler) restart(clk clock.Clock, fps float64, fn func()) {
	s.cancel()
	s.interval = intervalOf(fps)
	s.window.reset()
	s.retries = s.budget
	s.last = clk.Now()
	s.schedule(clk, fn)
}
