package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock that only moves when Advance is called. Callbacks run
// synchronously on the goroutine calling Advance, in due-time order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	events []*manualEvent
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(interval time.Duration, fn func()) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval <= 0 {
		interval = time.Millisecond
	}
	e := &manualEvent{
		m:        m,
		interval: interval,
		next:     m.now.Add(interval),
		fn:       fn,
	}
	m.events = append(m.events, e)

	return e
}

// Active reports how many Events are still scheduled.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Advance moves the clock forward by d, firing every callback that falls due
// on the way. A callback may cancel or schedule Events.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		e := m.nextDue(target)
		if e == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = e.next
		e.next = e.next.Add(e.interval)
		fn := e.fn
		m.mu.Unlock()

		fn()
	}
}

func (m *Manual) nextDue(target time.Time) *manualEvent {
	if len(m.events) == 0 {
		return nil
	}
	sort.SliceStable(m.events, func(i, j int) bool {
		return m.events[i].next.Before(m.events[j].next)
	})
	e := m.events[0]
	if e.next.After(target) {
		return nil
	}

	return e
}

func (m *Manual) remove(e *manualEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ev := range m.events {
		if ev == e {
			m.events = append(m.events[:i], m.events[i+1:]...)
			return
		}
	}
}

type manualEvent struct {
	m        *Manual
	interval time.Duration
	next     time.Time
	fn       func()
}

func (e *manualEvent) Cancel() {
	e.m.remove(e)
}
