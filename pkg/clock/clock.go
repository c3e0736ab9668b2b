// Package clock is the periodic callback facility the camera scheduler runs on.
//
// A Clock never runs two callbacks of the same Event concurrently: the next
// call of an Event starts only after the previous one returned. Cancel stops
// further calls; a call already in flight is allowed to finish.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock schedules periodic callbacks.
type Clock interface {
	Now() time.Time
	Schedule(interval time.Duration, fn func()) Event
}

// Event is a scheduled periodic callback.
type Event interface {
	Cancel()
}

// Ticker runs every scheduled Event on its own goroutine driven by a time.Ticker.
type Ticker struct {
	ctx context.Context
}

// NewTicker returns a Clock whose Events also stop when ctx is done.
func NewTicker(ctx context.Context) *Ticker {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Ticker{ctx: ctx}
}

func (t *Ticker) Now() time.Time {
	return time.Now()
}

func (t *Ticker) Schedule(interval time.Duration, fn func()) Event {
	if interval <= 0 {
		interval = time.Millisecond
	}
	e := &tickerEvent{
		t:    time.NewTicker(interval),
		done: make(chan struct{}),
	}
	go e.loop(t.ctx, fn)

	return e
}

type tickerEvent struct {
	t    *time.Ticker
	done chan struct{}
	once sync.Once
}

func (e *tickerEvent) loop(ctx context.Context, fn func()) {
	defer e.t.Stop()
	for {
		select {
		case <-e.t.C:
			// Cancel may race with the tick that was already queued.
			select {
			case <-e.done:
				return
			default:
			}
			fn()
		case <-e.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *tickerEvent) Cancel() {
	e.once.Do(func() {
		close(e.done)
	})
}
