package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_FiresInOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var got []string
	m.Schedule(30*time.Millisecond, func() { got = append(got, "slow") })
	m.Schedule(20*time.Millisecond, func() { got = append(got, "fast") })

	m.Advance(60 * time.Millisecond)

	assert.Equal(t, []string{"fast", "slow", "fast", "fast", "slow"}, got)
	assert.Equal(t, time.Unix(0, 0).Add(60*time.Millisecond), m.Now())
}

func TestManual_CancelInsideCallback(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	calls := 0
	var e Event
	e = m.Schedule(10*time.Millisecond, func() {
		calls++
		if calls == 2 {
			e.Cancel()
		}
	})

	m.Advance(100 * time.Millisecond)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, m.Active())
}

func TestManual_NowDuringCallback(t *testing.T) {
	start := time.Unix(100, 0)
	m := NewManual(start)
	var seen []time.Duration
	m.Schedule(25*time.Millisecond, func() { seen = append(seen, m.Now().Sub(start)) })

	m.Advance(50 * time.Millisecond)

	assert.Equal(t, []time.Duration{25 * time.Millisecond, 50 * time.Millisecond}, seen)
}

func TestTicker_CancelStopsCalls(t *testing.T) {
	tk := NewTicker(context.Background())
	var calls atomic.Int32
	e := tk.Schedule(5*time.Millisecond, func() { calls.Add(1) })

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	e.Cancel()
	e.Cancel()
	n := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), n+1)
}

func TestTicker_ContextStopsCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tk := NewTicker(ctx)
	var calls atomic.Int32
	tk.Schedule(5*time.Millisecond, func() { calls.Add(1) })

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	n := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, calls.Load())
}
