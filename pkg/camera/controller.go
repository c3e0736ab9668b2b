package camera

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"camera-core/pkg/clock"
)

// Controller drives one DeviceBackend through acquire, configure, start and
// stop, and pulls frames from it on a Clock while started.
//
// No lifecycle method returns an error or panics because of the device: a
// failure is logged and leaves the Controller in an earlier state.
type Controller struct {
	mu sync.Mutex
	// pending Sink calls, run by whoever set delivering, never under mu.
	pending    []func()
	delivering bool

	backend DeviceBackend
	sink    Sink
	clock   clock.Clock
	base    *zap.SugaredLogger
	log     *zap.SugaredLogger
	lc      *fsm.FSM

	index       int
	resolution  Resolution
	actual      Resolution
	announced   Resolution
	targetFPS   float64
	explicitFPS bool
	retryBudget int

	sched *scheduler
	seq   uint64

	delivered uint64
	transient uint64
	fatal     uint64
}

type Option func(*Controller)

func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		c.clock = clk
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) {
		c.base = l
	}
}

// New binds a Controller to backend. The Controller owns backend from now
// on; sink may be nil. With cfg.StartImmediately the Controller tries to
// start before returning; check State to see whether it did.
func New(backend DeviceBackend, sink Sink, cfg Config, opts ...Option) *Controller {
	if sink == nil {
		sink = SinkFuncs{}
	}
	c := &Controller{
		backend:     backend,
		sink:        sink,
		index:       cfg.DeviceIndex,
		resolution:  cfg.Resolution(),
		retryBudget: cfg.RetryBudget,
		targetFPS:   FallbackFPS,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = clock.NewTicker(nil)
	}
	if c.base == nil {
		c.base = logger
	}
	c.log = c.base.With("device", c.index)
	if !c.resolution.Valid() {
		c.log.Warnw("invalid resolution, using default", "requested", c.resolution)
		c.resolution = Resolution{Width: DefaultWidth, Height: DefaultHeight}
	}
	if c.retryBudget <= 0 {
		c.retryBudget = DefaultRetryBudget
	}
	if cfg.FPS > 0 && validFPS(cfg.FPS) {
		c.targetFPS = cfg.FPS
		c.explicitFPS = true
	}
	c.lc = newLifecycle(func() *zap.SugaredLogger { return c.log })

	if cfg.StartImmediately {
		c.Start()
	}

	return c
}

// unlock releases mu, then runs the Sink notifications queued under it.
// A Controller call made from inside a Sink callback only queues its own
// notifications; the outermost caller keeps delivering until none are left.
func (c *Controller) unlock() {
	if c.delivering || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	done := false
	defer func() {
		if !done {
			c.mu.Lock()
			c.delivering = false
			c.pending = nil
			c.mu.Unlock()
		}
	}()
	for len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()
		for _, fn := range pending {
			fn()
		}
		c.mu.Lock()
	}
	c.delivering = false
	done = true
	c.mu.Unlock()
}

// Acquire opens the device, releasing it first if already acquired.
func (c *Controller) Acquire() bool {
	c.mu.Lock()
	defer c.unlock()
	return c.acquireLocked()
}

// Release stops capture and closes the device. It is a no-op when released.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.unlock()
	c.releaseLocked()
}

// Prepare acquires the device if needed and fully reconfigures it. On a
// configuration failure the device is released.
func (c *Controller) Prepare() bool {
	c.mu.Lock()
	defer c.unlock()
	return c.prepareLocked()
}

// Start prepares the device if it is not configured, then schedules frame
// reads at the target rate.
func (c *Controller) Start() bool {
	c.mu.Lock()
	defer c.unlock()
	return c.startLocked()
}

// Stop unschedules frame reads. The device stays open.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.unlock()
	c.stopLocked()
}

func (c *Controller) acquireLocked() bool {
	if c.state() != Released {
		c.releaseLocked()
	}
	idx := c.index
	if err := guard("open", func() error { return c.backend.Open(idx) }); err != nil {
		c.log.Errorw("could not acquire camera", "op", "open", "index", idx, "error", err)
		return false
	}
	c.transition(evAcquire)

	return true
}

func (c *Controller) releaseLocked() {
	if c.state() == Released {
		return
	}
	c.stopLocked()
	if err := guard("close", c.backend.Close); err != nil {
		c.log.Warnw("could not close camera cleanly", "op", "close", "error", err)
	}
	c.actual = Resolution{}
	c.transition(evRelease)
}

func (c *Controller) prepareLocked() bool {
	c.stopLocked()
	if c.state() == Released && !c.acquireLocked() {
		return false
	}
	if err := c.configureLocked(); err != nil {
		c.log.Errorw("could not configure camera, releasing it", "op", "configure", "error", err)
		c.releaseLocked()
		return false
	}
	c.transition(evConfigure)
	c.announceLocked()

	return true
}

func (c *Controller) configureLocked() error {
	res := c.resolution
	if err := c.setParameter(ParamWidth, float64(res.Width)); err != nil {
		return err
	}
	if err := c.setParameter(ParamHeight, float64(res.Height)); err != nil {
		return err
	}
	if c.explicitFPS {
		if err := c.setParameter(ParamFPS, c.targetFPS); err != nil {
			c.log.Warnw("camera refused fps, scheduling at the requested rate anyway", "fps", c.targetFPS, "error", err)
		}
	}

	frame, err := c.read()
	if err != nil {
		return fmt.Errorf("could not read initial image: %w", err)
	}
	actual := frame.Resolution()
	if !actual.Valid() {
		return fmt.Errorf("initial image has no size (%s)", actual)
	}
	if actual != res {
		c.log.Infow("size corrected by camera", "requested", res, "actual", actual)
	}
	c.actual = actual

	if !c.explicitFPS {
		fps := c.deviceFPS()
		if !validFPS(fps) {
			c.log.Infow("invalid fps returned by camera, using fallback", "fps", fps, "fallback", FallbackFPS)
			fps = FallbackFPS
		}
		c.targetFPS = fps
	}

	return nil
}

// announceLocked queues OnDeviceReady when the finalized size is new.
func (c *Controller) announceLocked() {
	if c.actual == c.announced {
		return
	}
	c.announced = c.actual
	actual, sink := c.actual, c.sink
	c.pending = append(c.pending, func() { sink.OnDeviceReady(actual) })
}

func (c *Controller) startLocked() bool {
	switch c.state() {
	case Started:
		return true
	case Configured:
	default:
		if !c.prepareLocked() {
			return false
		}
	}

	s := newScheduler(c.targetFPS, c.retryBudget, c.clock.Now())
	s.schedule(c.clock, func() { c.tick(s) })
	c.sched = s
	c.transition(evStart)
	c.log.Infow("capture started", "session", s.id, "resolution", c.actual, "fps", c.targetFPS, "interval", s.interval)

	return true
}

func (c *Controller) stopLocked() {
	if c.state() != Started {
		return
	}
	s := c.sched
	c.sched = nil
	if s != nil {
		s.cancel()
		c.log.Infow("capture stopped", "session", s.id)
	}
	c.transition(evStop)
}

// tick is one scheduled pull: read a frame, queue it for the sink and update
// the rate window. A tick from a session that was stopped does nothing.
func (c *Controller) tick(s *scheduler) {
	c.mu.Lock()
	defer c.unlock()
	if c.sched != s || c.state() != Started {
		return
	}

	frame, err := c.read()
	if err != nil {
		c.readFailed(s, err)
		return
	}

	now := c.clock.Now()
	s.succeeded(now)
	c.seq++
	c.delivered++
	frame.Seq = c.seq
	if frame.Timestamp.IsZero() {
		frame.Timestamp = now
	}
	sink := c.sink
	c.pending = append(c.pending, func() { sink.OnFrameReady(frame) })
}

func (c *Controller) readFailed(s *scheduler, err error) {
	if IsFatal(err) {
		c.fatal++
		c.log.Errorw("fatal read failure, stopping capture", "session", s.id, "error", err)
		c.stopLocked()
		return
	}
	c.transient++
	left := s.failed()
	if left <= 0 {
		c.log.Errorw("read retries exhausted, stopping capture", "session", s.id, "budget", s.budget, "error", err)
		c.stopLocked()
		return
	}
	c.log.Warnw("could not read image from camera", "session", s.id, "retries_left", left, "error", err)
}

func (c *Controller) read() (Frame, error) {
	var frame Frame
	err := guard("read", func() (err error) {
		frame, err = c.backend.Read()
		return err
	})
	return frame, err
}

func (c *Controller) setParameter(p Param, v float64) error {
	err := guard("set "+p.String(), func() error { return c.backend.SetParameter(p, v) })
	if err != nil {
		return fmt.Errorf("set %s to %v: %w", p, v, err)
	}
	return nil
}

func (c *Controller) deviceFPS() (fps float64) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warnw("fps query panicked", "panic", r)
			fps = 0
		}
	}()
	return c.backend.FPS()
}

// SetResolution changes the requested resolution. Released or merely
// acquired devices only store it; a configured device is reconfigured, and a
// started one is stopped, reconfigured and restarted. It returns false when
// the reconfiguration failed, in which case the device has been released.
func (c *Controller) SetResolution(r Resolution) bool {
	c.mu.Lock()
	defer c.unlock()
	if !r.Valid() {
		c.log.Warnw("ignoring invalid resolution", "requested", r)
		return false
	}
	if r == c.resolution {
		return true
	}
	c.resolution = r

	switch c.state() {
	case Configured:
		return c.prepareLocked()
	case Started:
		return c.prepareLocked() && c.startLocked()
	default:
		return true
	}
}

// SetDeviceIndex switches to another physical device. While acquired this is
// a full cycle: release, acquire the new index, and bring it back to the
// state the old device was in. It returns false if any step failed.
func (c *Controller) SetDeviceIndex(index int) bool {
	c.mu.Lock()
	defer c.unlock()
	if index == c.index {
		return true
	}
	prev := c.state()
	c.index = index
	c.log = c.base.With("device", index)
	if prev == Released {
		return true
	}

	c.releaseLocked()
	if !c.acquireLocked() {
		return false
	}
	switch prev {
	case Configured:
		return c.prepareLocked()
	case Started:
		return c.startLocked()
	default:
		return true
	}
}

// SetTargetFPS changes the scheduling rate and returns the rate in effect.
// Values that are not positive are replaced by FallbackFPS. A started
// session is rescheduled at the new interval.
func (c *Controller) SetTargetFPS(fps float64) float64 {
	c.mu.Lock()
	defer c.unlock()
	if !validFPS(fps) {
		c.log.Warnw("invalid fps requested, using fallback", "requested", fps, "fallback", FallbackFPS)
		fps = FallbackFPS
	}
	c.explicitFPS = true
	if fps == c.targetFPS {
		return fps
	}
	c.targetFPS = fps

	st := c.state()
	if st == Configured || st == Started {
		if err := c.setParameter(ParamFPS, fps); err != nil {
			c.log.Warnw("camera refused fps, scheduling at the requested rate anyway", "fps", fps, "error", err)
		}
	}
	if st == Started && c.sched != nil {
		s := c.sched
		s.restart(c.clock, fps, func() { c.tick(s) })
		c.log.Infow("capture rescheduled", "session", s.id, "fps", fps, "interval", s.interval)
	}

	return fps
}

func validFPS(fps float64) bool {
	return fps > 0 && !math.IsNaN(fps) && !math.IsInf(fps, 0)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *Controller) Acquired() bool {
	return c.State() != Released
}

// Configured reports whether the device is ready to stream.
func (c *Controller) Configured() bool {
	st := c.State()
	return st == Configured || st == Started
}

func (c *Controller) Started() bool {
	return c.State() == Started
}

func (c *Controller) DeviceIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Resolution is the requested resolution.
func (c *Controller) Resolution() Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolution
}

// ActualResolution is the size the device delivers. ok is false unless the
// device is configured.
func (c *Controller) ActualResolution() (r Resolution, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state()
	if st != Configured && st != Started {
		return Resolution{}, false
	}
	return c.actual, true
}

func (c *Controller) TargetFPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetFPS
}

func (c *Controller) Interval() time.Duration {
	return intervalOf(c.TargetFPS())
}

// RealFPS is the rate measured over the last DeltaWindowSize frames of the
// current session, 0 when not started.
func (c *Controller) RealFPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sched == nil {
		return 0
	}
	return c.sched.realFPS()
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{
		State:             c.state(),
		DeviceIndex:       c.index,
		Requested:         c.resolution,
		Actual:            c.actual,
		TargetFPS:         c.targetFPS,
		FramesDelivered:   c.delivered,
		TransientFailures: c.transient,
		FatalFailures:     c.fatal,
	}
	if s := c.sched; s != nil {
		st.RealFPS = s.realFPS()
		st.RetryBudgetLeft = s.retries
		st.Session = s.id
	}
	return st
}
