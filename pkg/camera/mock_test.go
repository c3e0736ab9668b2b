package camera

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"camera-core/pkg/clock"
)

// mockBackend records every call made by the Controller.
type mockBackend struct {
	mu sync.Mutex

	calls  []string
	opened []int
	open   bool
	params map[Param]float64

	openErr  error
	closeErr error
	// readErrs are consumed one per read before readErr applies; a nil
	// entry is a successful read.
	readErrs []error
	readErr  error
	// blank makes every successful read return an empty frame.
	blank bool
	// size overrides the frame size; zero means honor width/height.
	size     Resolution
	fps      float64
	panicOp  string
	reads    int
	closes   int
	maxOpens int
}

func newMockBackend() *mockBackend {
	return &mockBackend{params: make(map[Param]float64)}
}

func (m *mockBackend) record(op string) {
	m.calls = append(m.calls, op)
	if m.panicOp == op {
		panic(fmt.Sprintf("%s exploded", op))
	}
}

func (m *mockBackend) Open(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("open")
	if m.openErr != nil {
		return m.openErr
	}
	if m.open {
		return fmt.Errorf("double open")
	}
	m.open = true
	m.opened = append(m.opened, index)
	if len(m.opened)-m.closes > m.maxOpens {
		m.maxOpens = len(m.opened) - m.closes
	}
	return nil
}

func (m *mockBackend) SetParameter(p Param, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("set " + p.String())
	if !m.open {
		return ErrNotOpen
	}
	m.params[p] = v
	return nil
}

func (m *mockBackend) Read() (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("read")
	m.reads++
	if !m.open {
		return Frame{}, ErrNotOpen
	}
	if len(m.readErrs) > 0 {
		err := m.readErrs[0]
		m.readErrs = m.readErrs[1:]
		if err != nil {
			return Frame{}, err
		}
	} else if m.readErr != nil {
		return Frame{}, m.readErr
	}
	if m.blank {
		return Frame{}, nil
	}
	size := m.size
	if !size.Valid() {
		size = Resolution{Width: int(m.params[ParamWidth]), Height: int(m.params[ParamHeight])}
	}
	return Frame{
		Data:   make([]byte, size.Width*size.Height*3),
		Width:  size.Width,
		Height: size.Height,
		Format: FormatRGB24,
	}, nil
}

func (m *mockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("close")
	if !m.open {
		return fmt.Errorf("double close")
	}
	m.open = false
	m.closes++
	return m.closeErr
}

func (m *mockBackend) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("fps")
	if v, ok := m.params[ParamFPS]; ok {
		return v
	}
	return m.fps
}

func (m *mockBackend) set(fn func(m *mockBackend)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *mockBackend) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockBackend) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *mockBackend) openedIndexes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.opened...)
}

func (m *mockBackend) balance() (opens, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opened), m.closes
}

// recordingSink keeps what the Controller delivered.
type recordingSink struct {
	mu     sync.Mutex
	frames []Frame
	ready  []Resolution
}

func (s *recordingSink) OnFrameReady(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

func (s *recordingSink) OnDeviceReady(r Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = append(s.ready, r)
}

func (s *recordingSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSink) readyCalls() []Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Resolution(nil), s.ready...)
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	backend *mockBackend
	sink    *recordingSink
	clock   *clock.Manual
	logs    *observer.ObservedLogs
	ctrl    *Controller
}

// newFixture builds a stopped Controller unless cfg says otherwise.
func newFixture(t *testing.T, cfg Config, prep ...func(*mockBackend)) *fixture {
	t.Helper()
	f := &fixture{
		backend: newMockBackend(),
		sink:    &recordingSink{},
		clock:   clock.NewManual(epoch),
	}
	for _, p := range prep {
		p(f.backend)
	}
	core, logs := observer.New(zap.DebugLevel)
	f.logs = logs
	l := zap.New(zapcore.NewTee(core, zaptest.NewLogger(t).Core())).Sugar()
	f.ctrl = New(f.backend, f.sink, cfg, WithClock(f.clock), WithLogger(l))
	return f
}

func stoppedConfig() Config {
	cfg := DefaultConfig()
	cfg.StartImmediately = false
	return cfg
}
