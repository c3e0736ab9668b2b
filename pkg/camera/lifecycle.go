package camera

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	evAcquire   = "acquire"
	evConfigure = "configure"
	evStart     = "start"
	evStop      = "stop"
	evRelease   = "release"
)

func newLifecycle(log func() *zap.SugaredLogger) *fsm.FSM {
	return fsm.NewFSM(
		string(Released),
		fsm.Events{
			{Name: evAcquire, Src: []string{string(Released)}, Dst: string(Acquired)},
			{Name: evConfigure, Src: []string{string(Acquired), string(Configured)}, Dst: string(Configured)},
			{Name: evStart, Src: []string{string(Configured)}, Dst: string(Started)},
			{Name: evStop, Src: []string{string(Started)}, Dst: string(Configured)},
			{Name: evRelease, Src: []string{string(Acquired), string(Configured), string(Started)}, Dst: string(Released)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log().Debugf("%s: %s -> %s", e.Event, e.Src, e.Dst)
			},
		},
	)
}

// transition fires event on the lifecycle. Reconfiguring an already
// configured device is not an error.
func (c *Controller) transition(event string) {
	err := c.lc.Event(context.Background(), event)
	if err == nil {
		return
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	c.log.DPanicw("illegal lifecycle transition", "event", event, "state", c.lc.Current(), "error", err)
}

func (c *Controller) state() State {
	return State(c.lc.Current())
}
