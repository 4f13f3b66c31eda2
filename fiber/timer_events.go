package fiber

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/badu/reactor/kqfd"
	"github.com/badu/reactor/reactor"
)

// TimerEvent adapts a kqfd.TimerFD into a reactor.Client: a persistent
// registration that invokes onFire every time the timer's counter becomes
// readable, draining the counter via Handle so the same expiration is
// never delivered twice. For any fiber that wants a recurring tick
// outside of Suspend/Resume (e.g. a keep-alive idle sweep); the
// dispatcher's own wakeup timer is a separate client in reactor/pool.go.
type TimerEvent struct {
	timer  *kqfd.TimerFD
	name   string
	onFire func(fireCount uint64)
}

// NewTimerEvent wraps timer, invoking onFire with the number of
// expirations coalesced into a single readiness event (normally 1, but a
// late-running event loop can coalesce several).
func NewTimerEvent(timer *kqfd.TimerFD, onFire func(fireCount uint64)) *TimerEvent {
	return &TimerEvent{
		timer:  timer,
		name:   "timer-" + uuid.NewString(),
		onFire: onFire,
	}
}

func (e *TimerEvent) FD() int                  { return e.timer.FD() }
func (e *TimerEvent) Events() reactor.EventMask { return reactor.Readable }
func (e *TimerEvent) DebugName() string        { return e.name }

func (e *TimerEvent) Handle(mask reactor.EventMask) (bool, error) {
	count, err := e.timer.Handle()
	if err != nil {
		return false, errors.Wrap(err, "timer_event handle")
	}
	if count > 0 {
		e.onFire(count)
	}
	return true, nil
}

func (e *TimerEvent) Finalize(reactor.Status)              {}
func (e *TimerEvent) Error(err error, mask reactor.EventMask) {}

// FiberTimerEvent is the fiber-level counterpart of selectEvent: it wakes
// a suspended fiber from a dedicated per-fiber timerfd rather than from an
// I/O-readiness fd, for body code that wants "suspend until N
// milliseconds pass" without involving the deadline manager (which is
// reserved for the reactor's own per-registration timeouts).
type FiberTimerEvent struct {
	timer *kqfd.TimerFD
	name  string
	fiber *Fiber
	token uint64
}

func newFiberTimerEvent(timer *kqfd.TimerFD, f *Fiber, token uint64) *FiberTimerEvent {
	return &FiberTimerEvent{
		timer: timer,
		name:  "fiber-timer-" + uuid.NewString(),
		fiber: f,
		token: token,
	}
}

func (e *FiberTimerEvent) FD() int                  { return e.timer.FD() }
func (e *FiberTimerEvent) Events() reactor.EventMask { return reactor.Readable }
func (e *FiberTimerEvent) DebugName() string        { return e.name }

func (e *FiberTimerEvent) Handle(mask reactor.EventMask) (bool, error) {
	if _, err := e.timer.Handle(); err != nil {
		return false, errors.Wrap(err, "fiber_timer_event handle")
	}
	e.fiber.Resume(e.token, struct{}{})
	return false, nil
}

func (e *FiberTimerEvent) Finalize(status reactor.Status) {
	if status == reactor.StatusError || status == reactor.StatusTimeout {
		e.fiber.Resume(e.token, status)
	}
	_ = e.timer.Close()
}

func (e *FiberTimerEvent) Error(err error, mask reactor.EventMask) {
	e.fiber.Resume(e.token, err)
}

// Sleep suspends the calling fiber for duration d, backed by a dedicated
// one-shot timerfd registered with disp.
func Sleep(f *Fiber, disp *reactor.Dispatcher, d time.Duration) error {
	timer, err := kqfd.NewTimerFD(false)
	if err != nil {
		return errors.Wrap(err, "fiber sleep: new timerfd")
	}
	if _, _, err := timer.Set(d, 0, false); err != nil {
		_ = timer.Close()
		return errors.Wrap(err, "fiber sleep: arm timerfd")
	}
	result := f.Suspend(func(token uint64) {
		ev := newFiberTimerEvent(timer, f, token)
		// Runs on the fiber's own goroutine; route through Submit so the
		// registration actually happens on the dispatcher's goroutine.
		regErr := disp.Submit(func() error {
			_, err := disp.Register(ev)
			return err
		})
		if regErr != nil {
			panic(errors.Wrap(regErr, "fiber sleep: register timer event"))
		}
	})
	if err, ok := result.(error); ok {
		return err
	}
	return nil
}
