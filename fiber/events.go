package fiber

import (
	"github.com/google/uuid"

	"github.com/badu/reactor/reactor"
)

// selectEvent is a one-shot reactor.Client that exists only to wake a
// suspended fiber when its fd becomes ready (or times out, or errors). It
// is the leaf spec.md §4.D calls a select event: the dispatcher's unit of
// registration, carrying no state beyond "which fiber, which token, which
// fd, which mask".
type selectEvent struct {
	fd     int
	events reactor.EventMask
	name   string

	fiber *Fiber
	token uint64

	expiryHandle uint64
	expiryActive bool
}

// newSelectEvent builds a select event for fd awaiting mask, that resumes
// fiber with token carrying the final EventMask, reactor.StatusTimeout on
// timeout, or the error passed to Error, as its event value.
func newSelectEvent(fd int, mask reactor.EventMask, f *Fiber, token uint64) *selectEvent {
	return &selectEvent{
		fd:     fd,
		events: mask,
		name:   "select-" + uuid.NewString(),
		fiber:  f,
		token:  token,
	}
}

func (e *selectEvent) FD() int                { return e.fd }
func (e *selectEvent) Events() reactor.EventMask { return e.events }
func (e *selectEvent) DebugName() string      { return e.name }

func (e *selectEvent) Handle(mask reactor.EventMask) (bool, error) {
	e.fiber.Resume(e.token, mask)
	return false, nil // one-shot: always unregister after waking the fiber
}

func (e *selectEvent) Finalize(status reactor.Status) {
	if status == reactor.StatusTimeout {
		e.fiber.Resume(e.token, status)
	}
	// StatusSuccess finalize follows a Handle that already resumed the
	// fiber; nothing further to do. StatusError follows a failed Handle:
	// the dispatcher calls Error right after this Finalize, and Error
	// resumes the fiber with the error.
}

func (e *selectEvent) Error(err error, mask reactor.EventMask) {
	e.fiber.Resume(e.token, err)
}

func (e *selectEvent) ExpiryHandle() (uint64, bool) { return e.expiryHandle, e.expiryActive }
func (e *selectEvent) SetExpiryHandle(h uint64, active bool) {
	e.expiryHandle, e.expiryActive = h, active
}

// CountingSelectEvent wraps selectEvent semantics for long-lived listeners
// (e.g. an accept loop) that should be re-registered after every wakeup
// instead of torn down. It tracks how many times it has fired, per
// spec.md §4.D's note that some leaves exist purely to observe repeat
// activity without being one-shot.
type CountingSelectEvent struct {
	fd     int
	events reactor.EventMask
	name   string
	count  uint64
	onFire func(mask reactor.EventMask)
}

// NewCountingSelectEvent builds a persistent (non-one-shot) select event;
// onFire is invoked synchronously from the reactor's goroutine on every
// readiness event, and the event remains registered afterward.
func NewCountingSelectEvent(fd int, mask reactor.EventMask, onFire func(reactor.EventMask)) *CountingSelectEvent {
	return &CountingSelectEvent{
		fd:     fd,
		events: mask,
		name:   "counting-select-" + uuid.NewString(),
		onFire: onFire,
	}
}

func (e *CountingSelectEvent) FD() int                  { return e.fd }
func (e *CountingSelectEvent) Events() reactor.EventMask { return e.events }
func (e *CountingSelectEvent) DebugName() string        { return e.name }
func (e *CountingSelectEvent) Count() uint64            { return e.count }

func (e *CountingSelectEvent) Handle(mask reactor.EventMask) (bool, error) {
	e.count++
	e.onFire(mask)
	return true, nil
}

func (e *CountingSelectEvent) Finalize(reactor.Status) {}
func (e *CountingSelectEvent) Error(err error, mask reactor.EventMask) {}
