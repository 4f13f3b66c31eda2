// Package kqfd wraps the Linux kernel notification primitives the reactor
// is built on: timerfd, eventfd and signalfd. Each wrapper owns exactly one
// fd, exposes a small open/arm/read/close surface, and carries a debug
// identifier so the reactor's error callbacks can name the fd that misbehaved.
package kqfd

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// TimerFD is a timerfd_create(2) handle. It fires one-shot or interval
// timers and is read as an 8-byte expiration counter.
type TimerFD struct {
	fd       int
	name     string
	realtime bool
}

// NewTimerFD creates a non-blocking timerfd. realtime selects CLOCK_REALTIME
// over CLOCK_MONOTONIC; the reactor's deadline manager uses CLOCK_MONOTONIC.
func NewTimerFD(realtime bool) (*TimerFD, error) {
	clockID := unix.CLOCK_MONOTONIC
	if realtime {
		clockID = unix.CLOCK_REALTIME
	}
	fd, err := unix.TimerfdCreate(clockID, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "timerfd_create")
	}
	return &TimerFD{fd: fd, name: "timerfd-" + uuid.NewString(), realtime: realtime}, nil
}

// FD returns the underlying descriptor.
func (t *TimerFD) FD() int { return t.fd }

// Name is the debug identifier assigned at construction.
func (t *TimerFD) Name() string { return t.name }

// Set arms the timer. When absolute is true, initial is interpreted as a
// deadline rather than a duration from now. It returns the timer's previous
// (initial, interval) setting.
func (t *TimerFD) Set(initial, interval time.Duration, absolute bool) (prevInitial, prevInterval time.Duration, err error) {
	var flags int
	if absolute {
		flags = unix.TFD_TIMER_ABSTIME
	}
	newSpec := unix.ItimerSpec{
		Value:    unix.NsecToTimespec(initial.Nanoseconds()),
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
	}
	var oldSpec unix.ItimerSpec
	if err := unix.TimerfdSettime(t.fd, flags, &newSpec, &oldSpec); err != nil {
		return 0, 0, errors.Wrap(err, "timerfd_settime")
	}
	prevInitial = time.Duration(oldSpec.Value.Nano())
	prevInterval = time.Duration(oldSpec.Interval.Nano())
	return prevInitial, prevInterval, nil
}

// Get reads the timer's current (initial, interval) setting without
// modifying it.
func (t *TimerFD) Get() (initial, interval time.Duration, err error) {
	var spec unix.ItimerSpec
	if err := unix.TimerfdGettime(t.fd, &spec); err != nil {
		return 0, 0, errors.Wrap(err, "timerfd_gettime")
	}
	return time.Duration(spec.Value.Nano()), time.Duration(spec.Interval.Nano()), nil
}

// Reset disarms the timer entirely (equivalent to Set(0, 0, false)).
func (t *TimerFD) Reset() error {
	_, _, err := t.Set(0, 0, false)
	return err
}

// Handle reads the expiration counter. On EAGAIN/EWOULDBLOCK (no
// expiration pending) it returns 0, nil — the caller should stay
// registered for readability. Any other read error is fatal.
func (t *TimerFD) Handle() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(t.fd, buf[:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "timerfd read")
	}
	if n != 8 {
		return 0, errors.Errorf("timerfd: short read of %d bytes", n)
	}
	return hostEndianUint64(buf[:]), nil
}

// Close releases the fd.
func (t *TimerFD) Close() error {
	return unix.Close(t.fd)
}
