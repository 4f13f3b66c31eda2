package kqfd

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// EventFD is a user-signalable counter (eventfd(2)) used for cross-thread
// or cross-loop wakeups of the reactor.
type EventFD struct {
	fd   int
	name string
}

// NewEventFD creates a non-blocking eventfd with an initial count of zero.
func NewEventFD() (*EventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "eventfd")
	}
	return &EventFD{fd: fd, name: "eventfd-" + uuid.NewString()}, nil
}

// FD returns the underlying descriptor.
func (e *EventFD) FD() int { return e.fd }

// Name is the debug identifier assigned at construction.
func (e *EventFD) Name() string { return e.name }

// Trigger writes 1 to the counter, waking anyone blocked on Handle/epoll.
func (e *EventFD) Trigger() error {
	var buf [8]byte
	hostEndianPutUint64(buf[:], 1)
	_, err := unix.Write(e.fd, buf[:])
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return errors.Wrap(err, "eventfd write")
	}
	return nil
}

// Handle reads and returns the accumulated trigger count, resetting it to
// zero. On EAGAIN (no pending triggers) it returns 0, nil.
func (e *EventFD) Handle() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(e.fd, buf[:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "eventfd read")
	}
	if n != 8 {
		return 0, errors.Errorf("eventfd: short read of %d bytes", n)
	}
	return hostEndianUint64(buf[:]), nil
}

// Close releases the fd.
func (e *EventFD) Close() error {
	return unix.Close(e.fd)
}
