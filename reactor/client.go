// Package reactor implements the epoll-driven select dispatcher: a
// single-threaded event loop that multiplexes file descriptors, enforces
// per-client deadlines via the deadline package, and dispatches readiness
// events to registered clients.
package reactor

// EventMask is a small set of epoll readiness flags.
type EventMask uint32

const (
	Readable EventMask = 1 << iota
	Writable
	RemoteHangup
	Error
	InvalidHandle
)

// Has reports whether m contains any of the bits in flag.
func (m EventMask) Has(flag EventMask) bool { return m&flag != 0 }

// Status is the terminal disposition a client is finalized with.
type Status int

const (
	StatusSuccess Status = iota
	StatusError
	StatusTimeout
	StatusHangup
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusTimeout:
		return "timeout"
	case StatusHangup:
		return "hangup"
	default:
		return "unknown"
	}
}

// Client is the polymorphic leaf the dispatcher registers by fd.
// Implementations must not rely on language-specific vtable identity — the
// dispatcher only ever calls through this interface.
//
// Finalize is called exactly once per registration lifecycle, even when
// Handle panics or returns an error; the dispatcher recovers panics from
// both Handle and Finalize and reports them via Error instead of crashing
// the event loop.
type Client interface {
	// FD returns the descriptor this client is registered under. Stable
	// for the client's lifetime as a registered client.
	FD() int

	// Events declares the interested event mask for this registration
	// epoch. May change across re-register calls.
	Events() EventMask

	// Handle processes a readiness event. Returning false (or panicking,
	// or returning a non-nil error) causes the dispatcher to unregister
	// and finalize the client.
	Handle(mask EventMask) (keepRegistered bool, err error)

	// Finalize releases resources. Called exactly once.
	Finalize(status Status)

	// Error reports an exception raised by Handle or Finalize. Never
	// called more than the number of times Handle/Finalize were invoked.
	Error(err error, mask EventMask)

	// DebugName is a stable identifier used only for logging.
	DebugName() string
}

// ExpiryAware is implemented by clients that want to be wired into a
// deadline.Manager. The dispatcher does not require this interface; it is
// consulted by Dispatcher.RegisterWithDeadline, which registers a client's
// expiry alongside its fd, and by Dispatcher.Unregister, which releases it.
type ExpiryAware interface {
	// ExpiryHandle returns the client's current deadline registration
	// handle, or the zero value if none is active.
	ExpiryHandle() (handle uint64, active bool)

	// SetExpiryHandle stores the handle returned by the deadline
	// manager (or clears it when active is false).
	SetExpiryHandle(handle uint64, active bool)
}
