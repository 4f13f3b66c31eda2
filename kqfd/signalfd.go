package kqfd

import (
	"unsafe"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var errShortSiginfo = errors.New("signalfd: truncated siginfo record")

// SignalFD delivers a fixed set of signals as readable events, each read
// producing one or more siginfo-equivalent records. It is the only
// process-wide state the reactor core touches: the signals it watches are
// blocked via sigprocmask so they never reach a default handler, and no
// signal.Notify-style handler is installed anywhere else (spec.md §9).
type SignalFD struct {
	fd   int
	name string
	mask unix.Sigset_t
}

// NewSignalFD blocks the given signals for the calling thread and creates a
// signalfd that reports them as readable events instead.
func NewSignalFD(signals ...unix.Signal) (*SignalFD, error) {
	var mask unix.Sigset_t
	for _, sig := range signals {
		addSignal(&mask, sig)
	}
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return nil, errors.Wrap(err, "pthread_sigmask")
	}
	fd, err := unix.Signalfd(-1, &mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "signalfd")
	}
	return &SignalFD{fd: fd, name: "signalfd-" + uuid.NewString(), mask: mask}, nil
}

// FD returns the underlying descriptor.
func (s *SignalFD) FD() int { return s.fd }

// Name is the debug identifier assigned at construction.
func (s *SignalFD) Name() string { return s.name }

// Handle drains every pending siginfo record. On EAGAIN (nothing pending)
// it returns a nil slice and no error.
func (s *SignalFD) Handle() ([]unix.SignalfdSiginfo, error) {
	recSize := int(unsafe.Sizeof(unix.SignalfdSiginfo{}))
	buf := make([]byte, recSize*8)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "signalfd read")
	}
	count := n / recSize
	out := make([]unix.SignalfdSiginfo, 0, count)
	for i := 0; i < count; i++ {
		info, decodeErr := decodeSiginfo(buf[i*recSize : (i+1)*recSize])
		if decodeErr != nil {
			return out, decodeErr
		}
		out = append(out, info)
	}
	return out, nil
}

// Close releases the fd.
func (s *SignalFD) Close() error {
	return unix.Close(s.fd)
}
