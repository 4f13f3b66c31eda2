// Package supervise wires the two kqfd leaves that have no home in the
// HTTP request path itself: SignalFD (reaping child processes so a
// forked worker model never accumulates zombies) and INotify (watching a
// config file for edits and invoking a reload callback). Both are
// optional, process-wide collaborators registered against one of the
// reactor.Pool's shards rather than core to any single connection.
package supervise

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/badu/reactor/kqfd"
	"github.com/badu/reactor/reactor"
)

// ChildReaper drains SIGCHLD notifications and calls onExit for each
// reported child, reaping it with wait4 so it never becomes a zombie.
type ChildReaper struct {
	sig    *kqfd.SignalFD
	log    *logrus.Entry
	onExit func(pid int, status unix.WaitStatus)
}

// NewChildReaper creates and registers (with disp) a SIGCHLD collaborator.
func NewChildReaper(disp *reactor.Dispatcher, log *logrus.Entry, onExit func(pid int, status unix.WaitStatus)) (*ChildReaper, error) {
	sig, err := kqfd.NewSignalFD(unix.SIGCHLD)
	if err != nil {
		return nil, errors.Wrap(err, "supervise: new signalfd")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &ChildReaper{sig: sig, log: log, onExit: onExit}
	if _, err := disp.Register(r); err != nil {
		_ = sig.Close()
		return nil, errors.Wrap(err, "supervise: register signalfd")
	}
	return r, nil
}

func (r *ChildReaper) FD() int                  { return r.sig.FD() }
func (r *ChildReaper) Events() reactor.EventMask { return reactor.Readable }
func (r *ChildReaper) DebugName() string        { return r.sig.Name() }

func (r *ChildReaper) Handle(mask reactor.EventMask) (bool, error) {
	infos, err := r.sig.Handle()
	if err != nil {
		return false, errors.Wrap(err, "supervise: read signalfd")
	}
	for range infos {
		r.reapAll()
	}
	return true, nil
}

func (r *ChildReaper) reapAll() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		if r.onExit != nil {
			r.onExit(pid, status)
		}
	}
}

func (r *ChildReaper) Finalize(reactor.Status) {}
func (r *ChildReaper) Error(err error, mask reactor.EventMask) {
	r.log.WithError(err).Warn("signalfd error")
}

// Close releases the signalfd.
func (r *ChildReaper) Close() error { return r.sig.Close() }
