package reactor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/badu/reactor/deadline"
	"github.com/badu/reactor/kqfd"
)

const maxEvents = 256

// Dispatcher is the select dispatcher (the reactor): one epoll instance,
// one registered-client table, and one deadline.Manager whose earliest
// deadline bounds every epoll wait. Not re-entrant: EventLoop must be run
// from a single goroutine, and clients/timeouts are mutated only by that
// goroutine — per spec.md §5's "single-threaded; all mutations are
// synchronous with the reactor." Register/Unregister/RegisterWithDeadline/
// ChangeClient are therefore only safe to call from setup code before
// EventLoop starts, or from within a client's Handle/Finalize callback
// (i.e. from that same goroutine). Code running on any other goroutine —
// most notably a fiber body suspended inside fiber.Reader/fiber.Writer,
// which resumes on its own goroutine concurrently with EventLoop — must go
// through Submit instead, which queues the call and runs it on the
// dispatcher's own goroutine at the top of the next EventLoop iteration.
//
// Ownership hazard: the epoll registration is keyed by fd and resolved
// back to a Client through an in-process map — it does not hold a kernel-
// level pointer, but the Client value itself must outlive its registration.
// A Client removed from clients while still epoll-registered (by closing
// its fd out from under the dispatcher without calling Unregister) is a
// caller bug; the dispatcher only detects it indirectly via ENOENT.
type Dispatcher struct {
	epfd            int
	clients         map[int]Client
	timeouts        *deadline.Manager
	timerFD         timerArmer
	pendingTimeouts []Client

	wake *kqfd.EventFD

	opMu sync.Mutex
	ops  []dispatcherOp

	shutdown int32

	waitCalls    uint64
	timeoutWakes uint64

	log *logrus.Entry
}

// dispatcherOp is one Register/Unregister/RegisterWithDeadline/ChangeClient
// call submitted via Submit from a goroutine other than the dispatcher's
// own, queued until the next EventLoop iteration drains it.
type dispatcherOp struct {
	fn   func() error
	done chan error
}

type timerArmer interface {
	Set(initial, interval time.Duration, absolute bool) (prev, prevInt time.Duration, err error)
	FD() int
}

// New creates a dispatcher backed by a fresh epoll instance. timerFD, if
// non-nil, is armed/disarmed to track the deadline manager's earliest
// deadline and is registered by the caller as an ordinary timer client
// (reactor.Pool registers its own wakeup-timer client for this) — New
// does not register it.
func New(timerFD timerArmer, log *logrus.Entry) (*Dispatcher, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	wake, err := kqfd.NewEventFD()
	if err != nil {
		_ = unix.Close(epfd)
		return nil, errors.Wrap(err, "new wake eventfd")
	}
	// The wake fd is added straight to the epoll set, bypassing the
	// clients map entirely: it exists only to unblock a pending epoll_wait
	// when Submit queues work from another goroutine, never to carry a
	// dispatchable Client, so it must not count toward NumRegistered or the
	// "client set empty" shutdown check.
	wakeEv := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wake.FD())}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wake.FD(), wakeEv); err != nil {
		_ = wake.Close()
		_ = unix.Close(epfd)
		return nil, errors.Wrap(err, "epoll_ctl add wake event")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	d := &Dispatcher{
		epfd:    epfd,
		clients: make(map[int]Client),
		timerFD: timerFD,
		wake:    wake,
		log:     log,
	}
	d.timeouts = deadline.New(d.rearmTimer)
	return d, nil
}

// Submit runs fn on the dispatcher's own goroutine — at the top of its
// next EventLoop iteration, waking a blocked epoll_wait via the wake
// eventfd if necessary — and blocks the calling goroutine until fn has
// run, returning its result. This is the only way code outside EventLoop's
// own goroutine may reach back into Register/Unregister/
// RegisterWithDeadline/ChangeClient without racing the dispatcher's
// unsynchronized clients map and deadline.Manager.
func (d *Dispatcher) Submit(fn func() error) error {
	op := dispatcherOp{fn: fn, done: make(chan error, 1)}
	d.opMu.Lock()
	d.ops = append(d.ops, op)
	d.opMu.Unlock()
	if err := d.wake.Trigger(); err != nil {
		d.log.WithError(err).Warn("wake eventfd trigger failed")
	}
	return <-op.done
}

func (d *Dispatcher) drainWake() {
	if _, err := d.wake.Handle(); err != nil {
		d.log.WithError(err).Warn("wake eventfd read failed")
	}
}

func (d *Dispatcher) drainOps() {
	d.opMu.Lock()
	ops := d.ops
	d.ops = nil
	d.opMu.Unlock()
	for _, op := range ops {
		op.done <- op.fn()
	}
}

// Timeouts exposes the deadline manager so callers can register/unregister
// per-client expirations.
func (d *Dispatcher) Timeouts() *deadline.Manager { return d.timeouts }

func (d *Dispatcher) rearmTimer(nextDeadlineUs int64, armed bool) {
	if d.timerFD == nil {
		return
	}
	if !armed {
		d.timerFD.Set(0, 0, false)
		return
	}
	nowUs := time.Now().UnixMicro()
	delta := nextDeadlineUs - nowUs
	if delta < 0 {
		delta = 0
	}
	d.timerFD.Set(time.Duration(delta)*time.Microsecond, 0, false)
}

// Register adds client's fd to epoll (or modifies its mask if already
// present, covering the case where a client reappears with different
// interests on the same fd). Returns true on a fresh add.
//
// Must be called from the dispatcher's own goroutine (setup code before
// EventLoop starts, or a client's Handle/Finalize callback); call it via
// Submit from any other goroutine.
func (d *Dispatcher) Register(c Client) (bool, error) {
	ev := &unix.EpollEvent{Events: toEpollBits(c.Events()), Fd: int32(c.FD())}
	if _, exists := d.clients[c.FD()]; exists {
		if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, c.FD(), ev); err != nil {
			if errors.Is(err, unix.ENOENT) {
				// fd was closed under us; the kernel already dropped it.
				// Fall through to a fresh add.
			} else {
				return false, errors.Wrap(err, "epoll_ctl mod")
			}
		} else {
			d.clients[c.FD()] = c
			return false, nil
		}
	}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, c.FD(), ev); err != nil {
		return false, errors.Wrap(err, "epoll_ctl add")
	}
	d.clients[c.FD()] = c
	return true, nil
}

// RegisterWithDeadline registers c with epoll and, if c implements
// ExpiryAware, also registers (or re-registers) its expiry with the
// deadline manager at deadlineUs. Passing deadlineUs <= 0 skips the
// deadline registration, leaving any previous one untouched.
//
// Same goroutine contract as Register: call it via Submit from a fiber's
// register callback rather than directly.
func (d *Dispatcher) RegisterWithDeadline(c Client, deadlineUs int64) error {
	if _, err := d.Register(c); err != nil {
		return err
	}
	ec, ok := c.(ExpiryAware)
	if !ok || deadlineUs <= 0 {
		return nil
	}
	prevRaw, active := ec.ExpiryHandle()
	var prev deadline.Handle
	if active {
		prev = deadline.Handle(prevRaw)
	}
	h := d.timeouts.Register(c, deadlineUs, prev)
	ec.SetExpiryHandle(uint64(h), true)
	return nil
}

// Unregister removes c's fd from epoll. ENOENT/EBADF (fd already gone) are
// tolerated; ENOMEM/EINVAL are fatal and returned. If c implements
// ExpiryAware and has an active deadline registration, it is released too.
//
// Same goroutine contract as Register: call it via Submit from a fiber's
// register callback rather than directly.
func (d *Dispatcher) Unregister(c Client) error {
	if ec, ok := c.(ExpiryAware); ok {
		if h, active := ec.ExpiryHandle(); active {
			d.timeouts.Unregister(deadline.Handle(h))
			ec.SetExpiryHandle(0, false)
		}
	}
	delete(d.clients, c.FD())
	err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, c.FD(), nil)
	if err == nil || errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EBADF) {
		return nil
	}
	if errors.Is(err, unix.ENOMEM) || errors.Is(err, unix.EINVAL) {
		return errors.Wrap(err, "epoll_ctl del: fatal")
	}
	return errors.Wrap(err, "epoll_ctl del")
}

// ChangeClient atomically swaps the client bound to an fd (same fd,
// different identity) without a window where the fd is unwatched.
// Preconditions: current.FD() == next.FD(), current is registered, next is
// not.
//
// Same goroutine contract as Register: call it via Submit from a fiber's
// register callback rather than directly.
func (d *Dispatcher) ChangeClient(current, next Client) error {
	if current.FD() != next.FD() {
		panic("reactor: ChangeClient fd mismatch")
	}
	if _, ok := d.clients[current.FD()]; !ok {
		panic("reactor: ChangeClient: current not registered")
	}
	ev := &unix.EpollEvent{Events: toEpollBits(next.Events()), Fd: int32(next.FD())}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, next.FD(), ev); err != nil {
		return errors.Wrap(err, "epoll_ctl mod (change_client)")
	}
	d.clients[next.FD()] = next
	return nil
}

// Shutdown schedules loop termination before the next wait. If EventLoop is
// currently blocked in epoll_wait with no deadline armed (nothing else due
// to wake it), the flag alone would not be observed until some unrelated fd
// event arrived; triggering the wake eventfd forces a prompt return (the
// timerfd nudge is kept alongside it for shards that also have one armed).
func (d *Dispatcher) Shutdown() {
	atomic.StoreInt32(&d.shutdown, 1)
	if d.timerFD != nil {
		d.timerFD.Set(time.Nanosecond, 0, false)
	}
	_ = d.wake.Trigger()
}

// NumRegistered returns the number of clients currently registered.
func (d *Dispatcher) NumRegistered() int { return len(d.clients) }

// Stats returns the (wait calls, timeout wake-ups) observability counters.
func (d *Dispatcher) Stats() (waitCalls, timeoutWakes uint64) {
	return atomic.LoadUint64(&d.waitCalls), atomic.LoadUint64(&d.timeoutWakes)
}

// EventLoop runs until the registered-client set becomes empty or
// Shutdown was called. Not re-entrant.
func (d *Dispatcher) EventLoop() error {
	events := make([]unix.EpollEvent, maxEvents)
	for {
		d.drainWake()
		d.drainOps()
		if atomic.LoadInt32(&d.shutdown) != 0 {
			return nil
		}
		if len(d.clients) == 0 {
			return nil
		}

		waitMs := d.waitBoundMs()
		atomic.AddUint64(&d.waitCalls, 1)
		n, err := unix.EpollWait(d.epfd, events, waitMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ENOMEM) || errors.Is(err, unix.EINVAL) {
				return errors.Wrap(err, "epoll_wait: fatal")
			}
			return errors.Wrap(err, "epoll_wait")
		}

		nowUs := time.Now().UnixMicro()
		timedOut := d.snapshotTimedOut(nowUs)

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			mask := fromEpollBits(events[i].Events)
			if bsearchTimedOut(timedOut, fd) {
				// Finalized below with the rest of the timed-out set;
				// never handled.
				continue
			}
			d.dispatchOne(fd, mask)
		}

		if len(timedOut) > 0 {
			atomic.AddUint64(&d.timeoutWakes, 1)
			d.finalizeTimedOut(timedOut)
		}
	}
}

func (d *Dispatcher) waitBoundMs() int {
	nowUs := time.Now().UnixMicro()
	untilUs, ok := d.timeouts.TimeUntilEarliestUs(nowUs)
	if !ok {
		return -1
	}
	if untilUs <= 0 {
		return 0
	}
	// Round up so a timed-out client is never missed by a sub-millisecond
	// deficit (spec.md §4.C step 1; boundary case: 999.6us -> 1ms).
	ms := (untilUs + 999) / 1000
	if ms > int64(int(^uint(0)>>1)) {
		ms = int64(int(^uint(0) >> 1))
	}
	return int(ms)
}

// snapshotTimedOut returns the fds of every client whose deadline has
// already passed, sorted for bsearch, WITHOUT removing them from the
// timeout manager (finalizeTimedOut does that after the dispatch pass, per
// spec.md §4.C step 4/6: ready-and-timed-out clients are identified first,
// then finalized after the rest of the pass).
func (d *Dispatcher) snapshotTimedOut(nowUs int64) []int {
	var fds []int
	d.timeouts.CheckTimeouts(nowUs, func(c deadline.Client) {
		if client, ok := c.(Client); ok {
			fds = append(fds, client.FD())
			d.pendingTimeouts = append(d.pendingTimeouts, client)
		}
	})
	sort.Ints(fds)
	return fds
}

func bsearchTimedOut(sorted []int, fd int) bool {
	i := sort.SearchInts(sorted, fd)
	return i < len(sorted) && sorted[i] == fd
}

func (d *Dispatcher) finalizeTimedOut(fds []int) {
	pending := d.pendingTimeouts
	d.pendingTimeouts = nil
	for _, c := range pending {
		if _, ok := d.clients[c.FD()]; ok {
			_ = d.Unregister(c)
		}
		d.safeFinalize(c, StatusTimeout)
	}
}

func (d *Dispatcher) dispatchOne(fd int, mask EventMask) {
	c, ok := d.clients[fd]
	if !ok {
		// A previous handler in this same pass already unregistered it.
		return
	}

	keep, err := d.safeHandle(c, mask)
	if err != nil {
		_ = d.Unregister(c)
		d.safeFinalize(c, StatusError)
		d.safeError(c, err, mask)
		return
	}
	if !keep {
		_ = d.Unregister(c)
		d.safeFinalize(c, StatusSuccess)
		return
	}
}

func (d *Dispatcher) safeHandle(c Client, mask EventMask) (keep bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in client.Handle: %v", r)
		}
	}()
	return c.Handle(mask)
}

func (d *Dispatcher) safeFinalize(c Client, status Status) {
	defer func() {
		if r := recover(); r != nil {
			d.safeError(c, errors.Errorf("panic in client.Finalize: %v", r), 0)
		}
	}()
	c.Finalize(status)
}

func (d *Dispatcher) safeError(c Client, err error, mask EventMask) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("client", c.DebugName()).WithField("panic", r).
				Error("panic inside client.Error; dropping")
		}
	}()
	c.Error(err, mask)
}

func toEpollBits(m EventMask) uint32 {
	var bits uint32
	if m.Has(Readable) {
		bits |= unix.EPOLLIN
	}
	if m.Has(Writable) {
		bits |= unix.EPOLLOUT
	}
	// EPOLLHUP/EPOLLERR are always reported by the kernel regardless of
	// the requested mask; they are folded into fromEpollBits on the way
	// out, not requested here.
	return bits
}

func fromEpollBits(bits uint32) EventMask {
	var m EventMask
	if bits&unix.EPOLLIN != 0 {
		m |= Readable
	}
	if bits&unix.EPOLLOUT != 0 {
		m |= Writable
	}
	if bits&unix.EPOLLHUP != 0 || bits&unix.EPOLLRDHUP != 0 {
		m |= RemoteHangup
	}
	if bits&unix.EPOLLERR != 0 {
		m |= Error
	}
	return m
}
