package reactor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/badu/reactor/kqfd"
)

// Pool runs N independent Dispatchers, each on its own goroutine, sharing
// a SO_REUSEPORT listening port so the kernel load-balances accepted
// connections across shards without any cross-goroutine synchronization
// on the hot path — each shard's Dispatcher, deadline.Manager and
// fiber set are entirely private to its own goroutine. Shutdown
// coordination is grounded on badu-http's Server.Shutdown polling loop
// (types_server.go), generalized here to an errgroup.Group wait instead
// of a sleep-and-poll loop, since every shard already reports its own
// terminal error through EventLoop's return value.
type Pool struct {
	shards []*Dispatcher
	log    *logrus.Entry
}

// NewPool creates n dispatcher shards, each with its own timerfd wired to
// its own deadline manager.
func NewPool(n int, log *logrus.Entry) (*Pool, error) {
	if n <= 0 {
		return nil, errors.New("reactor: pool size must be positive")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &Pool{log: log}
	for i := 0; i < n; i++ {
		shardLog := log.WithField("shard", i)
		timer, err := kqfd.NewTimerFD(false)
		if err != nil {
			p.closeAll()
			return nil, errors.Wrapf(err, "shard %d: new timerfd", i)
		}
		d, err := New(timer, shardLog)
		if err != nil {
			_ = timer.Close()
			p.closeAll()
			return nil, errors.Wrapf(err, "shard %d: new dispatcher", i)
		}
		timerEv := newDispatcherTimerEvent(timer)
		if _, err := d.Register(timerEv); err != nil {
			p.closeAll()
			return nil, errors.Wrapf(err, "shard %d: register timer", i)
		}
		p.shards = append(p.shards, d)
	}
	return p, nil
}

// Shards exposes each shard's dispatcher so callers can bind a
// server.Listener to every one of them (one SO_REUSEPORT socket per
// shard).
func (p *Pool) Shards() []*Dispatcher { return p.shards }

func (p *Pool) closeAll() {
	for _, d := range p.shards {
		d.Shutdown()
	}
}

// Run starts every shard's EventLoop concurrently and blocks until all
// have returned (normally, via Shutdown) or one fails, in which case the
// others are also asked to shut down and Run returns the first error.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	var loops sync.WaitGroup
	for _, shard := range p.shards {
		shard := shard
		loops.Add(1)
		g.Go(func() error {
			defer loops.Done()
			err := shard.EventLoop()
			if err != nil {
				return errors.Wrap(err, "shard event loop")
			}
			return nil
		})
	}
	allDone := make(chan struct{})
	go func() { loops.Wait(); close(allDone) }()
	g.Go(func() error {
		select {
		case <-gctx.Done():
			p.Shutdown()
		case <-allDone:
		}
		return nil
	})
	return g.Wait()
}

// Shutdown asks every shard to stop at its next wait-loop check.
func (p *Pool) Shutdown() {
	for _, d := range p.shards {
		d.Shutdown()
	}
}

// dispatcherTimerEvent is the reactor's own wakeup-timer client: reading
// it merely drains the kernel counter (the actual timeout work happens in
// EventLoop's own CheckTimeouts call on every wait return, not here) —
// its only job is to make epoll_wait return promptly when the deadline
// manager's earliest deadline elapses while nothing else is ready.
type dispatcherTimerEvent struct {
	timer *kqfd.TimerFD
	name  string
}

func newDispatcherTimerEvent(timer *kqfd.TimerFD) *dispatcherTimerEvent {
	return &dispatcherTimerEvent{timer: timer, name: "reactor-wakeup-" + timer.Name()}
}

func (e *dispatcherTimerEvent) FD() int                  { return e.timer.FD() }
func (e *dispatcherTimerEvent) Events() EventMask        { return Readable }
func (e *dispatcherTimerEvent) DebugName() string        { return e.name }

func (e *dispatcherTimerEvent) Handle(mask EventMask) (bool, error) {
	if _, err := e.timer.Handle(); err != nil {
		return false, errors.Wrap(err, "dispatcher wakeup timer")
	}
	return true, nil
}

func (e *dispatcherTimerEvent) Finalize(Status)       {}
func (e *dispatcherTimerEvent) Error(error, EventMask) {}
