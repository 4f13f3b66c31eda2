// Package deadline implements the timeout manager: an ordered set of
// expiring client registrations plus the "earliest deadline" query the
// reactor uses to bound its epoll wait. Grounded on the min-heap structure
// gaio's watcher uses for its own timeout heap (container/heap over a
// deadline-ordered slice), adapted to stable caller-held handles so a
// client can hold a handle across heap reshuffles (spec.md §9's
// cyclic-ownership note).
package deadline

import "container/heap"

// Client is the opaque identity the manager notifies when a deadline
// elapses. The manager never dereferences it beyond passing it to notify.
type Client interface{}

// Handle identifies one registration. Zero is never issued by Register.
type Handle uint64

type entry struct {
	handle     Handle
	deadlineUs int64
	client     Client
	index      int // position in the heap slice; -1 when popped
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	return h[i].deadlineUs < h[j].deadlineUs
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Manager is the timeout manager. It is not safe for concurrent use; the
// reactor owns it and mutates it only from its own event-loop goroutine.
type Manager struct {
	h        entryHeap
	byHandle map[Handle]*entry
	nextID   Handle
	onRearm  func(nextDeadlineUs int64, armed bool)
}

// New creates an empty manager. onRearm is invoked every time the minimum
// deadline changes (including becoming empty); the reactor uses it to keep
// a timerfd in sync with "armed iff non-empty, expiration == minimum".
func New(onRearm func(nextDeadlineUs int64, armed bool)) *Manager {
	return &Manager{
		byHandle: make(map[Handle]*entry),
		onRearm:  onRearm,
	}
}

// Register inserts (or, for a client already registered, atomically
// replaces) an expiry for client at deadlineUs, returning a handle used to
// unregister it later. Replacing is remove-then-insert so the previous
// registration's slot is released.
func (m *Manager) Register(client Client, deadlineUs int64, previous Handle) Handle {
	if previous != 0 {
		m.unregisterLocked(previous)
	}
	m.nextID++
	e := &entry{handle: m.nextID, deadlineUs: deadlineUs, client: client}
	m.byHandle[e.handle] = e
	wasMin := m.h.Len() == 0
	heap.Push(&m.h, e)
	if wasMin || e.index == 0 {
		m.rearm()
	}
	return e.handle
}

// Unregister removes a registration. It is a no-op if handle is zero or
// already removed.
func (m *Manager) Unregister(handle Handle) {
	m.unregisterLocked(handle)
}

func (m *Manager) unregisterLocked(handle Handle) {
	if handle == 0 {
		return
	}
	e, ok := m.byHandle[handle]
	if !ok {
		return
	}
	delete(m.byHandle, handle)
	wasMin := e.index == 0
	if e.index >= 0 {
		heap.Remove(&m.h, e.index)
	}
	if wasMin {
		m.rearm()
	}
}

func (m *Manager) rearm() {
	if m.onRearm == nil {
		return
	}
	if m.h.Len() == 0 {
		m.onRearm(0, false)
		return
	}
	m.onRearm(m.h[0].deadlineUs, true)
}

// EarliestDeadlineUs reports the minimum deadline in the set and whether
// the set is non-empty.
func (m *Manager) EarliestDeadlineUs() (us int64, ok bool) {
	if m.h.Len() == 0 {
		return 0, false
	}
	return m.h[0].deadlineUs, true
}

// TimeUntilEarliestUs reports how many microseconds remain until the
// earliest deadline, given the current time. Negative means already due.
// ok is false when the set is empty (no bound to apply).
func (m *Manager) TimeUntilEarliestUs(nowUs int64) (us int64, ok bool) {
	deadline, has := m.EarliestDeadlineUs()
	if !has {
		return 0, false
	}
	return deadline - nowUs, true
}

// CheckTimeouts pops every entry whose deadline is <= nowUs and invokes
// notify on each, in deadline order. After it returns, no remaining entry
// satisfies deadline <= nowUs.
func (m *Manager) CheckTimeouts(nowUs int64, notify func(Client)) {
	for m.h.Len() > 0 && m.h[0].deadlineUs <= nowUs {
		e := heap.Pop(&m.h).(*entry)
		delete(m.byHandle, e.handle)
		notify(e.client)
	}
	m.rearm()
}

// Len reports the number of active registrations.
func (m *Manager) Len() int { return m.h.Len() }
