package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

type fakeClient struct {
	fd        int
	events    EventMask
	onHandle  func(mask EventMask) (bool, error)
	finalize  Status
	finalized bool
	errSeen   error
}

func (f *fakeClient) FD() int             { return f.fd }
func (f *fakeClient) Events() EventMask   { return f.events }
func (f *fakeClient) DebugName() string   { return "fake" }
func (f *fakeClient) Handle(mask EventMask) (bool, error) {
	if f.onHandle != nil {
		return f.onHandle(mask)
	}
	return true, nil
}
func (f *fakeClient) Finalize(status Status) { f.finalize, f.finalized = status, true }
func (f *fakeClient) Error(err error, mask EventMask) { f.errSeen = err }

func mustPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestRegisterAndDispatchOnReadable(t *testing.T) {
	d, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, w := mustPipe(t)

	fired := make(chan EventMask, 1)
	c := &fakeClient{fd: r, events: Readable, onHandle: func(mask EventMask) (bool, error) {
		fired <- mask
		return false, nil // unregister after first event
	}}
	if _, err := d.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	unix.Write(w, []byte("x"))

	done := make(chan error, 1)
	go func() { done <- d.EventLoop() }()

	select {
	case mask := <-fired:
		if !mask.Has(Readable) {
			t.Fatalf("mask = %v; want Readable set", mask)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EventLoop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("EventLoop did not exit after client set became empty")
	}

	if !c.finalized || c.finalize != StatusSuccess {
		t.Fatalf("finalize = %v, finalized=%v; want StatusSuccess, true", c.finalize, c.finalized)
	}
}

func TestHandlePanicUnregistersAndReportsError(t *testing.T) {
	d, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, w := mustPipe(t)

	c := &fakeClient{fd: r, events: Readable, onHandle: func(mask EventMask) (bool, error) {
		panic("boom")
	}}
	if _, err := d.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	unix.Write(w, []byte("x"))

	done := make(chan error, 1)
	go func() { done <- d.EventLoop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EventLoop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("EventLoop did not exit")
	}

	if !c.finalized || c.finalize != StatusError {
		t.Fatalf("finalize = %v, finalized=%v; want StatusError, true", c.finalize, c.finalized)
	}
	if c.errSeen == nil {
		t.Fatal("expected Error to be reported for a panicking Handle")
	}
}

func TestUnregisterToleratesAlreadyClosedFd(t *testing.T) {
	d, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, _ := mustPipe(t)
	c := &fakeClient{fd: r, events: Readable}
	if _, err := d.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	unix.Close(r)
	if err := d.Unregister(c); err != nil {
		t.Fatalf("Unregister on a closed fd should tolerate ENOENT/EBADF, got: %v", err)
	}
}

func TestSubmitRunsOnEventLoopGoroutineWhileBlocked(t *testing.T) {
	d, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, _ := mustPipe(t)
	// Keep the client set non-empty for the whole test so EventLoop blocks
	// in epoll_wait(-1) (no deadline armed) rather than returning early —
	// exactly the scenario a pending Submit must wake it from.
	anchor := &fakeClient{fd: r, events: Readable}
	if _, err := d.Register(anchor); err != nil {
		t.Fatalf("Register: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.EventLoop() }()
	t.Cleanup(d.Shutdown)

	r2, w2 := mustPipe(t)
	fired := make(chan EventMask, 1)
	c := &fakeClient{fd: r2, events: Readable, onHandle: func(mask EventMask) (bool, error) {
		fired <- mask
		return false, nil
	}}

	// Register from a goroutine other than EventLoop's, exactly as a
	// suspended fiber's register callback does.
	submitErr := make(chan error, 1)
	go func() {
		submitErr <- d.Submit(func() error {
			_, regErr := d.Register(c)
			return regErr
		})
	}()

	select {
	case err := <-submitErr:
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit never completed; EventLoop did not wake to drain it")
	}

	unix.Write(w2, []byte("x"))
	select {
	case mask := <-fired:
		if !mask.Has(Readable) {
			t.Fatalf("mask = %v; want Readable set", mask)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client registered via Submit was never dispatched")
	}
}

func TestNumRegisteredAndShutdownEndsLoopImmediately(t *testing.T) {
	d, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, _ := mustPipe(t)
	c := &fakeClient{fd: r, events: Readable}
	if _, err := d.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if d.NumRegistered() != 1 {
		t.Fatalf("NumRegistered = %d; want 1", d.NumRegistered())
	}

	d.Shutdown()
	done := make(chan error, 1)
	go func() { done <- d.EventLoop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EventLoop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("EventLoop did not honor Shutdown")
	}
}
