package fiber

import (
	"testing"
	"time"

	"github.com/badu/reactor/reactor"
)

func TestSleepResumesAfterDuration(t *testing.T) {
	disp, err := reactor.New(nil, nil)
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	registerIdleClient(t, disp)
	done := make(chan error, 1)
	go func() { done <- disp.EventLoop() }()

	f := New("sleep-test")
	start := time.Now()
	errCh := make(chan error, 1)
	f.Start(func(f *Fiber) {
		errCh <- Sleep(f, disp, 30*time.Millisecond)
	})

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Sleep returned error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
			t.Fatalf("Sleep returned too early after %v", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Sleep never returned")
	}

	disp.Shutdown()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never shut down")
	}
}
