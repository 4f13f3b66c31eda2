package kqfd

import "testing"

func TestEventFDTriggerAccumulates(t *testing.T) {
	e, err := NewEventFD()
	if err != nil {
		t.Fatalf("NewEventFD: %v", err)
	}
	defer e.Close()

	if err := e.Trigger(); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if err := e.Trigger(); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	n, err := e.Handle()
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if n != 2 {
		t.Fatalf("n = %d; want 2 (two triggers coalesced)", n)
	}
}

func TestEventFDHandleReturnsZeroWhenIdle(t *testing.T) {
	e, err := NewEventFD()
	if err != nil {
		t.Fatalf("NewEventFD: %v", err)
	}
	defer e.Close()

	n, err := e.Handle()
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d; want 0", n)
	}
}

func TestEventFDHandleResetsCounter(t *testing.T) {
	e, err := NewEventFD()
	if err != nil {
		t.Fatalf("NewEventFD: %v", err)
	}
	defer e.Close()

	e.Trigger()
	if n, _ := e.Handle(); n != 1 {
		t.Fatalf("first Handle = %d; want 1", n)
	}
	if n, _ := e.Handle(); n != 0 {
		t.Fatalf("second Handle = %d; want 0 (counter already drained)", n)
	}
}
