package kqfd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestINotifyDetectsModify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.txt")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	in, err := NewINotify()
	if err != nil {
		t.Fatalf("NewINotify: %v", err)
	}
	defer in.Close()

	wd, err := in.AddWatch(path, unix.IN_MODIFY)
	if err != nil {
		t.Fatalf("AddWatch: %v", err)
	}

	if err := os.WriteFile(path, []byte("ab"), 0o644); err != nil {
		t.Fatalf("WriteFile (modify): %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events, err := in.Handle()
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		for _, ev := range events {
			if ev.WatchDescriptor == wd && ev.Mask&unix.IN_MODIFY != 0 {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("never observed an IN_MODIFY event")
}

func TestINotifyHandleEmptyWhenIdle(t *testing.T) {
	in, err := NewINotify()
	if err != nil {
		t.Fatalf("NewINotify: %v", err)
	}
	defer in.Close()

	events, err := in.Handle()
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %v; want none", events)
	}
}

func TestINotifyRemoveWatch(t *testing.T) {
	dir := t.TempDir()
	in, err := NewINotify()
	if err != nil {
		t.Fatalf("NewINotify: %v", err)
	}
	defer in.Close()

	wd, err := in.AddWatch(dir, unix.IN_MODIFY)
	if err != nil {
		t.Fatalf("AddWatch: %v", err)
	}
	if err := in.RemoveWatch(wd); err != nil {
		t.Fatalf("RemoveWatch: %v", err)
	}
}
