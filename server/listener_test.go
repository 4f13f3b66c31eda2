package server

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/badu/reactor/message"
	"github.com/badu/reactor/reactor"
)

func TestListenerAcceptsAndServesOneRequest(t *testing.T) {
	disp, err := reactor.New(nil, nil)
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}

	cfg := New(WithDateHeader(false))
	handler := func(req *message.Request) (int, []byte) { return 200, []byte("served") }

	addr := unix.SockaddrInet4{Port: 0, Addr: [4]byte{127, 0, 0, 1}}
	l, err := Listen(addr, disp, cfg, handler, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	bound, err := unix.Getsockname(l.FD())
	if err != nil {
		t.Fatalf("getsockname: %v", err)
	}
	boundAddr, ok := bound.(*unix.SockaddrInet4)
	if !ok {
		t.Fatalf("unexpected sockaddr type %T", bound)
	}

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Started only now: EventLoop returns at once while no client is
	// registered, and Start registers the listener directly.
	go disp.EventLoop()
	t.Cleanup(disp.Shutdown)

	clientFd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("client socket: %v", err)
	}
	t.Cleanup(func() { unix.Close(clientFd) })
	err = unix.Connect(clientFd, &unix.SockaddrInet4{Port: boundAddr.Port, Addr: [4]byte{127, 0, 0, 1}})
	if err != nil && err != unix.EINPROGRESS {
		t.Fatalf("connect: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for l.Accepted() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if l.Accepted() == 0 {
		t.Fatal("listener never accepted the connection")
	}

	if _, err := unix.Write(clientFd, []byte("GET / HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	resp := readAll(t, clientFd, 2*time.Second)
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") || !strings.Contains(resp, "served") {
		t.Fatalf("response = %q", resp)
	}
}
