package server

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/badu/reactor/fiber"
	"github.com/badu/reactor/message"
	"github.com/badu/reactor/reactor"
)

func mustSocketpair(t *testing.T) (serverFd, clientFd int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func runTestDispatcher(t *testing.T) *reactor.Dispatcher {
	t.Helper()
	d, err := reactor.New(nil, nil)
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	// EventLoop returns as soon as no client is registered, and each
	// connection fiber submits its select events only after the loop has
	// started, so keep the read end of an unused pipe registered.
	var idle [2]int
	if err := unix.Pipe2(idle[:], unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() { unix.Close(idle[0]); unix.Close(idle[1]) })
	if _, err := d.Register(fiber.NewCountingSelectEvent(idle[0], reactor.Readable, func(reactor.EventMask) {})); err != nil {
		t.Fatalf("register idle client: %v", err)
	}
	go d.EventLoop()
	t.Cleanup(d.Shutdown)
	return d
}

func writeAndWaitReadable(t *testing.T, fd int, data string) {
	t.Helper()
	if _, err := unix.Write(fd, []byte(data)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readAll(t *testing.T, fd int, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var out []byte
	buf := make([]byte, 4096)
	for time.Now().Before(deadline) {
		n, err := unix.Read(fd, buf)
		if err == nil && n > 0 {
			out = append(out, buf[:n]...)
			// Keep draining briefly in case more arrives.
			continue
		}
		if err != nil && (err == unix.EAGAIN || err == unix.EWOULDBLOCK) {
			if len(out) > 0 {
				return string(out)
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		break
	}
	return string(out)
}

func TestConnRunSingleRequestResponseNoKeepAlive(t *testing.T) {
	disp := runTestDispatcher(t)
	serverFd, clientFd := mustSocketpair(t)

	cfg := New(WithDateHeader(false))
	handler := func(req *message.Request) (int, []byte) {
		return 200, []byte("hello " + req.URL.RawPath())
	}
	conn := NewConn(serverFd, disp, cfg, handler, nil)
	f := fiber.New("test-conn")
	f.Start(conn.Run)

	writeAndWaitReadable(t, clientFd, "GET /world HTTP/1.1\r\nHost: x\r\n\r\n")
	resp := readAll(t, clientFd, 2*time.Second)

	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("response = %q", resp)
	}
	if !strings.Contains(resp, "hello /world") {
		t.Fatalf("response missing body: %q", resp)
	}
	if !strings.Contains(resp, "Connection: close\r\n") {
		t.Fatalf("expected close (keep-alive disabled by default): %q", resp)
	}

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection fiber never terminated")
	}
}

func TestConnRunKeepAliveServesMultipleRequests(t *testing.T) {
	disp := runTestDispatcher(t)
	serverFd, clientFd := mustSocketpair(t)

	cfg := New(WithDateHeader(false), WithKeepAliveMax(5))
	count := 0
	handler := func(req *message.Request) (int, []byte) {
		count++
		return 200, []byte("ok")
	}
	conn := NewConn(serverFd, disp, cfg, handler, nil)
	f := fiber.New("test-conn-ka")
	f.Start(conn.Run)

	writeAndWaitReadable(t, clientFd, "GET /1 HTTP/1.1\r\n\r\n")
	first := readAll(t, clientFd, 2*time.Second)
	if !strings.Contains(first, "Connection: Keep-Alive\r\n") {
		t.Fatalf("expected keep-alive on first response: %q", first)
	}

	writeAndWaitReadable(t, clientFd, "GET /2 HTTP/1.1\r\nConnection: close\r\n\r\n")
	second := readAll(t, clientFd, 2*time.Second)
	if !strings.Contains(second, "Connection: close\r\n") {
		t.Fatalf("expected close after client asked for it: %q", second)
	}

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection fiber never terminated after close")
	}
	if count != 2 {
		t.Fatalf("handler invoked %d times; want 2", count)
	}
}

func TestConnRunOversizeHeaderRespondsWith413(t *testing.T) {
	disp := runTestDispatcher(t)
	serverFd, clientFd := mustSocketpair(t)

	cfg := New(WithDateHeader(false), WithHeaderLimit(32))
	conn := NewConn(serverFd, disp, cfg, func(*message.Request) (int, []byte) { return 200, nil }, nil)
	f := fiber.New("test-conn-413")
	f.Start(conn.Run)

	writeAndWaitReadable(t, clientFd, "GET /"+strings.Repeat("x", 64)+" HTTP/1.1\r\n\r\n")
	resp := readAll(t, clientFd, 2*time.Second)
	if !strings.HasPrefix(resp, "HTTP/1.1 413 ") {
		t.Fatalf("response = %q; want 413 status line", resp)
	}
}

func TestConnRunUnknownMethodRespondsWith501(t *testing.T) {
	disp := runTestDispatcher(t)
	serverFd, clientFd := mustSocketpair(t)

	cfg := New(WithDateHeader(false))
	conn := NewConn(serverFd, disp, cfg, func(*message.Request) (int, []byte) { return 200, nil }, nil)
	f := fiber.New("test-conn-501")
	f.Start(conn.Run)

	writeAndWaitReadable(t, clientFd, "FOO / HTTP/1.1\r\n\r\n")
	resp := readAll(t, clientFd, 2*time.Second)
	if !strings.HasPrefix(resp, "HTTP/1.1 501 ") {
		t.Fatalf("response = %q; want 501 status line", resp)
	}
}

func TestConnRunClosesOnPeerHangup(t *testing.T) {
	disp := runTestDispatcher(t)
	serverFd, clientFd := mustSocketpair(t)

	cfg := New(WithDateHeader(false))
	conn := NewConn(serverFd, disp, cfg, func(*message.Request) (int, []byte) { return 200, nil }, nil)
	f := fiber.New("test-conn-hangup")
	f.Start(conn.Run)

	unix.Close(clientFd)

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection fiber never terminated after peer hangup")
	}
}
