package server

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/badu/reactor/fiber"
	"github.com/badu/reactor/reactor"
)

// Listener binds one listening socket and spawns a Conn fiber per
// accepted connection, driven by a fiber.CountingSelectEvent that stays
// registered for the listener's entire lifetime (it is not one-shot,
// unlike the per-connection select events fiber.Reader/Writer use).
type Listener struct {
	fd      int
	disp    *reactor.Dispatcher
	cfg     *Config
	handler Handler
	log     *logrus.Entry

	accepted uint64
}

// Listen creates a non-blocking TCP listener bound to addr (an IPv4
// address and port; no DNS resolution is performed — the reactor core has
// no business doing name lookups) and returns a Listener ready to be
// registered with disp via Start.
func Listen(addr unix.SockaddrInet4, disp *reactor.Dispatcher, cfg *Config, handler Handler, log *logrus.Entry) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "setsockopt reuseaddr")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "setsockopt reuseport")
	}
	if err := unix.Bind(fd, &addr); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "bind")
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "listen")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Listener{fd: fd, disp: disp, cfg: cfg, handler: handler, log: log.WithField("listen_fd", fd)}, nil
}

// FD returns the listening socket descriptor.
func (l *Listener) FD() int { return l.fd }

// Accepted returns the number of connections accepted so far.
func (l *Listener) Accepted() uint64 { return l.accepted }

// Start registers the listener with the reactor; every readiness event
// drains as many pending connections as accept(2) will hand back without
// blocking.
func (l *Listener) Start() error {
	ev := fiber.NewCountingSelectEvent(l.fd, reactor.Readable, l.onReadable)
	_, err := l.disp.Register(ev)
	return err
}

func (l *Listener) onReadable(mask reactor.EventMask) {
	for {
		connFd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			l.log.WithError(err).Warn("accept failed")
			return
		}
		l.accepted++
		l.spawn(connFd)
	}
}

func (l *Listener) spawn(connFd int) {
	conn := NewConn(connFd, l.disp, l.cfg, l.handler, l.log)
	f := fiber.New("conn-" + strconv.Itoa(connFd))
	f.Start(conn.Run)
}

// Close stops accepting and releases the listening socket.
func (l *Listener) Close() error {
	if err := l.disp.Unregister(stubClient{fd: l.fd}); err != nil {
		l.log.WithError(err).Debug("unregister listener")
	}
	return unix.Close(l.fd)
}

// stubClient satisfies reactor.Client's FD() requirement for Unregister,
// which only reads fd off the map key in practice; Close only needs to
// remove the epoll registration, not invoke any other Client method.
type stubClient struct{ fd int }

func (s stubClient) FD() int                               { return s.fd }
func (s stubClient) Events() reactor.EventMask             { return 0 }
func (s stubClient) Handle(reactor.EventMask) (bool, error) { return false, nil }
func (s stubClient) Finalize(reactor.Status)               {}
func (s stubClient) Error(error, reactor.EventMask)         {}
func (s stubClient) DebugName() string                      { return "stub" }
