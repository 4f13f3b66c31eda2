package server

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/badu/reactor/fiber"
	"github.com/badu/reactor/message"
	"github.com/badu/reactor/reactor"
)

// Conn drives one accepted connection's fiber through the seven-step
// state machine of spec.md §4.J: start, read request, method gate,
// dispatch, compose response, send response, continue-or-close.
// Grounded on badu-http's (*conn).serve (conn.go), re-expressed around
// fiber.Reader/fiber.Writer suspension instead of blocking net.Conn I/O.
type Conn struct {
	fd      int
	disp    *reactor.Dispatcher
	cfg     *Config
	handler Handler
	log     *logrus.Entry

	reader *fiber.Reader
	writer *fiber.Writer
	req    *message.Request
	resp   *message.Response

	requestNumber int
	outBuf        []byte
	lastBody      []byte
}

// NewConn wires a fresh accepted socket fd into a connection handler.
// cfg and handler are shared across every connection on a listener.
func NewConn(fd int, disp *reactor.Dispatcher, cfg *Config, handler Handler, log *logrus.Entry) *Conn {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Conn{
		fd:      fd,
		disp:    disp,
		cfg:     cfg,
		handler: handler,
		log:     log.WithField("fd", fd),
		reader:  fiber.NewReader(fd, disp),
		writer:  fiber.NewWriter(fd, disp),
		req:     message.NewRequest(cfg.SupportedMethods, cfg.HeaderLengthLimit, cfg.BodyLengthLimit),
		resp:    message.NewResponse(cfg.EmitDate),
	}
	if cfg.ConnectionIdleTimeout > 0 {
		c.reader.SetIdleTimeout(cfg.ConnectionIdleTimeout)
	}
	return c
}

// Run executes the connection's fiber body to completion: one or more
// request/response cycles, then socket close. It is meant to be passed
// directly as a fiber.Body.
func (c *Conn) Run(f *fiber.Fiber) {
	defer c.closeQuiet()

	for {
		c.requestNumber++
		c.req.Reset()
		c.resp.Reset()

		status, keepAliveEligible, err := c.readAndDispatch(f)
		if err != nil {
			// Every error readAndDispatch returns directly (as opposed to
			// folding into a status code) is a transport-layer failure:
			// clean close, reset, broken pipe, idle timeout. spec.md §4.J
			// calls for closing the socket silently, logged.
			if isIOTermination(err) {
				c.log.WithError(err).Debug("connection ended during read")
			} else {
				c.log.WithError(err).Warn("i/o error reading request")
			}
			return
		}

		keepAlive := keepAliveEligible &&
			message.KeepAliveDecision(c.req.ProtoMajor, c.req.ProtoMinor, c.req.Header.Get("connection"), c.keepAliveBudgetRemaining())

		connHeader := "close"
		if keepAlive {
			connHeader = "Keep-Alive"
		}
		c.resp.SetHeader("Connection", connHeader)
		c.resp.ProtoMajor, c.resp.ProtoMinor = c.req.ProtoMajor, c.req.ProtoMinor
		if c.resp.ProtoMajor == 0 {
			c.resp.ProtoMajor, c.resp.ProtoMinor = 1, 1
		}

		body := c.lastBody
		reason := message.StatusText(status)
		c.outBuf = c.resp.Send(status, reason, body, c.outBuf[:0])

		if writeErr := c.writer.WriteAll(f, c.outBuf); writeErr != nil {
			c.log.WithError(writeErr).Debug("write failed")
			return
		}

		if !keepAlive {
			return
		}
		if c.cfg.KeepAliveMax > 0 && c.requestNumber >= c.cfg.KeepAliveMax {
			return
		}
	}
}

func (c *Conn) keepAliveBudgetRemaining() bool {
	if c.cfg.KeepAliveMax <= 0 {
		return false
	}
	return c.requestNumber < c.cfg.KeepAliveMax
}

// readAndDispatch performs steps 1-4 of spec.md §4.J, returning the
// status code to respond with, whether keep-alive is still eligible
// (false forces close regardless of headers, e.g. on a protocol error),
// and any I/O-layer error (distinct from an HTTP-level status).
func (c *Conn) readAndDispatch(f *fiber.Fiber) (status int, keepAliveEligible bool, err error) {
	c.reader.Reset()
	scratch := make([]byte, c.cfg.IOBufferSize)

	for !c.req.Done() {
		data := c.reader.Bytes()
		if len(data) > 0 {
			n, feedErr := c.req.Feed(data)
			c.reader.Discard(n)
			if feedErr != nil {
				c.lastBody = []byte(feedErr.Error())
				code := message.StatusCodeOf(feedErr, c.cfg.DefaultExceptionStatus)
				// Per spec.md §4.J: close on 413 (oversize body/header may
				// still be arriving on the wire); otherwise the connection
				// may still be reused.
				return code, code != 413, nil
			}
			if n > 0 || c.req.Done() {
				continue
			}
		}
		_, readErr := c.reader.ReadSome(f, scratch)
		if readErr != nil {
			return 0, false, readErr
		}
	}

	// The method gate (step 3) is already enforced by the parser: an
	// unsupported method fails with 501 during Feed and never reaches
	// StateDone, so Done() here implies the method was accepted.
	status, body := c.handler(c.req)
	c.lastBody = body
	return status, true, nil
}

func (c *Conn) closeQuiet() {
	c.reader.Release()
	if err := unix.Close(c.fd); err != nil && !errors.Is(err, unix.EBADF) {
		c.log.WithError(err).Debug("close failed")
	}
}

func isIOTermination(err error) bool {
	return errors.Is(err, fiber.ErrIOEnded)
}
