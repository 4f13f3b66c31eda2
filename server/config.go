// Package server implements the HTTP connection handler (spec.md §4.J): a
// fiber-driven per-connection state machine built on the reactor, fiber,
// message, requrl and cookie packages. Grounded on badu-http's
// (*conn).serve loop (conn.go) and its Server configuration surface
// (types_server.go), re-driven by a fiber suspend/resume cycle instead of
// a goroutine blocked directly on net.Conn.Read.
package server

import (
	"time"

	"github.com/badu/reactor/message"
)

// Handler answers a parsed request with a status code and body. Errors
// are reported out-of-band by returning a non-2xx/4xx/5xx status the
// caller chooses; StatusError propagation is the connection handler's own
// concern (parse/protocol errors), not the handler's.
type Handler func(req *message.Request) (status int, body []byte)

// Config holds per-listener tunables, set via functional options
// (WithHeaderLimit, WithBodyLimit, ...), grounded on the small-option-
// constructor idiom used across the example pack's internal config types
// rather than a bare exported struct literal.
type Config struct {
	SupportedMethods       message.MethodTable
	HeaderLengthLimit      int
	BodyLengthLimit        int64
	IOBufferSize           int
	KeepAliveMax           int
	ConnectionIdleTimeout  time.Duration
	DefaultExceptionStatus int
	EmitDate               bool
}

// Option configures a Config.
type Option func(*Config)

// DefaultConfig returns the spec's documented defaults: 16 KiB header
// limit, 2 MiB body limit, 512 B read buffer, keep-alive disabled
// (KeepAliveMax == 0), no idle timeout, and 500 as the default exception
// status.
func DefaultConfig() *Config {
	c := &Config{
		SupportedMethods:       message.DefaultMethods,
		HeaderLengthLimit:      16 * 1024,
		BodyLengthLimit:        2 * 1024 * 1024,
		IOBufferSize:           512,
		KeepAliveMax:           0,
		ConnectionIdleTimeout:  0,
		DefaultExceptionStatus: 500,
		EmitDate:               true,
	}
	return c
}

// New builds a Config starting from DefaultConfig and applying opts in
// order.
func New(opts ...Option) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSupportedMethods overrides the method -> accepts-body table.
func WithSupportedMethods(methods message.MethodTable) Option {
	return func(c *Config) { c.SupportedMethods = methods }
}

// WithHeaderLimit sets the maximum header-block size in bytes.
func WithHeaderLimit(n int) Option {
	return func(c *Config) { c.HeaderLengthLimit = n }
}

// WithBodyLimit sets the maximum request-body size in bytes.
func WithBodyLimit(n int64) Option {
	return func(c *Config) { c.BodyLengthLimit = n }
}

// WithIOBufferSize sets the initial (not maximum — the reader grows as
// needed) read buffer size.
func WithIOBufferSize(n int) Option {
	return func(c *Config) { c.IOBufferSize = n }
}

// WithKeepAliveMax sets the maximum number of requests served per
// connection before it is forcibly closed; 0 disables keep-alive
// entirely (every response carries Connection: close).
func WithKeepAliveMax(n int) Option {
	return func(c *Config) { c.KeepAliveMax = n }
}

// WithIdleTimeout sets the per-read idle deadline; 0 disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectionIdleTimeout = d }
}

// WithDefaultExceptionStatus sets the status used for a request-parse
// error that carries no status code of its own.
func WithDefaultExceptionStatus(code int) Option {
	return func(c *Config) { c.DefaultExceptionStatus = code }
}

// WithDateHeader toggles Date-header emission (default on); tests that
// compare byte-for-byte output typically disable it.
func WithDateHeader(emit bool) Option {
	return func(c *Config) { c.EmitDate = emit }
}
