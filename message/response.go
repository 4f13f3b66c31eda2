package message

import (
	"strconv"
	"strings"

	"github.com/badu/reactor/cookie"
	"github.com/badu/reactor/hdr"
)

// Response is a reusable outgoing HTTP response, assembled per spec.md
// §4.I. Header uses hdr.Header (canonical-cased, teacher's wire codec)
// rather than message.Fields, since these bytes go straight onto the
// socket and net/http-style canonical casing is what a client expects.
type Response struct {
	ProtoMajor int
	ProtoMinor int

	StatusCode   int
	ReasonPhrase string
	ReasonExtra  string

	Header  hdr.Header
	cookies []*cookie.Cookie
	Body    []byte

	defaultsApplied bool
	emitDate        bool

	dateBuf   [len(hdr.TimeFormat)]byte
	clenBuf   [20]byte
	statusBuf [3]byte

	cookieGen cookie.Generator
}

// NewResponse creates a response with an empty header set. emitDate
// controls whether Send stamps a Date header (spec.md §4.I notes this as
// an optional, per-deployment choice; disabling it is useful in tests
// that compare byte-for-byte output).
func NewResponse(emitDate bool) *Response {
	return &Response{Header: make(hdr.Header), emitDate: emitDate}
}

// Reset clears the response for reuse on the next request of a kept-alive
// connection.
func (r *Response) Reset() {
	for k := range r.Header {
		delete(r.Header, k)
	}
	r.cookies = r.cookies[:0]
	r.Body = r.Body[:0]
	r.StatusCode = 0
	r.ReasonPhrase = ""
	r.ReasonExtra = ""
	r.defaultsApplied = false
}

// SetHeader sets name to value, overwriting any existing value.
func (r *Response) SetHeader(name, value string) { r.Header.Set(name, value) }

// SetHeaderInt is SetHeader with an integer value rendered in decimal.
func (r *Response) SetHeaderInt(name string, value int) {
	r.Header.Set(name, strconv.Itoa(value))
}

// SetCookie appends c to the emission list.
func (r *Response) SetCookie(c *cookie.Cookie) {
	r.cookies = append(r.cookies, c)
}

func (r *Response) applyDefaults() {
	if r.defaultsApplied {
		return
	}
	if r.Header.Get(hdr.ContentType) == "" {
		r.Header.Set(hdr.ContentType, "text/html")
	}
	if r.Header.Get(hdr.Connection) == "" {
		r.Header.Set(hdr.Connection, "close")
	}
	r.defaultsApplied = true
}

// Send composes status, headers, cookies and body into buf, per spec.md
// §4.I steps 1-5; appending to buf (grown as needed) rather than
// allocating a fresh buffer each call, matching the teacher's reuse of
// scratch arrays for status/content-length/date formatting.
func (r *Response) Send(status int, reason string, body []byte, buf []byte) []byte {
	r.applyDefaults()
	r.StatusCode = status
	r.ReasonPhrase = reason
	r.Body = body

	r.Header.Set(hdr.ContentLength, string(strconv.AppendInt(r.clenBuf[:0], int64(len(body)), 10)))
	if r.emitDate {
		r.Header.Set(hdr.Date, string(appendTime(r.dateBuf[:0])))
	}
	for _, c := range r.cookies {
		r.Header.Add(hdr.SetCookieHeader, r.cookieGen.Render(c))
	}

	buf = r.writeStatusLine(buf)
	bw := bufferWriter{buf: buf}
	_ = r.Header.Write(&bw) // sorted, newline-sanitized wire format
	buf = bw.buf
	buf = append(buf, '\r', '\n')
	buf = append(buf, body...)
	return buf
}

// bufferWriter adapts a growable []byte into an io.Writer so
// hdr.Header.Write can append directly into the response's scratch
// buffer instead of allocating its own.
type bufferWriter struct{ buf []byte }

func (b *bufferWriter) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (r *Response) writeStatusLine(buf []byte) []byte {
	buf = append(buf, "HTTP/"...)
	buf = strconv.AppendInt(buf, int64(r.ProtoMajor), 10)
	buf = append(buf, '.')
	buf = strconv.AppendInt(buf, int64(r.ProtoMinor), 10)
	buf = append(buf, ' ')
	buf = append(buf, strconv.AppendInt(r.statusBuf[:0], int64(r.StatusCode), 10)...)
	buf = append(buf, ' ')
	reason := r.ReasonPhrase
	if reason == "" {
		reason = StatusText(r.StatusCode)
	}
	buf = append(buf, reason...)
	if r.ReasonExtra != "" {
		buf = append(buf, ':', ' ')
		buf = append(buf, r.ReasonExtra...)
	}
	buf = append(buf, '\r', '\n')
	return buf
}

var statusText = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Request Entity Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	505: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for a known status code, or a
// generic fallback for an unknown one.
func StatusText(code int) string {
	if t, ok := statusText[code]; ok {
		return t
	}
	return "status code " + strconv.Itoa(code)
}

// KeepAliveDecision computes the Connection disposition for step 5 of
// spec.md §4.J: HTTP/1.1 defaults to keep-alive unless the client asked
// for close; HTTP/1.0 defaults to close unless the client asked for
// keep-alive. budgetRemaining must already reflect the handler's
// keep_alive_max policy.
func KeepAliveDecision(protoMajor, protoMinor int, clientConnection string, budgetRemaining bool) bool {
	if !budgetRemaining {
		return false
	}
	wants := strings.ToLower(strings.TrimSpace(clientConnection))
	if protoMajor == 1 && protoMinor == 1 {
		return wants != "close"
	}
	return wants == "keep-alive"
}
