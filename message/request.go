package message

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/badu/reactor/requrl"
)

// ParseState is the request parser's state machine position, per
// spec.md §4.F: Idle -> HeaderAccumulating -> HeaderComplete ->
// (BodyReading | Done) -> Done.
type ParseState int

const (
	StateIdle ParseState = iota
	StateHeaderAccumulating
	StateHeaderComplete
	StateBodyReading
	StateDone
)

// Request is a reusable parsed HTTP request. Reset retains the backing
// arrays of Fields and Body so a kept-alive connection's next request
// reuses the same allocations, per spec.md §4.F's "reset() clears all
// buffers but retains allocated capacity".
type Request struct {
	Method     string
	RawTarget  string
	URL        requrl.URL
	Proto      string
	ProtoMajor int
	ProtoMinor int
	Header     *Fields
	Body       []byte

	ContentLength int64

	state         ParseState
	headerBuf     []byte
	bodyConsumed  int64
	methods       MethodTable
	headerLimit   int
	bodyLimit     int64
}

// NewRequest creates an empty, reusable request parser state.
func NewRequest(methods MethodTable, headerLimit int, bodyLimit int64) *Request {
	if methods == nil {
		methods = DefaultMethods
	}
	return &Request{
		Header:      NewFields(),
		methods:     methods,
		headerLimit: headerLimit,
		bodyLimit:   bodyLimit,
	}
}

// Reset clears the request for reuse, per spec.md §4.F's reuse contract.
func (r *Request) Reset() {
	r.Method = ""
	r.RawTarget = ""
	r.URL = requrl.URL{}
	r.Proto = ""
	r.ProtoMajor, r.ProtoMinor = 0, 0
	r.Header.Reset()
	r.Body = r.Body[:0]
	r.ContentLength = 0
	r.state = StateIdle
	r.headerBuf = r.headerBuf[:0]
	r.bodyConsumed = 0
}

// State reports the parser's current position.
func (r *Request) State() ParseState { return r.state }

// Done reports whether the request has been fully parsed.
func (r *Request) Done() bool { return r.state == StateDone }

// headerTerminator searches buf for "\r\n\r\n" or the tolerant "\n\n",
// returning the offset just past the terminator, or -1 if not found.
func headerTerminator(buf []byte) int {
	crlf := bytes.Index(buf, []byte("\r\n\r\n"))
	lf := bytes.Index(buf, []byte("\n\n"))
	switch {
	case crlf < 0 && lf < 0:
		return -1
	case crlf < 0:
		return lf + 2
	case lf < 0:
		return crlf + 4
	case lf <= crlf:
		return lf + 2
	default:
		return crlf + 4
	}
}

// Feed advances parsing with the next chunk of raw socket bytes,
// returning the number of bytes of chunk consumed by this call. A call
// that succeeds consumes the whole chunk: bytes after a header block that
// announces no body are discarded, and bytes beyond the announced
// Content-Length fail the request with 400. err is a *StatusError
// wrapped with a stack on any protocol violation.
func (r *Request) Feed(chunk []byte) (consumed int, err error) {
	switch r.state {
	case StateIdle:
		r.state = StateHeaderAccumulating
		fallthrough
	case StateHeaderAccumulating:
		return r.feedHeader(chunk)
	case StateHeaderComplete, StateBodyReading:
		return r.feedBody(chunk)
	default:
		return 0, nil
	}
}

func (r *Request) feedHeader(chunk []byte) (int, error) {
	if r.headerLimit > 0 && len(r.headerBuf)+len(chunk) > r.headerLimit {
		return 0, NewStatusError(413, "request header too large")
	}
	r.headerBuf = append(r.headerBuf, chunk...)
	end := headerTerminator(r.headerBuf)
	if end < 0 {
		return len(chunk), nil // whole chunk consumed, still accumulating
	}
	headerBytes := r.headerBuf[:end]
	trailing := r.headerBuf[end:] // bytes belonging to the body, already in headerBuf

	if err := r.parseHeaderBlock(headerBytes); err != nil {
		return len(chunk), err
	}
	r.state = StateHeaderComplete

	if err := r.determineBodyLength(); err != nil {
		return len(chunk), err
	}

	if r.ContentLength == 0 {
		r.state = StateDone
		return len(chunk), nil
	}
	r.state = StateBodyReading
	if len(trailing) > 0 {
		consumedTrailing, bodyErr := r.feedBody(trailing)
		_ = consumedTrailing
		if bodyErr != nil {
			return len(chunk), bodyErr
		}
	}
	return len(chunk), nil
}

func (r *Request) parseHeaderBlock(block []byte) error {
	normalized := strings.ReplaceAll(string(block), "\r\n", "\n")
	normalized = strings.TrimRight(normalized, "\n")
	lines := strings.Split(normalized, "\n")
	if len(lines) == 0 || lines[0] == "" {
		return NewStatusError(400, "empty request line")
	}

	tokens := strings.FieldsFunc(lines[0], func(r rune) bool { return r == ' ' || r == '\t' })
	if len(tokens) != 3 {
		return NewStatusError(400, "malformed request line")
	}
	method, target, proto := tokens[0], tokens[1], tokens[2]

	if _, known := r.methods.AcceptsBody(method); !known {
		return NewStatusError(501, "unsupported method "+method)
	}
	r.Method = method
	r.RawTarget = target

	major, minor, ok := parseProto(proto)
	if !ok {
		return NewStatusError(505, "unsupported HTTP version "+proto)
	}
	r.Proto, r.ProtoMajor, r.ProtoMinor = proto, major, minor

	if target == "" {
		return NewStatusError(400, "invalid request target")
	}
	u, err := requrl.Parse(target)
	if err != nil {
		return NewStatusError(400, "invalid request target")
	}
	r.URL = u

	for _, line := range lines[1:] {
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue // malformed header line: ignored per spec.md §4.F
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		r.Header.Set(name, value) // last write wins
	}
	return nil
}

func parseProto(proto string) (major, minor int, ok bool) {
	switch proto {
	case "HTTP/1.0":
		return 1, 0, true
	case "HTTP/1.1":
		return 1, 1, true
	default:
		return 0, 0, false
	}
}

func (r *Request) determineBodyLength() error {
	if r.Header.Has("transfer-encoding") {
		return NewStatusError(501, "transfer-encoding not supported")
	}
	cl := r.Header.Get("content-length")
	if cl == "" {
		r.ContentLength = 0
		return nil
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return NewStatusError(400, "invalid content-length")
	}
	if n > 0 {
		if accepts, _ := r.methods.AcceptsBody(r.Method); !accepts {
			return NewStatusError(501, "method does not accept a body")
		}
	}
	if r.bodyLimit > 0 && n > r.bodyLimit {
		return NewStatusError(413, "request body too large")
	}
	r.ContentLength = n
	return nil
}

func (r *Request) feedBody(chunk []byte) (int, error) {
	remaining := r.ContentLength - r.bodyConsumed
	if int64(len(chunk)) > remaining {
		return 0, NewStatusError(400, "body exceeds announced content-length")
	}
	r.Body = append(r.Body, chunk...)
	r.bodyConsumed += int64(len(chunk))
	if r.bodyConsumed == r.ContentLength {
		r.state = StateDone
	}
	return len(chunk), nil
}
