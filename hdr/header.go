// Package hdr is a response-header codec scoped to what message.Response
// needs to put on the wire: a small ordered set of canonically-cased
// header names (Content-Type, Connection, Content-Length, Date,
// Set-Cookie), set/get/accumulate, and a deterministic sorted write so two
// responses with the same header set always serialize to the same bytes.
// It is not a general MIME-header library — there is no request-header
// parsing here, since server/conn.go reads incoming headers into
// message.Fields instead.
package hdr

import (
	"io"
	"sort"
	"sync"
)

// Header holds a response's outgoing header fields, keyed by canonical
// form (CanonicalHeaderKey), each with one or more values in insertion
// order. A Header made with make(Header) is ready for use; Set and Add on
// a nil Header panic.
type Header map[string][]string

// Add appends value to key's existing values, canonicalizing key first.
// Used for Set-Cookie, the one header message.Response emits more than
// once per response.
func (h Header) Add(key, value string) {
	key = CanonicalHeaderKey(key)
	h[key] = append(h[key], value)
}

// Set replaces key's values with the single value given.
func (h Header) Set(key, value string) {
	h[CanonicalHeaderKey(key)] = []string{value}
}

// Get returns the first value associated with key, or "" if absent. key
// need not already be canonical.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	v := h[CanonicalHeaderKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Write serializes h in wire format (sorted by key, CRLF-terminated
// lines) to w. message/response.go calls this via a bufferWriter so the
// bytes land directly in its scratch response buffer.
func (h Header) Write(w io.Writer) error {
	ws, ok := w.(writeStringer)
	if !ok {
		ws = stringWriter{w}
	}
	kvs, sorter := h.sortedKeyValues()
	defer headerSorterPool.Put(sorter)
	for _, kv := range kvs {
		for _, v := range kv.values {
			v = newlineToSpace.Replace(v)
			v = TrimString(v)
			for _, s := range [...]string{kv.key, ": ", v, "\r\n"} {
				if _, err := ws.WriteString(s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// keyValues is one header name and its accumulated values, the unit
// headerSorter orders by key.
type keyValues struct {
	key    string
	values []string
}

// headerSorter sorts a []keyValues by key. Pooled since Write runs once
// per response and allocating a fresh sorter per call would show up
// under load.
type headerSorter struct {
	kvs []keyValues
}

func (s *headerSorter) Len() int           { return len(s.kvs) }
func (s *headerSorter) Swap(i, j int)      { s.kvs[i], s.kvs[j] = s.kvs[j], s.kvs[i] }
func (s *headerSorter) Less(i, j int) bool { return s.kvs[i].key < s.kvs[j].key }

var headerSorterPool = sync.Pool{
	New: func() any { return new(headerSorter) },
}

// sortedKeyValues returns h's entries sorted by key, plus the pooled
// sorter that holds the backing slice (return it to headerSorterPool once
// done with kvs).
func (h Header) sortedKeyValues() (kvs []keyValues, hs *headerSorter) {
	hs = headerSorterPool.Get().(*headerSorter)
	if cap(hs.kvs) < len(h) {
		hs.kvs = make([]keyValues, 0, len(h))
	}
	kvs = hs.kvs[:0]
	for k, vv := range h {
		kvs = append(kvs, keyValues{k, vv})
	}
	hs.kvs = kvs
	sort.Sort(hs)
	return kvs, hs
}

// writeStringer is satisfied by io.Writer implementations that already
// expose an efficient WriteString (bufio.Writer, strings.Builder, and
// message.bufferWriter once it grows one); stringWriter adapts any other
// io.Writer to the same interface.
type writeStringer interface {
	WriteString(string) (int, error)
}

type stringWriter struct{ w io.Writer }

func (w stringWriter) WriteString(s string) (int, error) {
	return w.w.Write([]byte(s))
}
