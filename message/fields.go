// Package message implements the HTTP/1.x message codec: an incremental
// request parser/header container (component F) and a response
// writer (component I). Header storage is intentionally unlike
// net/http's canonical-cased hdr.Header: spec.md requires request header
// names to compare as name == lowercase(trim(name)), so Fields stores and
// looks up everything lowercase instead of canonicalizing on insert.
package message

import "strings"

// Fields is a multi-valued, lowercase-keyed header container used for
// parsed request headers. Response headers use hdr.Header instead, which
// keeps net/http's canonical casing for the bytes actually sent on the
// wire.
type Fields struct {
	m map[string][]string
}

// NewFields creates an empty header container.
func NewFields() *Fields {
	return &Fields{m: make(map[string][]string)}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Add appends value under name, preserving any existing values.
func (f *Fields) Add(name, value string) {
	key := normalize(name)
	f.m[key] = append(f.m[key], value)
}

// Set replaces all values of name with a single value.
func (f *Fields) Set(name, value string) {
	f.m[normalize(name)] = []string{value}
}

// Get returns the first value associated with name, or "" if absent.
func (f *Fields) Get(name string) string {
	vs := f.m[normalize(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns every value associated with name, in insertion order.
func (f *Fields) Values(name string) []string {
	return f.m[normalize(name)]
}

// Has reports whether name has at least one value.
func (f *Fields) Has(name string) bool {
	return len(f.m[normalize(name)]) > 0
}

// Del removes all values of name.
func (f *Fields) Del(name string) {
	delete(f.m, normalize(name))
}

// Len reports the number of distinct header names.
func (f *Fields) Len() int { return len(f.m) }

// Each invokes fn once per (name, value) pair. Iteration order over names
// is unspecified, matching map iteration.
func (f *Fields) Each(fn func(name, value string)) {
	for name, values := range f.m {
		for _, v := range values {
			fn(name, v)
		}
	}
}

// Reset clears all entries so the Fields can be reused for the next
// request on a kept-alive connection.
func (f *Fields) Reset() {
	for k := range f.m {
		delete(f.m, k)
	}
}
