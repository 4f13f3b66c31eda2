// Package cookie implements the RFC 2109 cookie parser and generator
// (spec.md §4.H). Grounded on badu-http/cli's Cookie.String() builder
// pattern, but with RFC 6265's HttpOnly dropped and RFC 2109's Comment
// and Version attributes added — this is a deliberate deviation from the
// teacher's literal field set, kept only as a pattern, not copied
// verbatim.
package cookie

import (
	"strconv"
	"strings"
	"time"
)

// Cookie is one cookie attribute set, covering spec.md's reserved
// attribute names: Comment, Expires, Domain, Path, Max-Age, Secure,
// Version.
type Cookie struct {
	Name    string
	Value   string
	Comment string
	Domain  string
	Path    string
	Expires time.Time
	MaxAge  int // seconds; 0 means unset, negative means "expire now"
	Secure  bool
	Version int
}

// String renders c for a Set-Cookie header. Returns "" if Name is empty.
// String allocates a fresh string on each call, so the retention rule of
// Generator below does not apply to it.
func (c *Cookie) String() string {
	if c == nil || c.Name == "" {
		return ""
	}
	var b strings.Builder
	writeCookie(&b, c)
	return b.String()
}

func writeCookie(b *strings.Builder, c *Cookie) {
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)

	if c.Comment != "" {
		b.WriteString("; Comment=")
		b.WriteString(c.Comment)
	}
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if !c.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(time.RFC1123))
	}
	if c.MaxAge > 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	} else if c.MaxAge < 0 {
		b.WriteString("; Max-Age=0")
	}
	if c.Version > 0 {
		b.WriteString("; Version=")
		b.WriteString(strconv.Itoa(c.Version))
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
}

// Generator renders repeated cookies into a single reused buffer, for the
// response writer's hot path. Callers must not retain the string
// returned by Render across the next Render call, per spec.md §4.H
// ("callers must not retain slices across regenerations").
type Generator struct {
	buf strings.Builder
}

// Render returns the Set-Cookie value for c, backed by the generator's
// internal buffer.
func (g *Generator) Render(c *Cookie) string {
	g.buf.Reset()
	writeCookie(&g.buf, c)
	return g.buf.String()
}

// Attr is one parsed attribute: a name (lowercased) with an optional
// value (absent for valueless flags like Secure).
type Attr struct {
	Name     string
	Value    string
	HasValue bool
}

// Parse decomposes a Cookie request header value into an ordered list of
// attribute name/value pairs, per spec.md §4.H: split on ';', trim, drop
// empties, split each on the first '=', lowercase the key.
func Parse(header string) []Attr {
	var attrs []Attr
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, hasEq := strings.Cut(part, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		attrs = append(attrs, Attr{Name: name, Value: strings.TrimSpace(value), HasValue: hasEq})
	}
	return attrs
}

// Get returns the first attribute matching name (already lowercase), and
// whether it was found.
func Get(attrs []Attr, name string) (Attr, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}
