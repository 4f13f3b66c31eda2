package hdr

import "strings"

const toLower = 'a' - 'A'

// newlineToSpace neutralizes CR/LF inside a header value before it hits
// the wire, so a value an upstream handler built from untrusted input
// can't smuggle an extra header line (response splitting).
var newlineToSpace = strings.NewReplacer("\n", " ", "\r", " ")

// commonHeader interns the canonical spelling of every header name this
// package knows about, so canonicalMIMEHeaderKey can return the same
// string value every time instead of allocating a new one per call.
var commonHeader = map[string]string{
	ContentType:     ContentType,
	Connection:      Connection,
	ContentLength:   ContentLength,
	Date:            Date,
	SetCookieHeader: SetCookieHeader,
}

// isTokenTable flags the RFC 7230 tchar set a header field name may use:
//
//	token = 1*tchar
//	tchar = "!" / "#" / "$" / "%" / "&" / "'" / "*" / "+" / "-" / "." /
//	        "^" / "_" / "`" / "|" / "~" / DIGIT / ALPHA
var isTokenTable = [127]bool{
	'0': true, '1': true, '2': true, '3': true, '4': true, '5': true, '6': true, '7': true,
	'8': true, '9': true,

	'a': true, 'b': true, 'c': true, 'd': true, 'e': true, 'f': true, 'g': true, 'h': true,
	'i': true, 'j': true, 'k': true, 'l': true, 'm': true, 'n': true, 'o': true, 'p': true,
	'q': true, 'r': true, 's': true, 't': true, 'u': true, 'v': true, 'w': true, 'x': true,
	'y': true, 'z': true,

	'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true, 'G': true, 'H': true,
	'I': true, 'J': true, 'K': true, 'L': true, 'M': true, 'N': true, 'O': true, 'P': true,
	'Q': true, 'R': true, 'S': true, 'T': true, 'U': true, 'V': true, 'W': true, 'X': true,
	'Y': true, 'Z': true,

	'!': true, '#': true, '$': true, '%': true, '&': true, '\'': true, '*': true, '+': true,
	'-': true, '.': true, '^': true, '_': true, '`': true, '|': true, '~': true,
}

func validHeaderFieldByte(b byte) bool {
	return int(b) < len(isTokenTable) && isTokenTable[b]
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// TrimString strips leading and trailing ASCII space from s, used on
// every header value just before it's written so stray whitespace from a
// handler-supplied string doesn't shift where the value starts on the
// wire.
func TrimString(s string) string {
	for len(s) > 0 && isASCIISpace(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 && isASCIISpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

// CanonicalHeaderKey returns s with its first letter and every letter
// following a hyphen upper-cased and the rest lower-cased ("content-type"
// -> "Content-Type"), the casing convention Header.Set/Get/Add use as
// their map key. A key containing a space or a byte outside the RFC 7230
// token set is returned unchanged rather than rejected — message.Response
// only ever calls this with its own fixed constants, so malformed input
// here would mean a bug in this package, not in a caller's data.
func CanonicalHeaderKey(s string) string {
	upper := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !validHeaderFieldByte(c) {
			return s
		}
		if upper && 'a' <= c && c <= 'z' {
			return canonicalMIMEHeaderKey([]byte(s))
		}
		if !upper && 'A' <= c && c <= 'Z' {
			return canonicalMIMEHeaderKey([]byte(s))
		}
		upper = c == '-'
	}
	return s
}

// canonicalMIMEHeaderKey mutates a in place to its canonical casing and
// interns the result via commonHeader when it's one of the five header
// names this package carries a constant for.
func canonicalMIMEHeaderKey(a []byte) string {
	for _, c := range a {
		if !validHeaderFieldByte(c) {
			return string(a)
		}
	}
	upper := true
	for i, c := range a {
		if upper && 'a' <= c && c <= 'z' {
			c -= toLower
		} else if !upper && 'A' <= c && c <= 'Z' {
			c += toLower
		}
		a[i] = c
		upper = c == '-'
	}
	if v := commonHeader[string(a)]; v != "" {
		return v
	}
	return string(a)
}
