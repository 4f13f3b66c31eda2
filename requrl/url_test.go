package requrl

import "testing"

func TestParseSimplePath(t *testing.T) {
	u, err := Parse("/a/b/c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.RawPath() != "/a/b/c" {
		t.Fatalf("RawPath = %q; want /a/b/c", u.RawPath())
	}
}

func TestParseRootPath(t *testing.T) {
	u, err := Parse("/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(u.Path) != 0 {
		t.Fatalf("Path = %v; want empty", u.Path)
	}
	if u.RawPath() != "/" {
		t.Fatalf("RawPath = %q; want /", u.RawPath())
	}
}

func TestParseDiscardsEmptySegments(t *testing.T) {
	u, err := Parse("/a//b///c/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.RawPath() != "/a/b/c" {
		t.Fatalf("RawPath = %q; want /a/b/c", u.RawPath())
	}
}

func TestParsePercentDecodesSegments(t *testing.T) {
	u, err := Parse("/hello%20world/%2Fslash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Path[0] != "hello world" {
		t.Fatalf("segment 0 = %q; want 'hello world'", u.Path[0])
	}
	if u.Path[1] != "/slash" {
		t.Fatalf("segment 1 = %q; want '/slash'", u.Path[1])
	}
}

func TestParseQueryOrderedAndDuplicateKeys(t *testing.T) {
	u, err := Parse("/x?a=1&b=2&a=3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(u.Query) != 3 {
		t.Fatalf("len(Query) = %d; want 3", len(u.Query))
	}
	if v, ok := u.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v; want 1, true (first match)", v, ok)
	}
	if u.Query[2].Key != "a" || u.Query[2].Value != "3" {
		t.Fatalf("third pair = %+v; want {a 3}", u.Query[2])
	}
}

func TestParseQueryMissingValue(t *testing.T) {
	u, err := Parse("/x?flag")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := u.Get("flag")
	if !ok || v != "" {
		t.Fatalf("Get(flag) = %q, %v; want empty string, true", v, ok)
	}
}

func TestParseAuthorityForm(t *testing.T) {
	u, err := Parse("//Example.COM/a/b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Host != "example.com" {
		t.Fatalf("Host = %q; want example.com (lowercased)", u.Host)
	}
	if u.RawPath() != "/a/b" {
		t.Fatalf("RawPath = %q; want /a/b", u.RawPath())
	}
}

func TestParseAuthorityFormNoPath(t *testing.T) {
	u, err := Parse("//host.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Host != "host.example" {
		t.Fatalf("Host = %q", u.Host)
	}
	if u.RawPath() != "/" {
		t.Fatalf("RawPath = %q; want /", u.RawPath())
	}
}

func TestUnescapeInvalidEscapeLeftIntact(t *testing.T) {
	got, err := Unescape("100%", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "100%" {
		t.Fatalf("got %q; want literal percent left intact", got)
	}
}

func TestUnescapePlusBecomesSpace(t *testing.T) {
	got, err := Unescape("a+b", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a b" {
		t.Fatalf("got %q; want 'a b'", got)
	}
}

func TestUnescapeIgnoreSetPreservesEncodedByte(t *testing.T) {
	got, err := Unescape("a%26b", map[byte]bool{'&': true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a%26b" {
		t.Fatalf("got %q; want '%%26' left encoded", got)
	}
}
