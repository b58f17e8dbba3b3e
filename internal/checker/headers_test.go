package checker

import (
	"net/http"
	"testing"
)

func TestNormalizeHeaders(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	h.Set("Content-Security-Policy", "default-src 'self'")

	got := NormalizeHeaders(h)

	if got["set-cookie"] != "a=1; b=2" {
		t.Errorf("expected joined cookies, got %q", got["set-cookie"])
	}
	if got.Get("CONTENT-SECURITY-POLICY") != "default-src 'self'" {
		t.Errorf("case-insensitive Get failed: %q", got.Get("CONTENT-SECURITY-POLICY"))
	}
	if _, ok := got["Content-Security-Policy"]; ok {
		t.Error("keys should be lower-case")
	}
}

func TestHeadersFromMap(t *testing.T) {
	got := HeadersFromMap(map[string]interface{}{
		"Server":     "nginx",
		"Set-Cookie": "a=1\nb=2",
		"X-List":     []interface{}{"x", "y"},
		"X-Number":   42,
	})

	if got.Get("server") != "nginx" {
		t.Errorf("server = %q", got.Get("server"))
	}
	if got.Get("set-cookie") != "a=1; b=2" {
		t.Errorf("set-cookie = %q", got.Get("set-cookie"))
	}
	if got.Get("x-list") != "x; y" {
		t.Errorf("x-list = %q", got.Get("x-list"))
	}
	if got.Has("x-number") {
		t.Error("non-string values should be dropped")
	}
}

func TestHeadersNamesSorted(t *testing.T) {
	h := Headers{"b": "1", "a": "2", "c": "3"}
	names := h.Names()
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Errorf("unexpected order: %v", names)
	}
}
