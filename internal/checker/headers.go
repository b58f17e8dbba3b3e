package checker

import (
	"net/http"
	"sort"
	"strings"
)

// Headers is a case-normalized response header map. Keys are lower-case and
// repeated values are joined with "; ". A Headers value is built once per
// fetch and treated as read-only afterwards.
type Headers map[string]string

// NormalizeHeaders builds Headers from an http.Header.
func NormalizeHeaders(h http.Header) Headers {
	out := make(Headers, len(h))
	for name, values := range h {
		out.merge(name, values...)
	}
	return out
}

// HeadersFromMap builds Headers from a flat map, as reported by the browser
// network domain. Browsers deliver repeated headers newline-separated.
func HeadersFromMap(m map[string]interface{}) Headers {
	out := make(Headers, len(m))
	for name, raw := range m {
		switch v := raw.(type) {
		case string:
			out.merge(name, strings.Split(v, "\n")...)
		case []string:
			out.merge(name, v...)
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out.merge(name, s)
				}
			}
		}
	}
	return out
}

func (h Headers) merge(name string, values ...string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if existing, ok := h[key]; ok && existing != "" {
			h[key] = existing + "; " + v
		} else {
			h[key] = v
		}
	}
	if _, ok := h[key]; !ok {
		h[key] = ""
	}
}

// Get returns the value for name, case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Has reports whether name was present in the response, even with an empty value.
func (h Headers) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}

// Names returns header names in sorted order.
func (h Headers) Names() []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
