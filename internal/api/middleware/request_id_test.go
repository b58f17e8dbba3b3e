package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func serveWithID(t *testing.T, header string) (ctxID, respID string) {
	t.Helper()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if header != "" {
		req.Header.Set(HeaderRequestID, header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get(HeaderRequestID)
}

func TestRequestID(t *testing.T) {
	t.Run("generates request ID when not provided", func(t *testing.T) {
		ctxID, respID := serveWithID(t, "")
		if _, err := uuid.Parse(ctxID); err != nil {
			t.Errorf("expected a UUID request ID, got %q", ctxID)
		}
		if respID != ctxID {
			t.Errorf("response header %q does not match context %q", respID, ctxID)
		}
	})

	t.Run("uses client-provided request ID", func(t *testing.T) {
		ctxID, respID := serveWithID(t, "client-request-123")
		if ctxID != "client-request-123" || respID != "client-request-123" {
			t.Errorf("expected client ID to be kept, got ctx=%q header=%q", ctxID, respID)
		}
	})

	t.Run("replaces malformed client IDs", func(t *testing.T) {
		for _, bad := range []string{"has space", strings.Repeat("a", 200), "tab\there"} {
			ctxID, _ := serveWithID(t, bad)
			if ctxID == bad {
				t.Errorf("malformed ID %q should be replaced", bad)
			}
			if _, err := uuid.Parse(ctxID); err != nil {
				t.Errorf("replacement for %q is not a UUID: %q", bad, ctxID)
			}
		}
	})

	t.Run("GetRequestID returns empty string when not set", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		if id := GetRequestID(req.Context()); id != "" {
			t.Errorf("expected empty string, got %q", id)
		}
	})

	t.Run("generates unique IDs for different requests", func(t *testing.T) {
		ids := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id, _ := serveWithID(t, "")
			ids[id] = true
		}
		if len(ids) != 100 {
			t.Errorf("expected 100 unique IDs, got %d", len(ids))
		}
	})
}
