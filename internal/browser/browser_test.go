package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameURL(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://example.com/", "https://example.com", true},
		{"https://EXAMPLE.com/login", "https://example.com/login/", true},
		{"https://example.com/?a=1", "https://example.com?a=1", true},
		{"https://example.com/a", "https://example.com/b", false},
		{"http://example.com/", "https://example.com/", false},
		{"https://example.com/?a=1", "https://example.com/?a=2", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sameURL(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestOptionsDefaults(t *testing.T) {
	var o Options
	o.applyDefaults()

	assert.Equal(t, 1280, o.Width)
	assert.Equal(t, 800, o.Height)
	assert.NotEmpty(t, o.UserAgent)
	assert.Equal(t, 5*time.Second, o.ShutdownTimeout)
	assert.NotNil(t, o.Logger)
	assert.NotEmpty(t, o.allocatorOptions())
}

func TestKillProcessTreeNil(t *testing.T) {
	assert.NoError(t, killProcessTree(nil))
}

func TestJSString(t *testing.T) {
	assert.Equal(t, `"input[name*=\"user\"]"`, jsString(`input[name*="user"]`))
}

func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("chrome not installed")
}

func TestSessionRender(t *testing.T) {
	requireChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Frame-Options", "DENY")
		_, _ = w.Write([]byte(`<html><body><p id="x">static</p>
<script>document.getElementById('x').textContent = navigator.webdriver ? 'bot' : 'human';</script>
</body></html>`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s, err := Launch(ctx, Options{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	res, err := s.Render(ctx, srv.URL, 20*time.Second, 200*time.Millisecond)
	require.NoError(t, err)

	assert.Contains(t, res.HTML, "human")
	assert.Equal(t, 200, res.StatusCode)
	require.NotNil(t, res.Headers)
	assert.Equal(t, "DENY", res.Headers["X-Frame-Options"])
}

func TestSessionRenderDoesNotWaitForSubresources(t *testing.T) {
	requireChrome(t)

	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>ready</p><img src="/stalled.png"></body></html>`))
	})
	mux.HandleFunc("/stalled.png", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s, err := Launch(ctx, Options{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	start := time.Now()
	res, err := s.Render(ctx, srv.URL+"/", 5*time.Second, 100*time.Millisecond)
	require.NoError(t, err, "the load event never fires, DOMContentLoaded must be enough")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, res.HTML, "ready")

	require.NoError(t, s.Navigate(ctx, srv.URL+"/", 5*time.Second))
}

func TestSessionFormInteraction(t *testing.T) {
	requireChrome(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			http.Redirect(w, r, "/welcome", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte(`<form method="post" action="/login">
<input name="username"><input type="password" name="password">
<button type="submit">Go</button></form>`))
	})
	mux.HandleFunc("/welcome", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>Welcome back</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s, err := Launch(ctx, Options{})
	require.NoError(t, err)
	defer s.Close()

	loginURL := srv.URL + "/login"
	require.NoError(t, s.Navigate(ctx, loginURL, 20*time.Second))

	ok, err := s.Exists(ctx, `input[type="password"]`)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Type(ctx, `input[name*="user"]`, "eve"))
	require.NoError(t, s.Type(ctx, `input[type="password"]`, "secret"))
	require.NoError(t, s.Click(ctx, `button[type="submit"]`))
	require.NoError(t, s.WaitForNavigation(ctx, loginURL, 5*time.Second))

	loc, err := s.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/welcome", loc)

	text, err := s.Text(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Welcome back")
}
