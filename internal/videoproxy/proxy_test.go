package videoproxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newUpstream(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestServeForwardsRange(t *testing.T) {
	var gotRange, gotIfRange string
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		gotIfRange = r.Header.Get("If-Range")
		w.Header().Set("Content-Type", "video/webm")
		w.Header().Set("Content-Range", "bytes 0-3/10")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("X-Secret", "do not copy")
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, "abcd")
	})

	p := New(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/video/1", nil)
	req.Header.Set("Range", "bytes=0-3")
	req.Header.Set("If-Range", `"v1"`)
	rec := httptest.NewRecorder()

	if err := p.Serve(rec, req, upstream.URL+"/clip.webm"); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if gotRange != "bytes=0-3" || gotIfRange != `"v1"` {
		t.Errorf("upstream got Range=%q If-Range=%q", gotRange, gotIfRange)
	}
	if rec.Code != http.StatusPartialContent {
		t.Errorf("status = %d, want 206", rec.Code)
	}
	h := rec.Header()
	if h.Get("Content-Type") != "video/webm" || h.Get("Content-Range") != "bytes 0-3/10" || h.Get("ETag") != `"v1"` {
		t.Errorf("headers not copied: %v", h)
	}
	if h.Get("X-Secret") != "" {
		t.Error("unlisted upstream header was copied")
	}
	if h.Get("Cross-Origin-Resource-Policy") != "cross-origin" {
		t.Error("missing Cross-Origin-Resource-Policy")
	}
	if rec.Body.String() != "abcd" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServeDefaultContentType(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := New(nil).Serve(rec, req, upstream.URL); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != DefaultContentType {
		t.Errorf("Content-Type = %q, want %q", got, DefaultContentType)
	}
}

func TestServePassesUpstreamStatus(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	if err := New(nil).Serve(rec, httptest.NewRequest(http.MethodGet, "/", nil), upstream.URL); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServeUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	rec := httptest.NewRecorder()
	err := New(nil).Serve(rec, httptest.NewRequest(http.MethodGet, "/", nil), url)
	if err == nil {
		t.Fatal("expected an error for an unreachable upstream")
	}
	if rec.Body.Len() != 0 {
		t.Error("nothing should be written when returning an error")
	}
}

func TestServeYouTubeUsesResolver(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "video")
	})

	const page = "https://www.youtube.com/watch?v=abc123"
	calls := 0
	resolver := ResolveFunc(func(ctx context.Context, pageURL string) (string, error) {
		calls++
		if pageURL != page {
			t.Errorf("resolver got %q", pageURL)
		}
		return upstream.URL + "/direct.mp4", nil
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := New(nil).Serve(httptest.NewRecorder(), req, page); !errors.Is(err, ErrNoResolver) {
		t.Errorf("expected ErrNoResolver without a resolver, got %v", err)
	}

	p := New(nil, WithResolver(NewCachingResolver(resolver, time.Minute)))
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		if err := p.Serve(rec, req, page); err != nil {
			t.Fatalf("Serve: %v", err)
		}
		if rec.Body.String() != "video" {
			t.Errorf("body = %q", rec.Body.String())
		}
	}
	if calls != 1 {
		t.Errorf("resolver called %d times, want 1 (cached)", calls)
	}
}

func TestCachingResolverExpires(t *testing.T) {
	calls := 0
	next := ResolveFunc(func(ctx context.Context, pageURL string) (string, error) {
		calls++
		return "https://media.example.com/" + strings.Repeat("x", calls), nil
	})

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCachingResolver(next, time.Minute)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	a, _ := c.Resolve(ctx, "p")
	b, _ := c.Resolve(ctx, "p")
	if a != b || calls != 1 {
		t.Fatalf("expected a cache hit, got %q %q after %d calls", a, b, calls)
	}

	now = now.Add(2 * time.Minute)
	if got, _ := c.Resolve(ctx, "p"); got == a || calls != 2 {
		t.Errorf("expected a fresh resolve after expiry, got %q after %d calls", got, calls)
	}

	c.Forget("p")
	c.Resolve(ctx, "p")
	if calls != 3 {
		t.Errorf("Forget did not drop the entry: %d calls", calls)
	}
}

func TestFirstLine(t *testing.T) {
	if got, err := firstLine("\n  https://a.example.com/v.mp4 \nhttps://b\n"); err != nil || got != "https://a.example.com/v.mp4" {
		t.Errorf("firstLine = %q, %v", got, err)
	}
	if _, err := firstLine("  \n"); err == nil {
		t.Error("expected an error for empty output")
	}
}
