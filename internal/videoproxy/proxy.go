// Package videoproxy streams challenge videos to the capture page through
// the server, so the page can seek (Range) and draw the video on a canvas
// without cross-origin trouble.
package videoproxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/GazeCaptcha/pkg/utils"
	"go.uber.org/zap"
)

// DefaultContentType is used when the upstream does not name one.
const DefaultContentType = "video/mp4"

var forwardedRequestHeaders = []string{"Range", "If-Range"}

var copiedResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Accept-Ranges",
	"Content-Range",
	"ETag",
	"Last-Modified",
	"Cache-Control",
}

// ErrNoResolver is returned for YouTube links when no resolver is configured.
var ErrNoResolver = errors.New("youtube links need a resolver")

type Proxy struct {
	client   *http.Client
	resolver Resolver
	log      *zap.Logger
}

type Option func(*Proxy)

func WithClient(c *http.Client) Option {
	return func(p *Proxy) { p.client = c }
}

func WithResolver(r Resolver) Option {
	return func(p *Proxy) { p.resolver = r }
}

func New(log *zap.Logger, opts ...Option) *Proxy {
	p := &Proxy{client: &http.Client{}, log: log}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// NewTimeoutClient is an http.Client that gives up on slow response headers
// but lets the body stream for as long as the player reads it.
func NewTimeoutClient(headerTimeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: tr}
}

// Serve fetches source and streams it to w, passing through the upstream
// status. An error is returned only when nothing has been written yet, so
// the caller can still render its own error response.
func (p *Proxy) Serve(w http.ResponseWriter, r *http.Request, source string) error {
	ctx := r.Context()
	target := source
	if utils.IsYouTubeURL(source) {
		if p.resolver == nil {
			return ErrNoResolver
		}
		resolved, err := p.resolver.Resolve(ctx, source)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", source, err)
		}
		target = resolved
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("building upstream request: %w", err)
	}
	for _, h := range forwardedRequestHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching upstream video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusGone {
		if c, ok := p.resolver.(*CachingResolver); ok && target != source {
			c.Forget(source)
		}
	}

	header := w.Header()
	for _, h := range copiedResponseHeaders {
		if v := resp.Header.Get(h); v != "" {
			header.Set(h, v)
		}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", DefaultContentType)
	}
	header.Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.WriteHeader(resp.StatusCode)

	start := time.Now()
	n, err := io.Copy(w, resp.Body)
	fields := []zap.Field{
		zap.Int("status", resp.StatusCode),
		zap.String("range", r.Header.Get("Range")),
		zap.String("sent", humanize.Bytes(uint64(n))),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil && ctx.Err() == nil {
		p.log.Warn("video stream interrupted", append(fields, zap.Error(err))...)
		return nil
	}
	p.log.Debug("video streamed", fields...)
	return nil
}
