package videoproxy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// Resolver turns a page URL into a directly fetchable media URL.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}

// ResolveFunc adapts a function to Resolver.
type ResolveFunc func(ctx context.Context, pageURL string) (string, error)

func (f ResolveFunc) Resolve(ctx context.Context, pageURL string) (string, error) {
	return f(ctx, pageURL)
}

// YtDLPFormat prefers a single progressive mp4 the browser can seek in.
const YtDLPFormat = "best[ext=mp4]/best"

// YtDLP resolves YouTube links with the yt-dlp binary.
func YtDLP() Resolver {
	return ResolveFunc(func(ctx context.Context, pageURL string) (string, error) {
		res, err := ytdlp.New().
			Format(YtDLPFormat).
			NoPlaylist().
			GetURL().
			Run(ctx, pageURL)
		if err != nil {
			return "", fmt.Errorf("yt-dlp failed for %s: %w", pageURL, err)
		}
		return firstLine(res.Stdout)
	})
}

func firstLine(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", errors.New("yt-dlp printed no URL")
}

type cacheEntry struct {
	url     string
	expires time.Time
}

// CachingResolver memoizes another Resolver. Signed stream URLs expire, so
// entries only live for ttl.
type CachingResolver struct {
	next Resolver
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCachingResolver(next Resolver, ttl time.Duration) *CachingResolver {
	return &CachingResolver{next: next, ttl: ttl, now: time.Now, entries: map[string]cacheEntry{}}
}

func (c *CachingResolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[pageURL]
	c.mu.Unlock()
	if ok && c.now().Before(e.expires) {
		return e.url, nil
	}

	u, err := c.next.Resolve(ctx, pageURL)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.entries[pageURL] = cacheEntry{url: u, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return u, nil
}

// Forget drops a cached entry, e.g. after the upstream rejected it.
func (c *CachingResolver) Forget(pageURL string) {
	c.mu.Lock()
	delete(c.entries, pageURL)
	c.mu.Unlock()
}
