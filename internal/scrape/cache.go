package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"visibility-backend/internal/shared/metrics"
	"visibility-backend/internal/visibility"
)

// Cached memoizes another Scraper's results for a TTL, keyed by normalized URL.
type Cached struct {
	next Scraper
	c    *ristretto.Cache[string, visibility.CompanyMetadata]
	ttl  time.Duration
}

// NewCached wraps next with an in-process cache holding up to maxEntries results.
func NewCached(next Scraper, maxEntries int64, ttl time.Duration) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, visibility.CompanyMetadata]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// Cost is one per entry, so MaxCost counts entries.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, c: c, ttl: ttl}, nil
}

// Scrape implements Scraper. Failures are not cached.
func (s *Cached) Scrape(ctx context.Context, rawURL string) (visibility.CompanyMetadata, error) {
	key := cacheKey(rawURL)
	if meta, ok := s.c.Get(key); ok {
		metrics.ObserveScrapeCache(true)
		return meta, nil
	}
	metrics.ObserveScrapeCache(false)
	meta, err := s.next.Scrape(ctx, rawURL)
	if err != nil {
		return visibility.CompanyMetadata{}, err
	}
	s.c.SetWithTTL(key, meta, 1, s.ttl)
	s.c.Wait()
	return meta, nil
}

// Close releases the cache.
func (s *Cached) Close() {
	s.c.Close()
}

func cacheKey(rawURL string) string {
	if u, err := NormalizeURL(rawURL); err == nil {
		u.Host = strings.ToLower(u.Host)
		return strings.TrimRight(u.String(), "/")
	}
	return strings.TrimSpace(rawURL)
}

var _ Scraper = (*Cached)(nil)
