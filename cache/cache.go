// Package cache keeps recently extracted records so a URL appearing twice in
// one run (or across quick successive runs) is served from memory instead of
// hitting darwin.md again.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nasalciuc/darwinscrape/models"
)

type entry struct {
	record    *models.ProductRecord
	createdAt time.Time
}

// RecordCache is a TTL-bounded LRU of successful extractions keyed by URL.
// Safe for concurrent use.
type RecordCache struct {
	store *lru.Cache[string, entry]
	ttl   time.Duration
}

// New creates a RecordCache holding at most maxEntries records, each valid
// for ttl after insertion.
func New(maxEntries int, ttl time.Duration) (*RecordCache, error) {
	store, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &RecordCache{store: store, ttl: ttl}, nil
}

// Get returns the cached record for a URL if it is still fresh. Expired
// entries are evicted on access.
func (c *RecordCache) Get(url string) (*models.ProductRecord, bool) {
	e, ok := c.store.Get(url)
	if !ok {
		return nil, false
	}
	if time.Since(e.createdAt) > c.ttl {
		c.store.Remove(url)
		return nil, false
	}
	return e.record, true
}

// Add stores a record under its URL, refreshing the TTL.
func (c *RecordCache) Add(url string, rec *models.ProductRecord) {
	c.store.Add(url, entry{record: rec, createdAt: time.Now()})
}

// Len returns the number of cached records, expired entries included.
func (c *RecordCache) Len() int {
	return c.store.Len()
}
