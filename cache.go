package repoql

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PreparedQuery is a parsed query that can be executed repeatedly with
// different bindings. Immutable once created; safe for concurrent use.
type PreparedQuery struct {
	raw   string // original query text, used as the cache key
	query *Query
}

// String returns the original query text.
func (pq *PreparedQuery) String() string { return pq.raw }

// Query returns the parsed tree.
func (pq *PreparedQuery) Query() *Query { return pq.query }

// Canonical returns the serialized form of the parsed query.
func (pq *PreparedQuery) Canonical() string { return Serialize(pq.query) }

// BindVariables lists the variables that must be bound to execute the
// query.
func (pq *PreparedQuery) BindVariables() []string { return BindVariables(pq.query) }

// CacheStats holds query cache statistics for observability.
type CacheStats struct {
	Entries  int    `json:"entries"`  // current number of cached queries
	Capacity int    `json:"capacity"` // max entries before eviction
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

const defaultQueryCacheCapacity = 10_000

// queryCache is a bounded LRU of parsed queries keyed by query text.
type queryCache struct {
	lru      *lru.Cache[string, *Query]
	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

func newQueryCache(capacity int) *queryCache {
	if capacity <= 0 {
		capacity = defaultQueryCacheCapacity
	}
	// lru.New only fails for a non-positive size.
	c, _ := lru.New[string, *Query](capacity)
	return &queryCache{lru: c, capacity: capacity}
}

// get returns the cached query for the text, or nil.
func (c *queryCache) get(text string) *Query {
	q, ok := c.lru.Get(text)
	if !ok {
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)
	return q
}

func (c *queryCache) put(text string, q *Query) {
	c.lru.Add(text, q)
}

func (c *queryCache) stats() CacheStats {
	return CacheStats{
		Entries:  c.lru.Len(),
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}

// Prepare parses a query, consulting the query cache first.
func (r *Repository) Prepare(query string) (*PreparedQuery, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	if q := r.cache.get(query); q != nil {
		r.metrics.CacheHits.Add(1)
		return &PreparedQuery{raw: query, query: q}, nil
	}
	r.metrics.CacheMisses.Add(1)
	q, err := Parse(query)
	if err != nil {
		return nil, err
	}
	r.cache.put(query, q)
	return &PreparedQuery{raw: query, query: q}, nil
}

// QueryCacheStats returns statistics of the prepared-query cache.
func (r *Repository) QueryCacheStats() CacheStats {
	return r.cache.stats()
}
