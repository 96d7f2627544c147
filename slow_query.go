package repoql

import (
	"sync"
	"time"
)

// SlowQueryEntry is a query that ran for at least Options.SlowQueryThreshold.
type SlowQueryEntry struct {
	// Query is the query text as submitted, or the canonical form for
	// trees run through ExecuteQuery.
	Query      string        `json:"query"`
	Bindings   []string      `json:"bindings,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
	Rows       int           `json:"rows"`
	At         time.Time     `json:"at"`
}

// slowQueryLog keeps the last len(buf) slow queries.
type slowQueryLog struct {
	mu   sync.Mutex
	buf  []SlowQueryEntry
	next int
	full bool
}

func newSlowQueryLog(capacity int) *slowQueryLog {
	return &slowQueryLog{buf: make([]SlowQueryEntry, max(capacity, 1))}
}

func (l *slowQueryLog) add(e SlowQueryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = e
	l.next++
	if l.next == len(l.buf) {
		l.next, l.full = 0, true
	}
}

// recent returns up to n entries, newest first. n <= 0 returns all.
func (l *slowQueryLog) recent(n int) []SlowQueryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := l.next
	if l.full {
		count = len(l.buf)
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]SlowQueryEntry, 0, n)
	for i := l.next - 1; len(out) < n; i-- {
		if i < 0 {
			i = len(l.buf) - 1
		}
		out = append(out, l.buf[i])
	}
	return out
}

// recordSlowQuery logs and keeps q when it ran past the threshold.
func (r *Repository) recordSlowQuery(q *Query, text string, elapsed time.Duration, rows int) {
	threshold := r.opts.SlowQueryThreshold
	if threshold <= 0 || elapsed < threshold {
		return
	}
	r.metrics.SlowQueries.Add(1)
	e := SlowQueryEntry{
		Query:      clip(text, 500),
		Bindings:   BindVariables(q),
		Duration:   elapsed,
		DurationMs: float64(elapsed.Microseconds()) / 1000,
		Rows:       rows,
		At:         time.Now(),
	}
	r.slowLog.add(e)
	r.log.Warn("slow query",
		"query", clip(text, 200),
		"duration_ms", e.DurationMs,
		"rows", rows,
		"threshold", threshold,
	)
}

// SlowQueries returns up to n recent slow queries, newest first.
func (r *Repository) SlowQueries(n int) []SlowQueryEntry {
	return r.slowLog.recent(n)
}

// clip shortens s to at most n bytes for logs.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
