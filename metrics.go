package repoql

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Metrics holds operational counters for a repository. All fields are
// atomic. The Prometheus text format is written by hand.
type Metrics struct {
	QueriesTotal    atomic.Uint64
	SlowQueries     atomic.Uint64
	QueryErrorTotal atomic.Uint64

	// Query duration in microseconds.
	QueryDurationSum atomic.Int64
	QueryDurationMax atomic.Int64

	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64

	NodesCreated atomic.Uint64
	NodesDeleted atomic.Uint64

	// RowsScanned counts candidate rows read from the store; RowsReturned
	// counts rows surviving the constraint.
	RowsScanned  atomic.Uint64
	RowsReturned atomic.Uint64

	repo *Repository
}

func newMetrics(r *Repository) *Metrics {
	return &Metrics{repo: r}
}

// recordQueryDuration records a query's wall-clock duration.
func (m *Metrics) recordQueryDuration(d time.Duration) {
	us := d.Microseconds()
	m.QueryDurationSum.Add(us)
	for {
		cur := m.QueryDurationMax.Load()
		if us <= cur || m.QueryDurationMax.CompareAndSwap(cur, us) {
			break
		}
	}
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() map[string]any {
	snap := map[string]any{
		"queries_total":         m.QueriesTotal.Load(),
		"slow_queries_total":    m.SlowQueries.Load(),
		"query_errors_total":    m.QueryErrorTotal.Load(),
		"query_duration_sum_us": m.QueryDurationSum.Load(),
		"query_duration_max_us": m.QueryDurationMax.Load(),
		"cache_hits_total":      m.CacheHits.Load(),
		"cache_misses_total":    m.CacheMisses.Load(),
		"nodes_created_total":   m.NodesCreated.Load(),
		"nodes_deleted_total":   m.NodesDeleted.Load(),
		"rows_scanned_total":    m.RowsScanned.Load(),
		"rows_returned_total":   m.RowsReturned.Load(),
	}
	if m.repo != nil {
		snap["node_count"] = m.repo.NodeCount()
		cs := m.repo.cache.stats()
		snap["query_cache_entries"] = cs.Entries
		snap["query_cache_capacity"] = cs.Capacity
	}
	return snap
}

// WritePrometheus writes all metrics in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	pCounter(w, "repoql_queries_total", "Total number of query executions", m.QueriesTotal.Load())
	pCounter(w, "repoql_slow_queries_total", "Total number of slow queries", m.SlowQueries.Load())
	pCounter(w, "repoql_query_errors_total", "Total number of query errors", m.QueryErrorTotal.Load())
	pCounter(w, "repoql_query_duration_microseconds_sum", "Cumulative query duration in microseconds", uint64(m.QueryDurationSum.Load()))
	pCounter(w, "repoql_cache_hits_total", "Total query cache hits", m.CacheHits.Load())
	pCounter(w, "repoql_cache_misses_total", "Total query cache misses", m.CacheMisses.Load())
	pCounter(w, "repoql_nodes_created_total", "Total nodes created", m.NodesCreated.Load())
	pCounter(w, "repoql_nodes_deleted_total", "Total nodes deleted", m.NodesDeleted.Load())
	pCounter(w, "repoql_rows_scanned_total", "Candidate rows read by queries", m.RowsScanned.Load())
	pCounter(w, "repoql_rows_returned_total", "Rows returned by queries", m.RowsReturned.Load())

	if m.repo != nil {
		pGauge(w, "repoql_nodes_current", "Current number of nodes", float64(m.repo.NodeCount()))
		cs := m.repo.cache.stats()
		pGauge(w, "repoql_query_cache_entries", "Current query cache entries", float64(cs.Entries))
		pGauge(w, "repoql_query_cache_capacity", "Query cache max capacity", float64(cs.Capacity))
	}
	pGauge(w, "repoql_query_duration_microseconds_max", "Maximum observed query duration in microseconds", float64(m.QueryDurationMax.Load()))
}

func pCounter(w io.Writer, name, help string, val uint64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, val)
}

func pGauge(w io.Writer, name, help string, val float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", name, help, name, name, val)
}
