package repoql

import (
	"log/slog"
	"time"
)

// Options configures a Repository.
type Options struct {
	// WorkerPoolSize is the number of goroutines that evaluate constraints
	// in parallel. Default: 8.
	WorkerPoolSize int
	// NoSync disables fsync after each commit for faster writes (risk of
	// losing the last writes on a crash). A background goroutine syncs
	// periodically instead.
	NoSync bool
	// ReadOnly opens the repository in read-only mode.
	ReadOnly bool
	// MmapSize is the initial mmap size for the database file in bytes.
	MmapSize int

	// WriteQueueSize bounds the number of writers waiting for the bbolt
	// write lock. Default: 64.
	WriteQueueSize int
	// WriteTimeout is the longest a writer waits for a queue slot when its
	// context has no deadline. 0 waits forever.
	WriteTimeout time.Duration

	// QueryCacheSize is the capacity of the prepared-query cache.
	// Default: 10,000.
	QueryCacheSize int
	// MaxResultRows caps the rows a single query may return; larger
	// results fail with ErrResultTooLarge. 0 means unlimited.
	MaxResultRows int
	// DefaultQueryTimeout applies to queries whose context has no
	// deadline. 0 means no timeout.
	DefaultQueryTimeout time.Duration
	// SlowQueryThreshold logs queries that take at least this long.
	// 0 disables slow-query logging.
	SlowQueryThreshold time.Duration

	// Logger receives structured logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults for a single-process repository.
func DefaultOptions() Options {
	return Options{
		WorkerPoolSize:     8,
		MmapSize:           64 * 1024 * 1024,
		WriteQueueSize:     64,
		QueryCacheSize:     defaultQueryCacheCapacity,
		MaxResultRows:      100_000,
		SlowQueryThreshold: 500 * time.Millisecond,
	}
}

// Stats holds repository statistics.
type Stats struct {
	NodeCount     uint64 `json:"node_count"`
	DiskSizeBytes int64  `json:"disk_size_bytes"`
}
