package repoql

import (
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// repositoryFile is the bbolt file inside the repository directory.
const repositoryFile = "repository.db"

// Repository is a content repository: a tree of typed nodes queried with
// the SQL-2 style query language.
//
// Concurrency model:
//   - Queries run fully in parallel; constraint evaluation is spread over
//     a worker pool.
//   - Writes are serialized by bbolt behind a bounded write queue.
//   - The closed flag is an atomic.Bool so reads never hold a mutex.
type Repository struct {
	opts    Options
	dir     string
	store   *store
	pool    *evalPool
	cache   *queryCache
	limits  queryLimits
	log     *slog.Logger
	metrics *Metrics
	slowLog *slowQueryLog

	mu     sync.Mutex  // serializes Close
	closed atomic.Bool // checked by every operation without locking
}

// Open creates or opens a repository in dir. The directory is created if
// it doesn't exist.
func Open(dir string, opts Options) (*Repository, error) {
	if opts.WorkerPoolSize <= 0 {
		opts.WorkerPoolSize = 8
	}
	if opts.QueryCacheSize <= 0 {
		opts.QueryCacheSize = defaultQueryCacheCapacity
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s, err := openStore(filepath.Join(dir, repositoryFile), opts)
	if err != nil {
		return nil, err
	}

	r := &Repository{
		opts:  opts,
		dir:   dir,
		store: s,
		pool:  newEvalPool(opts.WorkerPoolSize),
		cache: newQueryCache(opts.QueryCacheSize),
		log:   logger,
	}
	r.metrics = newMetrics(r)
	r.slowLog = newSlowQueryLog(100)
	r.limits = newQueryLimits(opts)

	r.log.Info("repository opened",
		"dir", dir,
		"nodes", s.count.Load(),
		"workers", opts.WorkerPoolSize,
		"query_cache", opts.QueryCacheSize,
	)
	return r, nil
}

// Close stops the worker pool and closes the underlying store.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return nil
	}
	r.closed.Store(true)

	r.pool.stop()
	err := r.store.close()
	if err != nil {
		r.log.Error("repository closed with error", "error", err)
	} else {
		r.log.Info("repository closed")
	}
	return err
}

// isClosed is a cheap inline check used by every public method.
func (r *Repository) isClosed() bool {
	return r.closed.Load()
}

// Metrics returns the operational metrics collector.
func (r *Repository) Metrics() *Metrics {
	return r.metrics
}

// Stats returns repository statistics.
func (r *Repository) Stats() (*Stats, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	size, err := r.store.fileSize()
	if err != nil {
		return nil, err
	}
	return &Stats{
		NodeCount:     r.store.count.Load(),
		DiskSizeBytes: size,
	}, nil
}
