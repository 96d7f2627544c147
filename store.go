package repoql

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrWriteQueueFull is returned when every write slot is taken and the
// caller's context ends first.
var ErrWriteQueueFull = errors.New("repoql: write queue full")

var (
	bucketMeta    = []byte("meta")
	bucketNodes   = []byte("nodes")    // path → node record
	bucketIdxType = []byte("idx_type") // type 0x00 path → nil, for the primary type and every mixin

	keyNodeCount = []byte("node_count")
)

// storeSyncInterval is how often a NoSync store flushes to disk.
const storeSyncInterval = 200 * time.Millisecond

// store keeps the node tree of a repository in one bbolt file. Paths are
// the keys of the nodes bucket, so a subtree is a contiguous key range.
type store struct {
	db   *bolt.DB
	path string

	// count mirrors meta/node_count as of the last commit.
	count atomic.Uint64

	// slots bounds the writers queued behind bbolt's write lock.
	slots    chan struct{}
	slotWait time.Duration // 0 = bounded by the caller's context only

	stopSync context.CancelFunc // nil unless NoSync
	synced   chan struct{}
}

func openStore(path string, opts Options) (*store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("repoql: failed to create repository directory: %w", err)
	}
	bo := *bolt.DefaultOptions
	bo.NoSync = opts.NoSync
	bo.ReadOnly = opts.ReadOnly
	if opts.MmapSize > 0 {
		bo.InitialMmapSize = opts.MmapSize
	}
	db, err := bolt.Open(path, 0o600, &bo)
	if err != nil {
		return nil, fmt.Errorf("repoql: failed to open %s: %w", path, err)
	}

	queue := opts.WriteQueueSize
	if queue <= 0 {
		queue = 64
	}
	s := &store{
		db:       db,
		path:     path,
		slots:    make(chan struct{}, queue),
		slotWait: opts.WriteTimeout,
	}
	if err := s.prepare(opts.ReadOnly); err != nil {
		db.Close()
		return nil, err
	}
	if opts.NoSync && !opts.ReadOnly {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopSync, s.synced = cancel, make(chan struct{})
		go s.syncLoop(ctx)
	}
	return s, nil
}

// prepare creates the buckets and loads the node count from the nodes
// bucket.
func (s *store) prepare(readOnly bool) error {
	if readOnly {
		return s.db.View(func(tx *bolt.Tx) error {
			s.count.Store(countNodes(tx))
			return nil
		})
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketNodes, bucketIdxType} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("repoql: failed to create bucket %s: %w", name, err)
			}
		}
		n := countNodes(tx)
		s.count.Store(n)
		return tx.Bucket(bucketMeta).Put(keyNodeCount, encodeUint64(n))
	})
}

func countNodes(tx *bolt.Tx) uint64 {
	nodes := tx.Bucket(bucketNodes)
	if nodes == nil {
		return 0
	}
	return uint64(nodes.Stats().KeyN)
}

// acquire takes a write slot. Without a caller deadline it waits at most
// slotWait.
func (s *store) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	default:
	}
	if _, ok := ctx.Deadline(); !ok && s.slotWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.slotWait)
		defer cancel()
	}
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrWriteQueueFull, ctx.Err())
	}
}

// update runs fn in a write transaction and publishes the node count
// once it commits.
func (s *store) update(ctx context.Context, fn func(*nodeTx) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-s.slots }()

	var count uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		ntx := &nodeTx{
			nodes: tx.Bucket(bucketNodes),
			types: tx.Bucket(bucketIdxType),
			count: s.count.Load(),
		}
		if err := fn(ntx); err != nil {
			return err
		}
		count = ntx.count
		return tx.Bucket(bucketMeta).Put(keyNodeCount, encodeUint64(count))
	})
	if err != nil {
		return err
	}
	s.count.Store(count)
	return nil
}

// nodeTx is a write transaction over the nodes and the type index.
type nodeTx struct {
	nodes *bolt.Bucket
	types *bolt.Bucket
	count uint64
}

func (t *nodeTx) exists(path string) bool {
	return t.nodes.Get([]byte(path)) != nil
}

// put stores n, replacing the type index entries of any previous node at
// the same path. It reports whether the path was new.
func (t *nodeTx) put(n *ContentNode) (bool, error) {
	data, err := encodeRecord(n)
	if err != nil {
		return false, err
	}
	key := []byte(n.Path)
	created := true
	if old := t.nodes.Get(key); old != nil {
		created = false
		if err := t.unindex(n.Path, old); err != nil {
			return false, err
		}
	}
	if err := t.nodes.Put(key, data); err != nil {
		return false, err
	}
	for _, typ := range n.types() {
		if err := t.types.Put(encodeTypeKey(typ, n.Path), nil); err != nil {
			return false, err
		}
	}
	if created {
		t.count++
	}
	return created, nil
}

func (t *nodeTx) unindex(path string, record []byte) error {
	prev, err := decodeRecord(path, record)
	if err != nil {
		return err
	}
	for _, typ := range prev.types() {
		if err := t.types.Delete(encodeTypeKey(typ, path)); err != nil {
			return err
		}
	}
	return nil
}

// removeTree deletes the node at path and every node below it.
func (t *nodeTx) removeTree(path string) (int, error) {
	var doomed [][]byte
	if t.exists(path) {
		doomed = append(doomed, []byte(path))
	}
	prefix := []byte(childPrefix(path))
	c := t.nodes.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		doomed = append(doomed, bytes.Clone(k))
	}
	for _, k := range doomed {
		if err := t.unindex(string(k), t.nodes.Get(k)); err != nil {
			return 0, err
		}
		if err := t.nodes.Delete(k); err != nil {
			return 0, err
		}
	}
	t.count -= uint64(len(doomed))
	return len(doomed), nil
}

// node returns the node at path, or nil.
func (s *store) node(path string) (*ContentNode, error) {
	var n *ContentNode
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(path))
		if data == nil {
			return nil
		}
		var err error
		n, err = decodeRecord(path, data)
		return err
	})
	return n, err
}

// eachWithPrefix calls fn for every node whose path starts with prefix,
// in path order.
func (s *store) eachWithPrefix(prefix string, fn func(*ContentNode) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		p := []byte(prefix)
		c := tx.Bucket(bucketNodes).Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			n, err := decodeRecord(string(k), v)
			if err != nil {
				return err
			}
			if err := fn(n); err != nil {
				return err
			}
		}
		return nil
	})
}

// eachOfType calls fn for every node indexed under nodeType, in path
// order.
func (s *store) eachOfType(nodeType string, fn func(*ContentNode) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		prefix := encodeTypePrefix(nodeType)
		c := tx.Bucket(bucketIdxType).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			path := decodeTypeKeyPath(k, nodeType)
			data := nodes.Get([]byte(path))
			if data == nil {
				continue
			}
			n, err := decodeRecord(path, data)
			if err != nil {
				return err
			}
			if err := fn(n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *store) syncLoop(ctx context.Context) {
	defer close(s.synced)
	ticker := time.NewTicker(storeSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.db.Sync()
		case <-ctx.Done():
			_ = s.db.Sync()
			return
		}
	}
}

func (s *store) close() error {
	if s.stopSync != nil {
		s.stopSync()
		<-s.synced
	}
	return s.db.Close()
}

func (s *store) fileSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
