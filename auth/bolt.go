package auth

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"
)

var bucketTokens = []byte("tokens")

// Default token lifetimes.
const (
	DefaultExpiration      = 2 * time.Hour
	DefaultRefreshInterval = 10 * time.Minute
)

// ProviderOptions configures a BoltTokenProvider.
type ProviderOptions struct {
	// Expiration is the lifetime of a token after creation or reset.
	Expiration time.Duration
	// RefreshInterval is the minimum time between two resets of the same
	// token.
	RefreshInterval time.Duration
	// BcryptCost is the cost of the stored key hashes. Default:
	// bcrypt.DefaultCost.
	BcryptCost int
}

// tokenRecord is the stored form of a token, keyed by its id.
type tokenRecord struct {
	UserID     string            `msgpack:"u"`
	KeyHash    []byte            `msgpack:"h"`
	Expires    int64             `msgpack:"e"` // unix milliseconds
	Refreshed  int64             `msgpack:"r"` // unix milliseconds
	Attributes map[string]string `msgpack:"a,omitempty"`
}

// BoltTokenProvider stores tokens in a bbolt file. A token is
// "<id>_<key>"; only a bcrypt hash of the key is stored.
type BoltTokenProvider struct {
	db   *bolt.DB
	opts ProviderOptions
}

var _ TokenProvider = (*BoltTokenProvider)(nil)

// OpenBoltTokenProvider opens or creates the token store at path.
func OpenBoltTokenProvider(path string, opts ProviderOptions) (*BoltTokenProvider, error) {
	if opts.Expiration <= 0 {
		opts.Expiration = DefaultExpiration
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("auth: failed to create directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("auth: failed to open token store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTokens)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("auth: failed to create bucket: %w", err)
	}
	return &BoltTokenProvider{db: db, opts: opts}, nil
}

// Close closes the token store.
func (p *BoltTokenProvider) Close() error {
	return p.db.Close()
}

// CreateToken issues a token for userID. Attributes whose name starts with
// '.' are mandatory: a login must present them with the same value.
func (p *BoltTokenProvider) CreateToken(userID string, attrs map[string]string, now time.Time) (string, error) {
	if userID == "" {
		return "", errors.New("auth: user id is required")
	}
	id := uuid.NewString()
	key := strings.ReplaceAll(uuid.NewString(), "-", "")
	hash, err := bcrypt.GenerateFromPassword([]byte(key), p.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("auth: failed to hash token key: %w", err)
	}
	rec := tokenRecord{
		UserID:     userID,
		KeyHash:    hash,
		Expires:    now.Add(p.opts.Expiration).UnixMilli(),
		Refreshed:  now.UnixMilli(),
		Attributes: maps.Clone(attrs),
	}
	if err := p.put(id, &rec); err != nil {
		return "", err
	}
	return id + "_" + key, nil
}

// GetTokenInfo resolves a token. Malformed, unknown and forged tokens
// yield a nil TokenInfo.
func (p *BoltTokenProvider) GetTokenInfo(token string) (TokenInfo, error) {
	id, key, ok := strings.Cut(token, "_")
	if !ok || id == "" || key == "" {
		return nil, nil
	}
	var rec *tokenRecord
	err := p.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTokens).Get([]byte(id))
		if data == nil {
			return nil
		}
		rec = new(tokenRecord)
		return msgpack.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read token: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword(rec.KeyHash, []byte(key)) != nil {
		return nil, nil
	}
	return &boltTokenInfo{p: p, id: id, token: token, rec: *rec}, nil
}

func (p *BoltTokenProvider) put(id string, rec *tokenRecord) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("auth: failed to encode token: %w", err)
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Put([]byte(id), data)
	})
}

// boltTokenInfo is a snapshot of a stored token.
type boltTokenInfo struct {
	p     *BoltTokenProvider
	id    string
	token string
	rec   tokenRecord
}

func (t *boltTokenInfo) Token() string  { return t.token }
func (t *boltTokenInfo) UserID() string { return t.rec.UserID }

func (t *boltTokenInfo) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= t.rec.Expires
}

func (t *boltTokenInfo) Matches(creds Credentials) bool {
	for name, want := range t.rec.Attributes {
		if !strings.HasPrefix(name, ".") {
			continue
		}
		if got, ok := creds.Attributes[name]; !ok || got != want {
			return false
		}
	}
	return true
}

func (t *boltTokenInfo) ResetExpiration(now time.Time) (bool, error) {
	if t.IsExpired(now) {
		return false, nil
	}
	if now.UnixMilli()-t.rec.Refreshed < t.p.opts.RefreshInterval.Milliseconds() {
		return false, nil
	}
	rec := t.rec
	rec.Expires = now.Add(t.p.opts.Expiration).UnixMilli()
	rec.Refreshed = now.UnixMilli()
	if err := t.p.put(t.id, &rec); err != nil {
		return false, err
	}
	t.rec = rec
	return true, nil
}

func (t *boltTokenInfo) Remove() error {
	return t.p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(t.id))
	})
}
