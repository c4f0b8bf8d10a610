// Package batch remembers the outcome of composition requests so clients can
// look a batch up again by folder id.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/youruser/canvasapp/internal/canvas"
)

var ErrNotFound = errors.New("batch not found")

// Record is what is kept per batch.
type Record struct {
	canvas.RenderedBatch
	Zip           string    `json:"zip,omitempty"`
	SourceDeleted bool      `json:"sourceDeleted"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, folderID string) (Record, error)
}

const keyPrefix = "canvas:batch:"

// RedisStore keeps records as JSON under canvas:batch:{folderId}.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore returns a store expiring records after ttl; 0 keeps them.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+rec.FolderID, b, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, folderID string) (Record, error) {
	b, err := s.rdb.Get(ctx, keyPrefix+folderID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// DefaultMemoryRecords bounds a MemoryStore created with a non-positive cap.
const DefaultMemoryRecords = 10000

// MemoryStore is used when no Redis is configured. Records expire lazily on
// Get. Once maxRecords is reached, Save sweeps expired records and then
// evicts the oldest until the new record fits.
type MemoryStore struct {
	ttl        time.Duration
	maxRecords int
	now        func() time.Time

	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore(ttl time.Duration, maxRecords int) *MemoryStore {
	if maxRecords <= 0 {
		maxRecords = DefaultMemoryRecords
	}
	return &MemoryStore{
		ttl:        ttl,
		maxRecords: maxRecords,
		now:        time.Now,
		records:    make(map[string]Record),
	}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.FolderID]; !ok && len(s.records) >= s.maxRecords {
		s.sweepLocked()
		for len(s.records) >= s.maxRecords {
			s.evictOldestLocked()
		}
	}
	s.records[rec.FolderID] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, folderID string) (Record, error) {
	s.mu.RLock()
	rec, ok := s.records[folderID]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	if s.expired(rec) {
		s.mu.Lock()
		delete(s.records, folderID)
		s.mu.Unlock()
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Len reports how many records are held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) expired(rec Record) bool {
	return s.ttl > 0 && s.now().Sub(rec.CreatedAt) > s.ttl
}

func (s *MemoryStore) sweepLocked() {
	for id, rec := range s.records {
		if s.expired(rec) {
			delete(s.records, id)
		}
	}
}

func (s *MemoryStore) evictOldestLocked() {
	var (
		oldestID string
		oldestAt time.Time
		found    bool
	)
	for id, rec := range s.records {
		if !found || rec.CreatedAt.Before(oldestAt) {
			oldestID, oldestAt, found = id, rec.CreatedAt, true
		}
	}
	if found {
		delete(s.records, oldestID)
	}
}
