package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"toolgate/internal/domain"
)

const threadsBucketName = "threads"

// BoltStore keeps one bucket per thread under a root bucket. Keys come from
// the bucket sequence, so iteration order is append order.
type BoltStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

func OpenBoltStore(path string) (*BoltStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(threadsBucketName))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history db: %w", err)
	}
	return &BoltStore{db: db, path: trimmed}, nil
}

func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) Append(_ context.Context, record domain.ExecutionRecord) error {
	record.ThreadID = domain.NormalizeThreadID(record.ThreadID)
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode execution record: %w", err)
	}
	return s.update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(threadsBucketName))
		bucket, err := root.CreateBucketIfNotExists([]byte(record.ThreadID))
		if err != nil {
			return fmt.Errorf("create thread bucket: %w", err)
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put(sequenceKey(seq), value)
	})
}

func (s *BoltStore) List(_ context.Context, threadID string) ([]domain.ExecutionRecord, error) {
	var records []domain.ExecutionRecord
	err := s.view(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(threadsBucketName)).Bucket([]byte(domain.NormalizeThreadID(threadID)))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(key, value []byte) error {
			var record domain.ExecutionRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("decode execution record %d: %w", binary.BigEndian.Uint64(key), err)
			}
			records = append(records, record)
			return nil
		})
	})
	return records, err
}

func (s *BoltStore) Threads(_ context.Context) ([]string, error) {
	var threads []string
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(threadsBucketName)).ForEachBucket(func(name []byte) error {
			threads = append(threads, string(name))
			return nil
		})
	})
	return threads, err
}

func (s *BoltStore) Clear(_ context.Context, threadID string) error {
	return s.update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(threadsBucketName))
		name := []byte(domain.NormalizeThreadID(threadID))
		if root.Bucket(name) == nil {
			return nil
		}
		return root.DeleteBucket(name)
	})
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BoltStore) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *BoltStore) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.db.Update(fn)
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

var _ Store = (*BoltStore)(nil)
