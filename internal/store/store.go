// Package store persists scan and trade artifacts to a local bbolt file.
// Writes are fire-and-forget through a buffered channel: the decision loop
// never blocks on disk, and a failed write is logged, not propagated.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/seojinpark/volumetrader/internal/market"
	"github.com/seojinpark/volumetrader/internal/observ"
	"github.com/seojinpark/volumetrader/internal/order"
)

var buckets = []string{"candidates", "orders", "breakouts", "syslog"}

type entry struct {
	bucket string
	key    []byte
	value  []byte
}

type Store struct {
	db   *bolt.DB
	ch   chan entry
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// Open creates the database file (and its directory) and starts the writer.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	s := &Store{
		db:   db,
		ch:   make(chan entry, 256),
		done: make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

// Close drains pending writes and closes the database. Save calls arriving
// after Close are dropped, not panics; loop goroutines may still be mid-cycle
// when shutdown starts.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}

func (s *Store) writer() {
	defer close(s.done)
	for e := range s.ch {
		err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket([]byte(e.bucket)).Put(e.key, e.value)
		})
		if err != nil {
			observ.Error("store_write_failed", err, map[string]any{"bucket": e.bucket})
		}
	}
}

// enqueue never blocks; when the buffer is full the write is dropped.
func (s *Store) enqueue(bucket, suffix string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		observ.Error("store_encode_failed", err, map[string]any{"bucket": bucket})
		return
	}
	key := fmt.Sprintf("%d-%s", time.Now().UnixNano(), suffix)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		observ.Log("store_write_dropped", map[string]any{"bucket": bucket, "reason": "closed"})
		return
	}
	select {
	case s.ch <- entry{bucket: bucket, key: []byte(key), value: b}:
	default:
		observ.Log("store_write_dropped", map[string]any{"bucket": bucket})
	}
}

func (s *Store) SaveCandidate(c market.Candidate) {
	s.enqueue("candidates", c.Symbol, c)
}

func (s *Store) SaveOrder(o order.Order) {
	s.enqueue("orders", o.ID, o)
}

func (s *Store) SaveBreakout(symbol string, snap market.Snapshot) {
	s.enqueue("breakouts", symbol, snap)
}

// SaveSystemLog mirrors a log event into the database for later inspection.
func (s *Store) SaveSystemLog(event string, kv map[string]any) {
	rec := map[string]any{"event": event, "ts": time.Now().UTC().Format(time.RFC3339Nano)}
	for k, v := range kv {
		rec[k] = v
	}
	s.enqueue("syslog", event, rec)
}

// Candidates reads back every stored candidate, oldest first.
func (s *Store) Candidates() ([]market.Candidate, error) {
	var out []market.Candidate
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("candidates")).ForEach(func(_, v []byte) error {
			var c market.Candidate
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

// Orders reads back every stored order, oldest first.
func (s *Store) Orders() ([]order.Order, error) {
	var out []order.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("orders")).ForEach(func(_, v []byte) error {
			var o order.Order
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			out = append(out, o)
			return nil
		})
	})
	return out, err
}
