// Package kv is an in-memory key-value store with optional per-key expiry.
//
// Values are kept as JSON documents so that a snapshot can be written to any
// storage.Sink and reloaded by a later process. Expiry is lazy: an elapsed key
// is evicted by the next accessor that touches it, and dropped on save.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"standupbot/internal/storage"
	logx "standupbot/pkg/logx"
)

var (
	ErrNotFound           = errors.New("kv: key not found")
	ErrUnsupportedVersion = errors.New("kv: unsupported snapshot version")
)

// Store is safe for concurrent use. Every method holds the store mutex for
// its whole duration.
type Store struct {
	mu      sync.Mutex
	items   map[string]json.RawMessage
	expires map[string]time.Time

	now  func() time.Time
	sink storage.Sink
	log  logx.Logger
}

type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSink sets where Save and Load move the snapshot. Defaults to an
// in-memory sink.
func WithSink(sink storage.Sink) Option {
	return func(s *Store) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(s *Store) { s.log = log }
}

func New(opts ...Option) *Store {
	s := &Store{
		items:   map[string]json.RawMessage{},
		expires: map[string]time.Time{},
		now:     time.Now,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.sink == nil {
		s.sink = storage.NewMemory()
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "kv"))
	return s
}

// Set stores v under key. A positive ttl makes the key disappear after ttl;
// otherwise any previous expiry for key is cleared.
func (s *Store) Set(key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = raw
	if ttl > 0 {
		s.expires[key] = s.now().Add(ttl)
	} else {
		delete(s.expires, key)
	}
	return nil
}

// Get decodes the value under key into out (which may be nil to only test
// presence). A missing or expired key yields ok=false and no error.
func (s *Store) Get(key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(key)
	raw, ok := s.items[key]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// GetOrSet behaves like Get, but stores def under key first when key is
// missing or expired. The stored default carries no expiry. A nil def
// stores nothing and yields ErrNotFound for a missing key.
func (s *Store) GetOrSet(key string, def, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(key)
	raw, ok := s.items[key]
	if !ok {
		if def == nil {
			return ErrNotFound
		}
		b, err := json.Marshal(def)
		if err != nil {
			return fmt.Errorf("kv: encode default %q: %w", key, err)
		}
		s.items[key] = b
		raw = b
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return nil
}

// Unset removes key and its expiry. It returns ErrNotFound when the key is
// absent, expired keys included.
func (s *Store) Unset(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(key)
	if _, ok := s.items[key]; !ok {
		return ErrNotFound
	}
	delete(s.items, key)
	delete(s.expires, key)
	return nil
}

func (s *Store) Has(key string) bool {
	ok, _ := s.Get(key, nil)
	return ok
}

// ExpiresAt reports the expiry of key, if it has one.
func (s *Store) ExpiresAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(key)
	at, ok := s.expires[key]
	return at, ok
}

// Len counts live keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictAllLocked()
	return len(s.items)
}

// Keys returns live keys in lexical order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictAllLocked()
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Store) evictLocked(key string) {
	at, ok := s.expires[key]
	if !ok {
		return
	}
	if !s.now().Before(at) {
		delete(s.items, key)
		delete(s.expires, key)
	}
}

func (s *Store) evictAllLocked() {
	for k := range s.expires {
		s.evictLocked(k)
	}
}
