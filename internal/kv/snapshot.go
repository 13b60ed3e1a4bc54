package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logx "standupbot/pkg/logx"
)

const snapshotVersion = 1

type snapshot struct {
	Version int                     `json:"version"`
	SavedAt time.Time               `json:"saved_at"`
	Items   map[string]snapshotItem `json:"items"`
}

type snapshotItem struct {
	Value json.RawMessage `json:"value"`
	// Absolute, so the remaining TTL keeps shrinking while the process is down.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Save writes every live key to the sink. Expired keys are dropped.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	s.evictAllLocked()
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: s.now().UTC(),
		Items:   make(map[string]snapshotItem, len(s.items)),
	}
	for k, v := range s.items {
		it := snapshotItem{Value: v}
		if at, ok := s.expires[k]; ok {
			at := at.UTC()
			it.ExpiresAt = &at
		}
		snap.Items[k] = it
	}
	s.mu.Unlock()

	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("kv: encode snapshot: %w", err)
	}
	if err := s.sink.Save(ctx, b); err != nil {
		return fmt.Errorf("kv: save snapshot: %w", err)
	}
	s.log.Info("snapshot saved", logx.Int("keys", len(snap.Items)), logx.Int("bytes", len(b)))
	return nil
}

// Load replaces the store contents with the sink's snapshot. An empty sink
// leaves the store untouched.
func (s *Store) Load(ctx context.Context) error {
	b, err := s.sink.Load(ctx)
	if err != nil {
		return fmt.Errorf("kv: load snapshot: %w", err)
	}
	if len(b) == 0 {
		s.log.Info("no snapshot found, starting empty")
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("kv: decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, snap.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	items := make(map[string]json.RawMessage, len(snap.Items))
	expires := map[string]time.Time{}
	dropped := 0
	for k, it := range snap.Items {
		if it.ExpiresAt != nil {
			if !now.Before(*it.ExpiresAt) {
				dropped++
				continue
			}
			expires[k] = *it.ExpiresAt
		}
		items[k] = it.Value
	}
	s.items = items
	s.expires = expires
	s.log.Info("snapshot loaded",
		logx.Int("keys", len(items)),
		logx.Int("expired", dropped),
		logx.Time("saved_at", snap.SavedAt),
	)
	return nil
}
