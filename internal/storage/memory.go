package storage

import (
	"context"
	"sync"
)

// Memory keeps the last saved snapshot in process memory.
type Memory struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(ctx context.Context) ([]byte, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *Memory) Save(ctx context.Context, data []byte) error {
	_ = ctx
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.saves++
	m.mu.Unlock()
	return nil
}

// Saves reports how many times Save has been called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) Close() error { return nil }
