package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Ledger for tests and dry runs. It also
// implements the dedup Claim used by the executor.
type Memory struct {
	mu      sync.Mutex
	lots    map[string]int64
	claimed map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		lots:    make(map[string]int64),
		claimed: make(map[string]time.Time),
	}
}

func (m *Memory) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lots[key], nil
}

func (m *Memory) Set(_ context.Context, key string, lots int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lots == 0 {
		delete(m.lots, key)
		return nil
	}
	m.lots[key] = lots
	return nil
}

func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lots, key)
	return nil
}

func (m *Memory) All(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.lots))
	for k, v := range m.lots {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lots = make(map[string]int64)
	return nil
}

func (m *Memory) Claim(_ context.Context, key string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if until, ok := m.claimed[key]; ok && now.Before(until) {
		return false, nil
	}
	m.claimed[key] = now.Add(window)
	return true, nil
}
