package storage

import (
	"context"
	"sync"
	"time"
)

// Ensure MemoryStorage implements Storage
var _ Storage = (*MemoryStorage)(nil)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStorage keeps entries in a map. Contents are lost on restart.
type MemoryStorage struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStorage) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, expiresAt: expiresAt(s.now(), ttl)}
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || isExpired(entry.expiresAt, s.now()) {
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStorage) CleanupExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for key, entry := range s.entries {
		if isExpired(entry.expiresAt, now) {
			delete(s.entries, key)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
