// Package cache provides a small TTL seen-set used to cheapen fan-out
// duplicate checks before the job store is consulted.
package cache

import (
	"sort"
	"sync"
	"time"
)

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// SeenSet remembers keys for a bounded time. It is advisory only: a miss
// still requires the durable duplicate check, a hit skips it.
type SeenSet struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	ttl        time.Duration
	maxEntries int
}

func NewSeenSet(config Config) *SeenSet {
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 4000
	}
	return &SeenSet{
		entries:    make(map[string]time.Time),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
	}
}

// Seen reports whether key was marked within the TTL.
func (s *SeenSet) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, exists := s.entries[key]
	if !exists {
		return false
	}
	if time.Now().UTC().After(expiresAt) {
		delete(s.entries, key)
		return false
	}
	return true
}

// Mark records key for the configured TTL.
func (s *SeenSet) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}
	s.entries[key] = time.Now().UTC().Add(s.ttl)
}

func (s *SeenSet) evictOldest() {
	if len(s.entries) == 0 {
		return
	}

	type pair struct {
		key       string
		expiresAt time.Time
	}
	pairs := make([]pair, 0, len(s.entries))
	for key, expiresAt := range s.entries {
		pairs = append(pairs, pair{key: key, expiresAt: expiresAt})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].expiresAt.Before(pairs[j].expiresAt)
	})
	delete(s.entries, pairs[0].key)
}
