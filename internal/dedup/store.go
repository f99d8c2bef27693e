// Package dedup provides TTL-bound signature stores used for duplicate
// suppression and exclusive delivery locks. Entries are reclaimed by
// periodic sweeps rather than per-entry timers.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/chatpipeai/chatpipe/internal/clock"
)

// Signature derives a stable hex key from the given parts.
func Signature(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Store is a bounded map of signatures with TTL expiry.
type Store struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	max     int
	entries map[string]entry
}

// NewStore creates a Store. max bounds the number of live entries; when
// full, the entry closest to expiry is evicted to admit a new one.
func NewStore(c clock.Clock, ttl time.Duration, max int) *Store {
	if max <= 0 {
		max = 4096
	}
	return &Store{
		clock:   c,
		ttl:     ttl,
		max:     max,
		entries: make(map[string]entry),
	}
}

// Put records the key with the store's TTL.
func (s *Store) Put(key string) {
	s.PutValue(key, "")
}

// PutValue records the key with an associated value.
func (s *Store) PutValue(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if _, ok := s.entries[key]; !ok && len(s.entries) >= s.max {
		s.evictSoonestLocked()
	}
	s.entries[key] = entry{value: value, expiresAt: now.Add(s.ttl)}
}

// Seen reports whether the key is present and unexpired.
func (s *Store) Seen(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Get returns the value stored for an unexpired key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.clock.Now()) {
		delete(s.entries, key)
		return "", false
	}
	return e.value, true
}

// Delete removes the key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of entries, expired ones included until swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	removed := 0
	for key, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *Store) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for key, e := range s.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim = key
			soonest = e.expiresAt
		}
	}
	if victim != "" {
		delete(s.entries, victim)
	}
}
