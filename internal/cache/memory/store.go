// Package memory implements an in-process resolution cache.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/pinfetch/internal/media"
)

type entry struct {
	descriptor media.Descriptor
	expiresAt  time.Time
}

// DefaultMaxEntries bounds a Store built with New.
const DefaultMaxEntries = 10000

// Store is a map-backed media.Cache. Entries expire lazily on read, and Put
// prunes expired entries once the map reaches its bound.
type Store struct {
	mu         sync.Mutex
	clock      media.Clock
	maxEntries int
	entries    map[media.SourceURL]entry
}

var _ media.Cache = (*Store)(nil)

// New creates an empty store reading time from clock, bounded by
// DefaultMaxEntries.
func New(clock media.Clock) *Store {
	return NewBounded(clock, DefaultMaxEntries)
}

// NewBounded creates an empty store holding at most maxEntries keys.
func NewBounded(clock media.Clock, maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{
		clock:      clock,
		maxEntries: maxEntries,
		entries:    make(map[media.SourceURL]entry),
	}
}

// Get returns the entry for key. An expired entry is removed and reported as a miss.
func (s *Store) Get(_ context.Context, key media.SourceURL) (media.Descriptor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return media.Descriptor{}, false, nil
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return media.Descriptor{}, false, nil
	}
	return e.descriptor, true, nil
}

// Put stores d under key until ttl elapses. Last writer wins.
func (s *Store) Put(_ context.Context, key media.SourceURL, d media.Descriptor, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("memory put: ttl must be > 0")
	}
	if !d.Valid() {
		return fmt.Errorf("memory put: no image or video")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.pruneLocked(now)
	}
	s.entries[key] = entry{descriptor: d, expiresAt: now.Add(ttl)}
	return nil
}

// pruneLocked drops expired entries. If none have expired, the entry closest
// to expiry goes instead.
func (s *Store) pruneLocked(now time.Time) {
	var (
		soonest     media.SourceURL
		soonestAt   time.Time
		haveSoonest bool
	)
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			continue
		}
		if !haveSoonest || e.expiresAt.Before(soonestAt) {
			soonest, soonestAt, haveSoonest = key, e.expiresAt, true
		}
	}
	if len(s.entries) >= s.maxEntries && haveSoonest {
		delete(s.entries, soonest)
	}
}

// Len reports the number of stored entries, including expired ones not yet read.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
