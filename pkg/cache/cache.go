// Package cache implements a namespaced in-memory key-value store with
// per-entry TTLs. Expiry is lazy: an expired entry is treated as a miss on
// read even if the periodic sweep has not removed it yet, so correctness
// never depends on the sweeper running.
package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const nsSeparator = ":"

type entry struct {
	value     any
	expiresAt time.Time
}

// Store is safe for concurrent use. Construct it with New and inject it into
// whichever components need it; there is no package-level instance.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry

	sweepInterval time.Duration
	stopOnce      sync.Once
	stopped       chan struct{}

	logger *slog.Logger
}

func New(logger *slog.Logger, sweepInterval time.Duration) *Store {
	return &Store{
		entries:       make(map[string]entry),
		sweepInterval: sweepInterval,
		stopped:       make(chan struct{}),
		logger:        logger.With(slog.String("component", "cache")),
	}
}

// Start runs the periodic sweeper until ctx is cancelled or Stop is called.
// The sweep is purely an optimization; omitting Start does not affect the
// read-side expiry contract.
func (s *Store) Start(ctx context.Context) {
	if s.sweepInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.logger.Debug("Sweep removed expired entries", slog.Int("count", n))
				}
			case <-ctx.Done():
				return
			case <-s.stopped:
				return
			}
		}
	}()
}

// Stop terminates the background sweeper. Idempotent.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func key(namespace, k string) string {
	return namespace + nsSeparator + k
}

// Set stores value under namespace/key, unconditionally overwriting any
// existing entry and refreshing its expiry.
func (s *Store) Set(namespace, k string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key(namespace, k)] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Get returns the live value for namespace/key. An entry past its expiry is
// evicted and reported as a miss; the check and the eviction happen under one
// lock so two concurrent readers cannot both observe a stale value.
func (s *Store) Get(namespace, k string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck := key(namespace, k)
	e, ok := s.entries[ck]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, ck)
		return nil, false
	}
	return e.value, true
}

// Delete removes a single entry, reporting whether one existed.
func (s *Store) Delete(namespace, k string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck := key(namespace, k)
	if _, ok := s.entries[ck]; !ok {
		return false
	}
	delete(s.entries, ck)
	return true
}

// DeleteNamespace removes every entry in the namespace and returns how many
// were dropped. Used for bulk invalidation.
func (s *Store) DeleteNamespace(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := namespace + nsSeparator
	count := 0
	for ck := range s.entries {
		if strings.HasPrefix(ck, prefix) {
			delete(s.entries, ck)
			count++
		}
	}
	return count
}

// Sweep removes all expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for ck, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, ck)
			count++
		}
	}
	return count
}

// Len reports the number of entries currently held, including entries that
// have expired but not yet been swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
