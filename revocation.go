package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// RevocationStore remembers revoked tokens until their natural expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Claim revokes token only if it is not revoked yet, as a single atomic
	// step. It reports true to exactly one of any number of concurrent
	// callers presenting the same token.
	Claim(ctx context.Context, token string, ttl time.Duration) (bool, error)
}

// revocationKey hashes the token so raw bearer values are never stored.
func revocationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryRevocationStore keeps revocations in process. Expired entries are
// dropped when read or swept.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	clock   Clock
}

var _ RevocationStore = (*MemoryRevocationStore)(nil)

// NewMemoryRevocationStore returns an empty in-process store.
func NewMemoryRevocationStore(clock Clock) *MemoryRevocationStore {
	return &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		clock:   normalizeClock(clock),
	}
}

// Revoke implements RevocationStore. A non positive ttl is a no-op.
func (s *MemoryRevocationStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == "" || ttl <= 0 {
		return nil
	}

	expiresAt := s.clock.Now().Add(ttl)
	key := revocationKey(token)

	s.mu.Lock()
	if current, ok := s.entries[key]; !ok || current.Before(expiresAt) {
		s.entries[key] = expiresAt
	}
	s.mu.Unlock()
	return nil
}

// IsRevoked implements RevocationStore.
func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}

	key := revocationKey(token)

	s.mu.RLock()
	expiresAt, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if s.clock.Now().After(expiresAt) {
		s.mu.Lock()
		if current, still := s.entries[key]; still && current.Equal(expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return false, nil
	}

	return true, nil
}

// Claim implements RevocationStore.
func (s *MemoryRevocationStore) Claim(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if token == "" || ttl <= 0 {
		return false, nil
	}

	now := s.clock.Now()
	key := revocationKey(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if expiresAt, ok := s.entries[key]; ok && !now.After(expiresAt) {
		return false, nil
	}
	s.entries[key] = now.Add(ttl)
	return true, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryRevocationStore) RunSweeper(ctx context.Context, interval time.Duration, logger Logger) {
	if interval <= 0 {
		return
	}
	logger = normalizeLogger(logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Debug("swept expired revocations", "removed", n)
			}
		}
	}
}

// Sweep drops every expired entry and returns how many were removed.
func (s *MemoryRevocationStore) Sweep() int {
	now := s.clock.Now()
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, expiresAt := range s.entries {
		if now.After(expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently held, expired or not.
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// FallbackRevocationStore writes to a durable store and falls back to an
// in-process store when the durable one fails. Entries held only in memory
// are lost on restart.
type FallbackRevocationStore struct {
	durable RevocationStore
	memory  RevocationStore
	logger  Logger
}

var _ RevocationStore = (*FallbackRevocationStore)(nil)

// NewFallbackRevocationStore combines durable and memory. A nil durable store
// degrades to memory only.
func NewFallbackRevocationStore(durable, memory RevocationStore, logger Logger) *FallbackRevocationStore {
	if memory == nil {
		memory = NewMemoryRevocationStore(nil)
	}
	return &FallbackRevocationStore{
		durable: durable,
		memory:  memory,
		logger:  normalizeLogger(logger),
	}
}

// Revoke implements RevocationStore.
func (s *FallbackRevocationStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" || ttl <= 0 {
		return nil
	}

	if s.durable != nil {
		err := s.durable.Revoke(ctx, token, ttl)
		if err == nil {
			return nil
		}
		s.logger.Warn("durable revocation failed, keeping entry in memory", "error", err)
	}

	return s.memory.Revoke(ctx, token, ttl)
}

// IsRevoked implements RevocationStore. Durable read failures fall back to
// the in-memory answer.
func (s *FallbackRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	revoked, err := s.memory.IsRevoked(ctx, token)
	if err != nil {
		return false, err
	}
	if revoked || s.durable == nil {
		return revoked, nil
	}

	revoked, err = s.durable.IsRevoked(ctx, token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		s.logger.Warn("durable revocation lookup failed, using memory only", "error", err)
		return false, nil
	}
	return revoked, nil
}

// Claim implements RevocationStore. An entry already held in memory wins;
// otherwise the durable store decides, and the memory store only when the
// durable one fails.
func (s *FallbackRevocationStore) Claim(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if token == "" || ttl <= 0 {
		return false, nil
	}

	revoked, err := s.memory.IsRevoked(ctx, token)
	if err != nil {
		return false, err
	}
	if revoked {
		return false, nil
	}

	if s.durable != nil {
		claimed, err := s.durable.Claim(ctx, token, ttl)
		if err == nil {
			return claimed, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		s.logger.Warn("durable revocation claim failed, claiming in memory", "error", err)
	}

	return s.memory.Claim(ctx, token, ttl)
}
