package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore tracks tokens that must be rejected before their natural
// expiry: single tokens by jti (logout) and every token of a user issued
// before a cutoff (account deleted or password changed).
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	RevokeUser(ctx context.Context, userID string, cutoff time.Time) error
	IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error)
}

// revocationEntry stores metadata about a revoked JWT token.
type revocationEntry struct {
	ExpiresAt time.Time
}

type userCutoff struct {
	Cutoff    time.Time
	ExpiresAt time.Time
}

// TokenRevocationStore manages revoked JWT tokens in memory. Expired entries
// are dropped by a background loop. Safe for concurrent use.
type TokenRevocationStore struct {
	mu       sync.RWMutex
	entries  map[string]revocationEntry // JTI -> entry
	users    map[string]userCutoff
	tokenTTL time.Duration
	done     chan struct{}
}

// NewTokenRevocationStore creates a new store and starts a background
// goroutine that cleans up expired entries every 5 minutes. tokenTTL bounds
// how long a per-user cutoff must be remembered.
func NewTokenRevocationStore(tokenTTL time.Duration) *TokenRevocationStore {
	s := &TokenRevocationStore{
		entries:  make(map[string]revocationEntry),
		users:    make(map[string]userCutoff),
		tokenTTL: tokenTTL,
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *TokenRevocationStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = revocationEntry{ExpiresAt: expiresAt}
	return nil
}

func (s *TokenRevocationStore) RevokeUser(_ context.Context, userID string, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = userCutoff{Cutoff: cutoff, ExpiresAt: cutoff.Add(s.tokenTTL)}
	return nil
}

func (s *TokenRevocationStore) IsRevoked(_ context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entries[jti]; ok && jti != "" {
		return true, nil
	}
	if u, ok := s.users[userID]; ok && !issuedAt.After(u.Cutoff) {
		return true, nil
	}
	return false, nil
}

// Count returns the number of currently revoked tokens.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Close stops the background cleanup goroutine. It is safe to call
// multiple times but only the first call has effect.
func (s *TokenRevocationStore) Close() {
	select {
	case <-s.done:
		// already closed
	default:
		close(s.done)
	}
}

func (s *TokenRevocationStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup(time.Now())
		}
	}
}

func (s *TokenRevocationStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, jti)
		}
	}
	for id, u := range s.users {
		if now.After(u.ExpiresAt) {
			delete(s.users, id)
		}
	}
}
