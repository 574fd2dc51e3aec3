package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/threadlink/threadlink/internal/store"
)

// DefaultRevocationCacheSize bounds the number of revoked token IDs kept in memory.
const DefaultRevocationCacheSize = 4096

// Revocations checks and records revoked tokens. Positive lookups are
// cached; a revoked token never becomes valid again, so the cache needs no
// invalidation.
type Revocations struct {
	db    *sql.DB
	cache *lru.Cache[string, struct{}]
}

// NewRevocations creates a revocation checker backed by db.
func NewRevocations(db *sql.DB, cacheSize int) (*Revocations, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultRevocationCacheSize
	}
	cache, err := lru.New[string, struct{}](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating revocation cache: %w", err)
	}
	return &Revocations{db: db, cache: cache}, nil
}

// IsRevoked reports whether the token ID has been revoked.
func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if r.cache.Contains(jti) {
		return true, nil
	}
	revoked, err := store.IsTokenRevoked(ctx, r.db, jti)
	if err != nil {
		return false, err
	}
	if revoked {
		r.cache.Add(jti, struct{}{})
	}
	return revoked, nil
}

// Revoke records the token ID as revoked until expiresAt.
func (r *Revocations) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if err := store.RevokeToken(ctx, r.db, jti, expiresAt); err != nil {
		return err
	}
	r.cache.Add(jti, struct{}{})
	return nil
}
