package auth

import (
	"sync"
	"time"
)

// RevocationList remembers logouts. A revoked principal is one whose token
// was presented at logout, or whose token was issued in a second before the
// user's latest logout. Second granularity matches the iat claim, so a login
// in the same second as a logout keeps working.
type RevocationList struct {
	mu      sync.Mutex
	clock   func() time.Time
	cutoffs map[int64]time.Time
	tokens  map[string]time.Time
}

func NewRevocationList(clock func() time.Time) *RevocationList {
	if clock == nil {
		clock = time.Now
	}
	return &RevocationList{
		clock:   clock,
		cutoffs: make(map[int64]time.Time),
		tokens:  make(map[string]time.Time),
	}
}

// Revoke ends the presented token and every earlier token of the same user.
func (r *RevocationList) Revoke(principal Principal) {
	if principal.UserID <= 0 {
		return
	}
	now := r.clock().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs[principal.UserID] = now.Truncate(time.Second)
	if principal.TokenID != "" {
		r.tokens[principal.TokenID] = principal.ExpiresAt
	}
	for tokenID, expiresAt := range r.tokens {
		if !expiresAt.IsZero() && expiresAt.Before(now) {
			delete(r.tokens, tokenID)
		}
	}
}

func (r *RevocationList) IsRevoked(principal Principal) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if principal.TokenID != "" {
		if _, revoked := r.tokens[principal.TokenID]; revoked {
			return true
		}
	}
	cutoff, ok := r.cutoffs[principal.UserID]
	return ok && principal.IssuedAt.Before(cutoff)
}
