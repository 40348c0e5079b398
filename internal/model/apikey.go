package model

import "time"

// APIKey represents an API key used to authenticate proxy requests. The raw
// key is never stored; only a SHA-256 hash of its secret part and a masked
// display form are persisted. Keys are immutable once issued except for
// revocation and the last-used timestamp.
type APIKey struct {
	ID                 int64      `json:"id" db:"id"`
	KeyHash            string     `json:"-" db:"key_hash"` // SHA-256 of the secret, never expose
	KeyMasked          string     `json:"key_masked" db:"key_masked"`
	ShortID            string     `json:"short_id" db:"short_id"`
	Label              string     `json:"label" db:"label"`
	Environment        string     `json:"environment" db:"environment"` // "live" or "test"
	RateLimitPerMinute int        `json:"rate_limit_per_minute" db:"rate_limit_per_minute"`
	RateLimitPerDay    int        `json:"rate_limit_per_day" db:"rate_limit_per_day"`
	IsRevoked          bool       `json:"is_revoked" db:"is_revoked"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Expired reports whether the key has an expiry in the past at the given
// instant.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
