package domain

import "time"

// SyncStatus is the health state of a calendar connection
type SyncStatus string

const (
	SyncStatusActive SyncStatus = "active"
	SyncStatusPaused SyncStatus = "paused"
	SyncStatusError  SyncStatus = "error"
)

// TokenExpiryWindow is how close to expiry a token must be before it is
// refreshed proactively
const TokenExpiryWindow = 5 * time.Minute

// Credential represents a user's OAuth connection to an external calendar account.
// AccessToken and RefreshToken hold AES-GCM ciphertext, never plaintext.
type Credential struct {
	ID             string     `json:"id" db:"id"`
	UserID         string     `json:"user_id" db:"user_id"`
	Provider       string     `json:"provider" db:"provider"` // google
	AccountEmail   string     `json:"account_email" db:"account_email"`
	AccessToken    string     `json:"-" db:"access_token"`
	RefreshToken   string     `json:"-" db:"refresh_token"`
	TokenExpiresAt time.Time  `json:"token_expires_at" db:"token_expires_at"`
	Status         SyncStatus `json:"status" db:"status"`
	LastSyncAt     *time.Time `json:"last_sync_at" db:"last_sync_at"`
	LastError      *string    `json:"last_error" db:"last_error"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether the access token expiry has passed
func (c *Credential) IsExpired(now time.Time) bool {
	return !c.TokenExpiresAt.After(now)
}

// IsExpiringSoon reports whether the access token expires within
// TokenExpiryWindow. An already expired token is also expiring soon.
func (c *Credential) IsExpiringSoon(now time.Time) bool {
	return !c.TokenExpiresAt.After(now.Add(TokenExpiryWindow))
}
