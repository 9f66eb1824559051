package models

import "time"

// DefaultTokenID is the fixed key of the singleton token row.
const DefaultTokenID = "default"

const (
	// ExpiryMargin is subtracted from the hard expiry before a token is
	// considered unusable.
	ExpiryMargin = 5 * time.Minute
	// RefreshMargin triggers a proactive refresh.
	RefreshMargin = 30 * time.Minute
)

// OAuthToken is the persisted Lark user token pair. Exactly one row exists,
// keyed by DefaultTokenID, and it is only ever replaced in place.
type OAuthToken struct {
	ID                string `gorm:"primaryKey;size:32"`
	AccessToken       string `gorm:"type:text;not null"`
	RefreshToken      string `gorm:"type:text;not null"`
	IssuedAtMillis    int64  `gorm:"not null"`
	TTLSeconds        int64  `gorm:"not null"`
	RefreshTTLSeconds int64
	UpdatedAt         time.Time
}

func (OAuthToken) TableName() string { return "oauth_tokens" }

// ExpiresAt is the hard expiry. The zero time is returned when the issue
// time or TTL is unknown.
func (t *OAuthToken) ExpiresAt() time.Time {
	if t == nil || t.IssuedAtMillis <= 0 || t.TTLSeconds <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.IssuedAtMillis).Add(time.Duration(t.TTLSeconds) * time.Second)
}

// IsExpired reports whether the token is inside the 5 minute safety margin
// (or past its expiry). Missing TTL or issue time counts as expired.
func (t *OAuthToken) IsExpired(now time.Time) bool {
	exp := t.ExpiresAt()
	if exp.IsZero() {
		return true
	}
	return !now.Before(exp.Add(-ExpiryMargin))
}

// NeedsRefresh reports whether the token is inside the 30 minute proactive
// refresh margin. An expired token always needs refresh.
func (t *OAuthToken) NeedsRefresh(now time.Time) bool {
	exp := t.ExpiresAt()
	if exp.IsZero() {
		return true
	}
	return !now.Before(exp.Add(-RefreshMargin))
}
