package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOAuthTokenFreshness(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	issuedFor := func(remaining time.Duration) *OAuthToken {
		// ttl of two hours, issued so that `remaining` is left before hard expiry
		ttl := 2 * time.Hour
		issued := now.Add(remaining - ttl)
		return &OAuthToken{IssuedAtMillis: issued.UnixMilli(), TTLSeconds: int64(ttl / time.Second)}
	}

	tests := []struct {
		name         string
		token        *OAuthToken
		expired      bool
		needsRefresh bool
	}{
		{"fresh", issuedFor(90 * time.Minute), false, false},
		{"exactly at refresh margin", issuedFor(30 * time.Minute), false, true},
		{"inside refresh margin", issuedFor(10 * time.Minute), false, true},
		{"exactly at expiry margin", issuedFor(5 * time.Minute), true, true},
		{"inside expiry margin", issuedFor(time.Minute), true, true},
		{"past hard expiry", issuedFor(-time.Hour), true, true},
		{"missing ttl", &OAuthToken{IssuedAtMillis: now.UnixMilli()}, true, true},
		{"missing issue time", &OAuthToken{TTLSeconds: 7200}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, tt.token.IsExpired(now))
			assert.Equal(t, tt.needsRefresh, tt.token.NeedsRefresh(now))
		})
	}
}

func TestSourceIDPrefix(t *testing.T) {
	assert.Equal(t, "bitable_", SourceBitable.IDPrefix())
	assert.Equal(t, "taskv2_", SourceTaskV2.IDPrefix())
}

func TestStatusCounts(t *testing.T) {
	var c StatusCounts
	for _, s := range []TaskStatus{StatusCompleted, StatusOverdue, StatusOverdue, StatusPending, StatusInProgress} {
		c.Add(s)
	}
	assert.Equal(t, StatusCounts{Total: 5, Completed: 1, InProgress: 1, Pending: 1, Overdue: 2}, c)
}
