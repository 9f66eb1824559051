package auth

import (
	"context"
	"errors"
	"time"

	"hubtask/metrics"
	"hubtask/models"

	"github.com/sirupsen/logrus"
)

// TokenStore is the persistence the manager needs. Implemented by
// repositories.TokenRepository.
type TokenStore interface {
	Get(ctx context.Context) (*models.OAuthToken, error)
	Save(ctx context.Context, token *models.OAuthToken) error
	CompareAndSwap(ctx context.Context, expectedIssuedAt int64, token *models.OAuthToken) (bool, error)
}

// Refresher exchanges a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*UserToken, error)
}

// TokenManager hands out a usable user access token, refreshing and
// persisting the stored pair when it is close to expiry.
type TokenManager struct {
	store     TokenStore
	refresher Refresher
	now       func() time.Time
}

func NewTokenManager(store TokenStore, refresher Refresher) *TokenManager {
	return &TokenManager{store: store, refresher: refresher, now: time.Now}
}

// ValidAccessToken returns the stored access token, refreshing it first when
// it is inside the refresh margin.
func (m *TokenManager) ValidAccessToken(ctx context.Context) (string, error) {
	if m == nil || m.store == nil {
		return "", models.ErrStoreUnavailable
	}

	current, err := m.store.Get(ctx)
	if err != nil {
		return "", err
	}
	if current == nil || current.RefreshToken == "" {
		return "", models.ErrNotAuthenticated
	}
	if !current.NeedsRefresh(m.now()) {
		return current.AccessToken, nil
	}

	logger := logrus.WithFields(logrus.Fields{
		"component": "TokenManager",
		"issued_at": current.IssuedAtMillis,
	})

	fresh, err := m.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		logger.WithError(err).Warn("Token refresh failed")
		var rf *models.RefreshFailedError
		if errors.As(err, &rf) {
			return "", rf
		}
		return "", &models.RefreshFailedError{Message: err.Error()}
	}

	swapped, err := m.store.CompareAndSwap(ctx, current.IssuedAtMillis, fresh.Record(m.now()))
	if err != nil {
		return "", err
	}
	if swapped {
		metrics.TokenRefreshes.WithLabelValues("refreshed").Inc()
		logger.Info("Stored OAuth token refreshed")
		return fresh.AccessToken, nil
	}

	// Another caller rotated the pair first. Our refresh token is spent, so
	// use whatever the winner stored.
	metrics.TokenRefreshes.WithLabelValues("lost_race").Inc()
	winner, err := m.store.Get(ctx)
	if err != nil {
		return "", err
	}
	if winner == nil || winner.IsExpired(m.now()) {
		return "", &models.RefreshFailedError{Message: "token was rotated concurrently and is no longer valid"}
	}
	logger.Info("Using token rotated by a concurrent refresh")
	return winner.AccessToken, nil
}

// Store persists a freshly obtained pair unconditionally.
func (m *TokenManager) Store(ctx context.Context, token *UserToken) error {
	if m == nil || m.store == nil {
		return models.ErrStoreUnavailable
	}
	return m.store.Save(ctx, token.Record(m.now()))
}

// RotateIfCurrent stores token when presented is the refresh token currently
// on record. It reports whether the store was updated.
func (m *TokenManager) RotateIfCurrent(ctx context.Context, presented string, token *UserToken) (bool, error) {
	if m == nil || m.store == nil {
		return false, nil
	}
	current, err := m.store.Get(ctx)
	if err != nil || current == nil || current.RefreshToken != presented {
		return false, err
	}
	return m.store.CompareAndSwap(ctx, current.IssuedAtMillis, token.Record(m.now()))
}
