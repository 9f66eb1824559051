package repositories

import (
	"context"
	"errors"
	"fmt"

	"hubtask/models"
	"hubtask/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRepository persists the singleton OAuth token row.
type TokenRepository interface {
	// Get returns nil, nil when no token has been stored yet.
	Get(ctx context.Context) (*models.OAuthToken, error)
	// Save replaces the singleton row unconditionally.
	Save(ctx context.Context, token *models.OAuthToken) error
	// CompareAndSwap replaces the row only if its IssuedAtMillis still equals
	// expectedIssuedAt. It reports whether the write happened.
	CompareAndSwap(ctx context.Context, expectedIssuedAt int64, token *models.OAuthToken) (bool, error)
}

type tokenRepositoryImpl struct {
	db     *gorm.DB
	cipher *utils.TokenCipher
}

// NewTokenRepository creates a TokenRepository. cipher may be nil.
func NewTokenRepository(db *gorm.DB, cipher *utils.TokenCipher) TokenRepository {
	return &tokenRepositoryImpl{db: db, cipher: cipher}
}

func (r *tokenRepositoryImpl) Get(ctx context.Context) (*models.OAuthToken, error) {
	var token models.OAuthToken
	err := r.db.WithContext(ctx).Where("id = ?", models.DefaultTokenID).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if token.AccessToken, err = r.cipher.Decrypt(token.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if token.RefreshToken, err = r.cipher.Decrypt(token.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return &token, nil
}

func (r *tokenRepositoryImpl) Save(ctx context.Context, token *models.OAuthToken) error {
	row, err := r.sealed(token)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(row).Error
}

func (r *tokenRepositoryImpl) CompareAndSwap(ctx context.Context, expectedIssuedAt int64, token *models.OAuthToken) (bool, error) {
	row, err := r.sealed(token)
	if err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).Model(&models.OAuthToken{}).
		Where("id = ? AND issued_at_millis = ?", models.DefaultTokenID, expectedIssuedAt).
		Updates(map[string]interface{}{
			"access_token":        row.AccessToken,
			"refresh_token":       row.RefreshToken,
			"issued_at_millis":    row.IssuedAtMillis,
			"ttl_seconds":         row.TTLSeconds,
			"refresh_ttl_seconds": row.RefreshTTLSeconds,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *tokenRepositoryImpl) sealed(token *models.OAuthToken) (*models.OAuthToken, error) {
	row := *token
	row.ID = models.DefaultTokenID

	var err error
	if row.AccessToken, err = r.cipher.Encrypt(token.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if row.RefreshToken, err = r.cipher.Encrypt(token.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return &row, nil
}
