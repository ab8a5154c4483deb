package repository

import (
	"context"
	"errors"
	"time"

	"github.com/collabtask/authcore/internal/domain"
	"github.com/collabtask/authcore/internal/observability"

	"gorm.io/gorm"
)

var ErrTokenNotFound = errors.New("token not found")

type TokenRepository interface {
	Create(t *domain.Token) error
	FindByAccessToken(accessToken string) (*domain.Token, error)
	FindLatestByRefreshToken(refreshToken string) (*domain.Token, error)
	ListActiveBySession(refreshToken string, userID uint) ([]domain.Token, error)
	Revoke(accessToken string, userID uint) (bool, error)
	RevokeAllBySession(refreshToken string, userID uint) (int64, error)
	DeleteExpiredBefore(horizon time.Time) (int64, error)
}

type GormTokenRepository struct{ db *gorm.DB }

func NewTokenRepository(db *gorm.DB) TokenRepository { return &GormTokenRepository{db: db} }

func (r *GormTokenRepository) Create(t *domain.Token) error {
	err := r.db.Create(t).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "token", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "create", "success")
	return nil
}

func (r *GormTokenRepository) FindByAccessToken(accessToken string) (*domain.Token, error) {
	var t domain.Token
	err := r.db.Where("access_token = ?", accessToken).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "token", "find_by_access_token", "not_found")
			return nil, ErrTokenNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "token", "find_by_access_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "find_by_access_token", "success")
	return &t, nil
}

// FindLatestByRefreshToken returns the most recent row of a session. Every
// row of a refresh chain shares the refresh token, so the newest row carries
// the current access token.
func (r *GormTokenRepository) FindLatestByRefreshToken(refreshToken string) (*domain.Token, error) {
	var t domain.Token
	err := r.db.Where("refresh_token = ?", refreshToken).
		Order("id DESC").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "token", "find_latest_by_refresh_token", "not_found")
			return nil, ErrTokenNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "token", "find_latest_by_refresh_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "find_latest_by_refresh_token", "success")
	return &t, nil
}

func (r *GormTokenRepository) ListActiveBySession(refreshToken string, userID uint) ([]domain.Token, error) {
	var tokens []domain.Token
	err := r.db.Where("refresh_token = ? AND user_id = ? AND is_revoked = ?", refreshToken, userID, false).
		Find(&tokens).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "token", "list_active_by_session", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "list_active_by_session", "success")
	return tokens, nil
}

func (r *GormTokenRepository) Revoke(accessToken string, userID uint) (bool, error) {
	res := r.db.Model(&domain.Token{}).
		Where("access_token = ? AND user_id = ? AND is_revoked = ?", accessToken, userID, false).
		Update("is_revoked", true)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "token", "revoke", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "revoke", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormTokenRepository) RevokeAllBySession(refreshToken string, userID uint) (int64, error) {
	res := r.db.Model(&domain.Token{}).
		Where("refresh_token = ? AND user_id = ? AND is_revoked = ?", refreshToken, userID, false).
		Update("is_revoked", true)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "token", "revoke_all_by_session", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "revoke_all_by_session", "success")
	return res.RowsAffected, nil
}

// DeleteExpiredBefore removes rows whose whole session ended before horizon.
// Rows are kept past access expiry so revocation checks stay answerable
// until the session itself is long dead.
func (r *GormTokenRepository) DeleteExpiredBefore(horizon time.Time) (int64, error) {
	res := r.db.Where("refresh_expires_at < ?", horizon).Delete(&domain.Token{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "token", "delete_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "delete_expired", "success")
	return res.RowsAffected, nil
}
