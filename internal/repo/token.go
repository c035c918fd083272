package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tipline/tipline/internal/models"
)

// DeviceInfo is advisory metadata recorded with each session. It is never
// part of any security decision.
type DeviceInfo struct {
	UserAgent string
	IP        string
}

func (r *GormRepo) SaveRefreshToken(ctx context.Context, tokenHash string, userID uuid.UUID, expiresAt time.Time, device DeviceInfo) (*models.RefreshToken, error) {
	rec := models.RefreshToken{
		TokenHash: tokenHash,
		UserID:    userID,
		UserAgent: device.UserAgent,
		IP:        device.IP,
		ExpiresAt: expiresAt,
	}
	if err := r.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *GormRepo) FindRefreshByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var rec models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ConsumeRefreshToken flips the token to revoked/used in one conditional
// UPDATE. Exactly one caller can win this, even across server processes: the
// WHERE clause only matches while revoked is still false, and losers see
// zero rows affected.
func (r *GormRepo) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	return consumeRefreshToken(r.DB.WithContext(ctx), tokenHash, now)
}

func consumeRefreshToken(db *gorm.DB, tokenHash string, now time.Time) (bool, error) {
	res := db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked = ?", tokenHash, false).
		Updates(map[string]any{"revoked": true, "used_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RevokeRefreshToken is idempotent: revoking an already-revoked token
// affects zero rows and is not an error.
func (r *GormRepo) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	now := time.Now()
	res := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked = ?", tokenHash, false).
		Updates(map[string]any{"revoked": true, "used_at": now})
	return res.Error
}

// RevokeAllForUser kills every active session of one identity. Used for
// "log out everywhere" and as the blast-radius response to refresh reuse.
func (r *GormRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return revokeAllForUser(r.DB.WithContext(ctx), userID)
}

func revokeAllForUser(db *gorm.DB, userID uuid.UUID) (int64, error) {
	res := db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	return res.RowsAffected, res.Error
}

func (r *GormRepo) ListSessionsForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	var recs []models.RefreshToken
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, now).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// PurgeExpired deletes rows whose expiry has passed. Safe to run concurrently
// with reads: lookups treat expired rows as dead either way.
func (r *GormRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

// RotateRefreshToken runs the consume-then-create step of rotation in one
// transaction. Returns ok=false without creating anything when the old token
// was already consumed by a concurrent request.
func (r *GormRepo) RotateRefreshToken(ctx context.Context, oldHash, newHash string, userID uuid.UUID, expiresAt time.Time, device DeviceInfo, now time.Time) (*models.RefreshToken, bool, error) {
	var rec *models.RefreshToken
	won := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := consumeRefreshToken(tx, oldHash, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		won = true

		created := models.RefreshToken{
			TokenHash: newHash,
			UserID:    userID,
			UserAgent: device.UserAgent,
			IP:        device.IP,
			ExpiresAt: expiresAt,
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		rec = &created
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rec, won, nil
}
