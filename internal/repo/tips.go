package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tipline/tipline/internal/models"
)

func (r *GormRepo) CreateTip(ctx context.Context, tip *models.Tip) error {
	return r.DB.WithContext(ctx).Create(tip).Error
}

func (r *GormRepo) GetTip(ctx context.Context, id uuid.UUID) (*models.Tip, error) {
	var tip models.Tip
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&tip).Error; err != nil {
		return nil, err
	}
	return &tip, nil
}

func (r *GormRepo) ListTips(ctx context.Context, offset, limit int) (int64, []models.Tip, error) {
	var total int64
	q := r.DB.WithContext(ctx).Model(&models.Tip{}).Where("status = ?", models.TipPublished)
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Tip
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) IncrementTipViews(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Model(&models.Tip{}).
		Where("id = ?", id).
		Update("views", gorm.Expr("views + 1")).Error
}

// HideTip soft-hides a tip; moderation never hard-deletes.
func (r *GormRepo) HideTip(ctx context.Context, id uuid.UUID) error {
	res := r.DB.WithContext(ctx).Model(&models.Tip{}).
		Where("id = ?", id).
		Update("status", models.TipHidden)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) CreateComment(ctx context.Context, c *models.Comment) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *GormRepo) ListComments(ctx context.Context, tipID uuid.UUID) ([]models.Comment, error) {
	var items []models.Comment
	err := r.DB.WithContext(ctx).
		Where("tip_id = ?", tipID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
