package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/social-feed/internal/model"
)

type FanRepository interface {
	Create(ctx context.Context, userID, fanID int64) error
	Delete(ctx context.Context, userID, fanID int64) error
	ListFans(ctx context.Context, userID int64, offset, limit int) ([]*model.Fan, error)
	// FanIDs 返回 userID 的全部粉丝，扇出使用
	FanIDs(ctx context.Context, userID int64) ([]int64, error)
}

type fanRepository struct{ db *gorm.DB }

func NewFanRepository(db *gorm.DB) FanRepository { return &fanRepository{db: db} }

func (r *fanRepository) Create(ctx context.Context, userID, fanID int64) error {
	f := &model.Fan{UserID: userID, FanID: fanID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f).Error
}

func (r *fanRepository) Delete(ctx context.Context, userID, fanID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND fan_id = ?", userID, fanID).Delete(&model.Fan{}).Error
}

func (r *fanRepository) ListFans(ctx context.Context, userID int64, offset, limit int) ([]*model.Fan, error) {
	var res []*model.Fan
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Offset(offset).Limit(limit).Find(&res).Error
	return res, err
}

func (r *fanRepository) FanIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.Fan{}).Where("user_id = ?", userID).Pluck("fan_id", &ids).Error
	return ids, err
}
