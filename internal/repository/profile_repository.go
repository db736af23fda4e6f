package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
)

type ProfileRepository interface {
	Create(ctx context.Context, p *model.Profile) error
	GetByID(ctx context.Context, id int64) (*model.Profile, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*model.Profile, error)
	GetByUsernames(ctx context.Context, usernames []string) ([]*model.Profile, error)
}

type profileRepository struct{ db *gorm.DB }

func NewProfileRepository(db *gorm.DB) ProfileRepository { return &profileRepository{db: db} }

func (r *profileRepository) Create(ctx context.Context, p *model.Profile) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *profileRepository) GetByID(ctx context.Context, id int64) (*model.Profile, error) {
	var p model.Profile
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err, "profile", id)
	}
	return &p, nil
}

func (r *profileRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.Profile, error) {
	if len(ids) == 0 {
		return []*model.Profile{}, nil
	}
	var res []*model.Profile
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *profileRepository) GetByUsernames(ctx context.Context, usernames []string) ([]*model.Profile, error) {
	if len(usernames) == 0 {
		return []*model.Profile{}, nil
	}
	var res []*model.Profile
	err := r.db.WithContext(ctx).Where("username IN ?", usernames).Find(&res).Error
	return res, err
}
