package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
)

// PostRepository 帖子存储，时间线的数据源
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id int64) (*model.Post, error)
	// GetByIDs 批量查询，返回顺序不保证，不存在的 id 被忽略
	GetByIDs(ctx context.Context, ids []int64) ([]*model.Post, error)
	ListByCreator(ctx context.Context, creatorID int64) ([]*model.Post, error)
	ListByCreators(ctx context.Context, creatorIDs []int64, limit, offset int) ([]*model.Post, error)
	CountByCreator(ctx context.Context, creatorID int64) (int64, error)
	CountByCreators(ctx context.Context, creatorIDs []int64) (int64, error)
	// DeleteCascade 在一个事务内删除帖子及其评论、点赞
	DeleteCascade(ctx context.Context, id int64) error
}

type postRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err, "post", id)
	}
	return &p, nil
}

func (r *postRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.Post, error) {
	if len(ids) == 0 {
		return []*model.Post{}, nil
	}
	var res []*model.Post
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *postRepository) ListByCreator(ctx context.Context, creatorID int64) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC, id DESC").
		Find(&res).Error
	return res, err
}

func (r *postRepository) ListByCreators(ctx context.Context, creatorIDs []int64, limit, offset int) ([]*model.Post, error) {
	if len(creatorIDs) == 0 {
		return []*model.Post{}, nil
	}
	var res []*model.Post
	err := r.db.WithContext(ctx).
		Where("creator_id IN ?", creatorIDs).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *postRepository) CountByCreator(ctx context.Context, creatorID int64) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Post{}).Where("creator_id = ?", creatorID).Count(&cnt).Error
	return cnt, err
}

func (r *postRepository) CountByCreators(ctx context.Context, creatorIDs []int64) (int64, error) {
	if len(creatorIDs) == 0 {
		return 0, nil
	}
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Post{}).Where("creator_id IN ?", creatorIDs).Count(&cnt).Error
	return cnt, err
}

func (r *postRepository) DeleteCascade(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(gorm.ErrRecordNotFound, "post", id)
		}
		commentIDs := tx.Model(&model.Comment{}).Select("id").Where("post_id = ?", id)
		if err := tx.Where("comment_id IN (?)", commentIDs).Delete(&model.CommentLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		return tx.Where("post_id = ?", id).Delete(&model.PostLike{}).Error
	})
}
