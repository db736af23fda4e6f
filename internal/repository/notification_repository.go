package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
)

// NotificationRepository 通知持久化；通知行是实时推送之外的唯一事实来源
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	CreateBatch(ctx context.Context, ns []*model.Notification) error
	GetByID(ctx context.Context, id int64) (*model.Notification, error)
	ListByRecipient(ctx context.Context, recipientID int64, offset, limit int) ([]*model.Notification, error)
	CountByRecipient(ctx context.Context, recipientID int64) (int64, error)
	CountUnread(ctx context.Context, recipientID int64) (int64, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context, recipientID int64) error
	Delete(ctx context.Context, id int64) error
	// DeleteByPost/DeleteByComment 返回被删除通知的接收者（去重）
	DeleteByPost(ctx context.Context, postID int64) ([]int64, error)
	DeleteByComment(ctx context.Context, commentID int64) ([]int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type notificationRepository struct {
	db        *gorm.DB
	batchSize int
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db, batchSize: 500}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) CreateBatch(ctx context.Context, ns []*model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(ns, r.batchSize).Error
}

func (r *notificationRepository) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	var n model.Notification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, notFound(err, "notification", id)
	}
	return &n, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID int64, offset, limit int) ([]*model.Notification, error) {
	var res []*model.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *notificationRepository) CountByRecipient(ctx context.Context, recipientID int64) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).Where("recipient_id = ?", recipientID).Count(&cnt).Error
	return cnt, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&cnt).Error
	return cnt, err
}

// MarkRead 只写 true，不存在回退为 false 的路径
func (r *notificationRepository) MarkRead(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", id).Update("is_read", true).Error
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID int64) error {
	return r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true).Error
}

func (r *notificationRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.Notification{}, id).Error
}

func (r *notificationRepository) DeleteByPost(ctx context.Context, postID int64) ([]int64, error) {
	return r.deleteRelated(ctx, "related_post_id", postID)
}

func (r *notificationRepository) DeleteByComment(ctx context.Context, commentID int64) ([]int64, error) {
	return r.deleteRelated(ctx, "related_comment_id", commentID)
}

func (r *notificationRepository) deleteRelated(ctx context.Context, column string, id int64) ([]int64, error) {
	var recipients []int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Notification{}).
			Where(column+" = ?", id).
			Distinct("recipient_id").
			Pluck("recipient_id", &recipients).Error; err != nil {
			return err
		}
		if len(recipients) == 0 {
			return nil
		}
		return tx.Where(column+" = ?", id).Delete(&model.Notification{}).Error
	})
	return recipients, err
}

func (r *notificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.Notification{})
	return res.RowsAffected, res.Error
}
