package notification

import (
	"context"
	"fmt"

	"github.com/d60-Lab/social-feed/internal/model"
)

// ListResult 通知分页结果，page 从 0 开始
type ListResult struct {
	Items   []*model.Notification `json:"items"`
	Total   int64                 `json:"total"`
	Page    int                   `json:"page"`
	Limit   int                   `json:"limit"`
	HasMore bool                  `json:"has_more"`
}

// List 实时推送之外的补偿通道：按时间倒序分页读取
func (e *Engine) List(ctx context.Context, recipientID int64, page, limit int) (*ListResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %w", model.ErrInvalidArgument)
	}
	if page < 0 {
		page = 0
	}
	total, err := e.repo.CountByRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	offset := page * limit
	items, err := e.repo.ListByRecipient(ctx, recipientID, offset, limit)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Items:   items,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: int64(offset+len(items)) < total,
	}, nil
}

func (e *Engine) UnreadCount(ctx context.Context, recipientID int64) (int64, error) {
	return e.repo.CountUnread(ctx, recipientID)
}

// MarkRead 只能标记自己的通知；已读的再次标记不产生推送
func (e *Engine) MarkRead(ctx context.Context, recipientID, id int64) error {
	n, err := e.owned(ctx, recipientID, id)
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	if err := e.repo.MarkRead(ctx, id); err != nil {
		return err
	}
	e.pushCount(ctx, recipientID)
	return nil
}

func (e *Engine) MarkAllRead(ctx context.Context, recipientID int64) error {
	if err := e.repo.MarkAllRead(ctx, recipientID); err != nil {
		return err
	}
	e.pushCount(ctx, recipientID)
	return nil
}

// Delete 删除自己的一条通知；只有删除未读通知时才推送新的未读数
func (e *Engine) Delete(ctx context.Context, recipientID, id int64) error {
	n, err := e.owned(ctx, recipientID, id)
	if err != nil {
		return err
	}
	if err := e.repo.Delete(ctx, id); err != nil {
		return err
	}
	if !n.IsRead {
		e.pushCount(ctx, recipientID)
	}
	return nil
}

func (e *Engine) owned(ctx context.Context, recipientID, id int64) (*model.Notification, error) {
	n, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != recipientID {
		return nil, errNotOwner
	}
	return n, nil
}
