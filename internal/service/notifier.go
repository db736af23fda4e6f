package service

import (
	"context"

	"github.com/d60-Lab/social-feed/internal/model"
)

// Notifier 写路径触发的通知；由 notification.Engine 实现
type Notifier interface {
	CreateFollow(ctx context.Context, actorID, targetID int64) (*model.Notification, error)
	CreateUnfollow(ctx context.Context, actorID, targetID int64) (*model.Notification, error)
	CreateLike(ctx context.Context, actorID int64, post *model.Post) (*model.Notification, error)
	CreateComment(ctx context.Context, actorID int64, post *model.Post, comment *model.Comment) (*model.Notification, error)
	CreateLikeComment(ctx context.Context, actorID int64, comment *model.Comment) (*model.Notification, error)
	CreateMention(ctx context.Context, actorID, mentionedID int64, comment *model.Comment) (*model.Notification, error)
	CreateNewPost(ctx context.Context, post *model.Post) (int, error)
	DeleteForPost(ctx context.Context, postID int64) error
	DeleteForComment(ctx context.Context, commentID int64) error
}
