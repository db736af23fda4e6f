// Package notification 创建、查询与清理通知，并在写入提交后触发实时推送
package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/internal/graph"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

// DefaultRetention 超过该时长的通知由 Sweep 删除
const DefaultRetention = 30 * 24 * time.Hour

// Deliverer 实时推送出口；尽力而为，不返回错误
type Deliverer interface {
	DeliverNotification(ctx context.Context, n *model.Notification)
	DeliverUnreadCount(ctx context.Context, recipientID int64, count int64)
}

// Engine 七种通知的创建入口。自己对自己内容的动作不产生通知。
// 通知行是事实来源，推送失败不影响写入结果。
type Engine struct {
	repo      repository.NotificationRepository
	profiles  repository.ProfileRepository
	graph     graph.Reader
	deliverer Deliverer
	retention time.Duration
	now       func() time.Time
}

type Option func(*Engine)

func WithRetention(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retention = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(repo repository.NotificationRepository, profiles repository.ProfileRepository, g graph.Reader, deliverer Deliverer, opts ...Option) *Engine {
	e := &Engine{
		repo:      repo,
		profiles:  profiles,
		graph:     g,
		deliverer: deliverer,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CreateFollow actor 关注了 targetID
func (e *Engine) CreateFollow(ctx context.Context, actorID, targetID int64) (*model.Notification, error) {
	return e.create(ctx, actorID, targetID, model.NotificationFollow, nil, nil, msgFollow)
}

// CreateUnfollow actor 取消关注 targetID
func (e *Engine) CreateUnfollow(ctx context.Context, actorID, targetID int64) (*model.Notification, error) {
	return e.create(ctx, actorID, targetID, model.NotificationUnfollow, nil, nil, msgUnfollow)
}

func (e *Engine) CreateLike(ctx context.Context, actorID int64, post *model.Post) (*model.Notification, error) {
	return e.create(ctx, actorID, post.CreatorID, model.NotificationLike, &post.ID, nil, msgLike)
}

func (e *Engine) CreateComment(ctx context.Context, actorID int64, post *model.Post, comment *model.Comment) (*model.Notification, error) {
	return e.create(ctx, actorID, post.CreatorID, model.NotificationComment, &post.ID, &comment.ID,
		func(username string) string { return msgComment(username, comment.Content) })
}

func (e *Engine) CreateLikeComment(ctx context.Context, actorID int64, comment *model.Comment) (*model.Notification, error) {
	return e.create(ctx, actorID, comment.CreatorID, model.NotificationLikeComment, &comment.PostID, &comment.ID, msgLikeComment)
}

func (e *Engine) CreateMention(ctx context.Context, actorID, mentionedID int64, comment *model.Comment) (*model.Notification, error) {
	return e.create(ctx, actorID, mentionedID, model.NotificationMention, &comment.PostID, &comment.ID, msgMention)
}

// create 返回 (nil, nil) 表示被自通知抑制
func (e *Engine) create(ctx context.Context, actorID, recipientID int64, typ model.NotificationType,
	postID, commentID *int64, message func(username string) string) (*model.Notification, error) {
	if actorID == recipientID {
		return nil, nil
	}
	actor, err := e.profiles.GetByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("%s notification sender: %w", typ, err)
	}
	n := &model.Notification{
		RecipientID:      recipientID,
		SenderID:         model.Int64Ptr(actorID),
		Type:             typ,
		Message:          message(actor.Username),
		RelatedPostID:    copyID(postID),
		RelatedCommentID: copyID(commentID),
		CreatedAt:        e.now(),
	}
	if err := e.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("save %s notification: %w", typ, err)
	}
	e.deliver(ctx, n)
	return n, nil
}

// CreateNewPost 为作者的每个粉丝写一条 NEW_POST。无法映射到资料的粉丝被跳过，
// 不影响其余粉丝。返回写入条数。
func (e *Engine) CreateNewPost(ctx context.Context, post *model.Post) (int, error) {
	creator, err := e.profiles.GetByID(ctx, post.CreatorID)
	if err != nil {
		return 0, fmt.Errorf("new post creator: %w", err)
	}
	followerIDs, err := e.graph.FollowersOf(ctx, post.CreatorID)
	if err != nil {
		return 0, fmt.Errorf("new post followers: %w", err)
	}
	followers, err := e.profiles.GetByIDs(ctx, followerIDs)
	if err != nil {
		return 0, fmt.Errorf("new post follower profiles: %w", err)
	}
	if skipped := len(followerIDs) - len(followers); skipped > 0 {
		logger.Info("new post notification skipped unknown followers",
			zap.Int64("post_id", post.ID), zap.Int("skipped", skipped))
	}

	now := e.now()
	msg := msgNewPost(creator.Username)
	batch := make([]*model.Notification, 0, len(followers))
	for _, f := range followers {
		if f.ID == post.CreatorID {
			continue
		}
		batch = append(batch, &model.Notification{
			RecipientID:   f.ID,
			SenderID:      model.Int64Ptr(post.CreatorID),
			Type:          model.NotificationNewPost,
			Message:       msg,
			RelatedPostID: model.Int64Ptr(post.ID),
			CreatedAt:     now,
		})
	}
	if err := e.repo.CreateBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("save new post notifications: %w", err)
	}
	for _, n := range batch {
		e.deliver(ctx, n)
	}
	return len(batch), nil
}

// DeleteForPost 删帖补偿：删除所有关联该帖子的通知
func (e *Engine) DeleteForPost(ctx context.Context, postID int64) error {
	recipients, err := e.repo.DeleteByPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("delete notifications of post %d: %w", postID, err)
	}
	e.pushCounts(ctx, recipients)
	return nil
}

// DeleteForComment 删评论补偿
func (e *Engine) DeleteForComment(ctx context.Context, commentID int64) error {
	recipients, err := e.repo.DeleteByComment(ctx, commentID)
	if err != nil {
		return fmt.Errorf("delete notifications of comment %d: %w", commentID, err)
	}
	e.pushCounts(ctx, recipients)
	return nil
}

// Sweep 删除超过保留期的通知，调度由外部负责
func (e *Engine) Sweep(ctx context.Context) (int64, error) {
	cutoff := e.now().Add(-e.retention)
	n, err := e.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep notifications: %w", err)
	}
	logger.Info("notification sweep", zap.Time("cutoff", cutoff), zap.Int64("deleted", n))
	return n, nil
}

// deliver 只能在通知已提交后调用
func (e *Engine) deliver(ctx context.Context, n *model.Notification) {
	if e.deliverer == nil {
		return
	}
	e.deliverer.DeliverNotification(ctx, n)
	e.pushCount(ctx, n.RecipientID)
}

func (e *Engine) pushCounts(ctx context.Context, recipients []int64) {
	for _, id := range recipients {
		e.pushCount(ctx, id)
	}
}

// pushCount 推送提交后重新统计的未读数
func (e *Engine) pushCount(ctx context.Context, recipientID int64) {
	if e.deliverer == nil {
		return
	}
	cnt, err := e.repo.CountUnread(ctx, recipientID)
	if err != nil {
		logger.Warn("count unread for push", zap.Int64("recipient_id", recipientID), zap.Error(err))
		return
	}
	e.deliverer.DeliverUnreadCount(ctx, recipientID, cnt)
}

func copyID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	return model.Int64Ptr(*p)
}

// IsSuppressed 创建函数返回 (nil, nil) 时为 true
func IsSuppressed(n *model.Notification, err error) bool { return n == nil && err == nil }

var errNotOwner = fmt.Errorf("notification belongs to another user: %w", model.ErrForbidden)
