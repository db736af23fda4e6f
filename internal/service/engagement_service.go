package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/notification"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

// EngagementService 点赞与评论；只有新建的点赞会触发通知
type EngagementService struct {
	posts    repository.PostRepository
	comments repository.CommentRepository
	likes    repository.LikeRepository
	profiles repository.ProfileRepository
	notifier Notifier
}

func NewEngagementService(posts repository.PostRepository, comments repository.CommentRepository, likes repository.LikeRepository,
	profiles repository.ProfileRepository, notifier Notifier) *EngagementService {
	return &EngagementService{posts: posts, comments: comments, likes: likes, profiles: profiles, notifier: notifier}
}

func (s *EngagementService) LikePost(ctx context.Context, actorID, postID int64) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	created, err := s.likes.LikePost(ctx, postID, actorID)
	if err != nil {
		return err
	}
	if created {
		if _, err := s.notifier.CreateLike(ctx, actorID, post); err != nil {
			logger.Warn("like notification failed", zap.Int64("post_id", postID), zap.Error(err))
		}
	}
	return nil
}

func (s *EngagementService) UnlikePost(ctx context.Context, actorID, postID int64) error {
	return s.likes.UnlikePost(ctx, postID, actorID)
}

// Comment 评论并通知帖子作者，以及评论中 @ 到的用户
func (s *EngagementService) Comment(ctx context.Context, actorID, postID int64, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty comment: %w", model.ErrInvalidArgument)
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	c := &model.Comment{PostID: postID, CreatorID: actorID, Content: content}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}

	if _, err := s.notifier.CreateComment(ctx, actorID, post, c); err != nil {
		logger.Warn("comment notification failed", zap.Int64("comment_id", c.ID), zap.Error(err))
	}
	s.notifyMentions(ctx, actorID, c)
	return c, nil
}

func (s *EngagementService) notifyMentions(ctx context.Context, actorID int64, c *model.Comment) {
	names := notification.ParseMentions(c.Content)
	if len(names) == 0 {
		return
	}
	mentioned, err := s.profiles.GetByUsernames(ctx, names)
	if err != nil {
		logger.Warn("resolve mentions failed", zap.Int64("comment_id", c.ID), zap.Error(err))
		return
	}
	for _, p := range mentioned {
		if _, err := s.notifier.CreateMention(ctx, actorID, p.ID, c); err != nil {
			logger.Warn("mention notification failed", zap.Int64("comment_id", c.ID), zap.Int64("mentioned", p.ID), zap.Error(err))
		}
	}
}

func (s *EngagementService) LikeComment(ctx context.Context, actorID, commentID int64) error {
	c, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	created, err := s.likes.LikeComment(ctx, commentID, actorID)
	if err != nil {
		return err
	}
	if created {
		if _, err := s.notifier.CreateLikeComment(ctx, actorID, c); err != nil {
			logger.Warn("like comment notification failed", zap.Int64("comment_id", commentID), zap.Error(err))
		}
	}
	return nil
}

// DeleteComment 评论作者或帖子作者可以删除
func (s *EngagementService) DeleteComment(ctx context.Context, actorID, commentID int64) error {
	c, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if c.CreatorID != actorID {
		post, err := s.posts.GetByID(ctx, c.PostID)
		if err != nil {
			return err
		}
		if post.CreatorID != actorID {
			return fmt.Errorf("delete comment %d: %w", commentID, model.ErrForbidden)
		}
	}
	if err := s.comments.Delete(ctx, commentID); err != nil {
		return err
	}
	if err := s.notifier.DeleteForComment(ctx, commentID); err != nil {
		logger.Warn("delete comment notifications failed", zap.Int64("comment_id", commentID), zap.Error(err))
	}
	return nil
}
