package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/internal/feed"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/queue"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

// PostService 发帖与删帖。帖子落库即成功；扇出事件、通知与缓存清理失败只记录日志。
type PostService struct {
	posts     repository.PostRepository
	publisher queue.Publisher
	notifier  Notifier
	cache     feed.Cache
	loader    feed.PostLoader
}

func NewPostService(posts repository.PostRepository, publisher queue.Publisher, notifier Notifier, cache feed.Cache, loader feed.PostLoader) *PostService {
	return &PostService{posts: posts, publisher: publisher, notifier: notifier, cache: cache, loader: loader}
}

func (s *PostService) Publish(ctx context.Context, creatorID int64, caption, imageURL string) (*model.Post, error) {
	caption = strings.TrimSpace(caption)
	if caption == "" && imageURL == "" {
		return nil, fmt.Errorf("empty post: %w", model.ErrInvalidArgument)
	}
	post := &model.Post{CreatorID: creatorID, Caption: caption, ImageURL: imageURL}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishPostCreated(ctx, post.ID); err != nil {
			logger.Error("publish post-created failed", zap.Int64("post_id", post.ID), zap.Error(err))
		}
	}
	if s.notifier != nil {
		if _, err := s.notifier.CreateNewPost(ctx, post); err != nil {
			logger.Warn("new post notifications failed", zap.Int64("post_id", post.ID), zap.Error(err))
		}
	}
	return post, nil
}

func (s *PostService) Get(ctx context.Context, id int64) (*model.Post, error) {
	return s.posts.GetByID(ctx, id)
}

// Delete 只有作者可以删除；删除提交后执行补偿：时间线、通知、帖子缓存
func (s *PostService) Delete(ctx context.Context, actorID, postID int64) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.CreatorID != actorID {
		return fmt.Errorf("delete post %d: %w", postID, model.ErrForbidden)
	}
	if err := s.posts.DeleteCascade(ctx, postID); err != nil {
		return err
	}

	if s.cache != nil {
		if n, err := s.cache.RemovePost(ctx, postID); err != nil {
			logger.Warn("remove post from feeds failed", zap.Int64("post_id", postID), zap.Error(err))
		} else {
			logger.Debug("post removed from feeds", zap.Int64("post_id", postID), zap.Int64("entries", n))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.DeleteForPost(ctx, postID); err != nil {
			logger.Warn("delete post notifications failed", zap.Int64("post_id", postID), zap.Error(err))
		}
	}
	if s.loader != nil {
		if err := s.loader.Invalidate(ctx, postID); err != nil {
			logger.Warn("invalidate post cache failed", zap.Int64("post_id", postID), zap.Error(err))
		}
	}
	return nil
}
