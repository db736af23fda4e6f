package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/internal/graph"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

var (
	ErrFollowSelf = fmt.Errorf("cannot follow self: %w", model.ErrInvalidArgument)
)

// RelationshipService 关系链服务
type RelationshipService interface {
	Follow(ctx context.Context, fromUserID, toUserID int64) error
	Unfollow(ctx context.Context, fromUserID, toUserID int64) error
	ListFollowing(ctx context.Context, userID int64, page, pageSize int) ([]int64, error)
	ListFans(ctx context.Context, userID int64, page, pageSize int) ([]int64, error)
}

type relationshipService struct {
	followRepo  repository.FollowRepository
	fanRepo     repository.FanRepository
	profileRepo repository.ProfileRepository
	replicator  *FanReplicator
	mirror      graph.Writer
	notifier    Notifier
}

// RelationOption 可选依赖
type RelationOption func(*relationshipService)

// WithReplicator fans 冗余改为异步写入
func WithReplicator(r *FanReplicator) RelationOption {
	return func(s *relationshipService) { s.replicator = r }
}

// WithGraphMirror 关注边同步写入图数据库。图库是扇出的读路径，写失败直接返回给调用方。
func WithGraphMirror(w graph.Writer) RelationOption {
	return func(s *relationshipService) { s.mirror = w }
}

func WithNotifier(n Notifier) RelationOption {
	return func(s *relationshipService) { s.notifier = n }
}

func NewRelationshipService(followRepo repository.FollowRepository, fanRepo repository.FanRepository, profileRepo repository.ProfileRepository, opts ...RelationOption) RelationshipService {
	s := &relationshipService{followRepo: followRepo, fanRepo: fanRepo, profileRepo: profileRepo}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Follow 幂等；只有真正新建关系时才通知被关注者。
// 图镜像先于关系库写入（MERGE 幂等），同步模式下关注边与 fans 冗余同事务提交；
// 任一步失败直接返回，重试时 created 仍为 true，通知不会丢。
func (s *relationshipService) Follow(ctx context.Context, fromUserID, toUserID int64) error {
	if fromUserID == toUserID {
		return ErrFollowSelf
	}
	if _, err := s.profileRepo.GetByID(ctx, toUserID); err != nil {
		return err
	}
	if s.mirror != nil {
		if err := s.mirror.Follow(ctx, fromUserID, toUserID); err != nil {
			return fmt.Errorf("graph mirror follow %d->%d: %w", fromUserID, toUserID, err)
		}
	}
	var (
		created bool
		err     error
	)
	if s.replicator != nil {
		if created, err = s.followRepo.Create(ctx, fromUserID, toUserID); err != nil {
			return err
		}
		s.replicator.EnqueueAdd(toUserID, fromUserID)
	} else if created, err = s.followRepo.CreateWithFan(ctx, fromUserID, toUserID); err != nil {
		return err
	}
	if created && s.notifier != nil {
		if _, err := s.notifier.CreateFollow(ctx, fromUserID, toUserID); err != nil {
			logger.Warn("follow notification failed", zap.Int64("from", fromUserID), zap.Int64("to", toUserID), zap.Error(err))
		}
	}
	return nil
}

// Unfollow 同 Follow：只有真正删除了关系才通知
func (s *relationshipService) Unfollow(ctx context.Context, fromUserID, toUserID int64) error {
	if s.mirror != nil {
		if err := s.mirror.Unfollow(ctx, fromUserID, toUserID); err != nil {
			return fmt.Errorf("graph mirror unfollow %d->%d: %w", fromUserID, toUserID, err)
		}
	}
	var (
		deleted bool
		err     error
	)
	if s.replicator != nil {
		if deleted, err = s.followRepo.Delete(ctx, fromUserID, toUserID); err != nil {
			return err
		}
		s.replicator.EnqueueRemove(toUserID, fromUserID)
	} else if deleted, err = s.followRepo.DeleteWithFan(ctx, fromUserID, toUserID); err != nil {
		return err
	}
	if deleted && s.notifier != nil {
		if _, err := s.notifier.CreateUnfollow(ctx, fromUserID, toUserID); err != nil {
			logger.Warn("unfollow notification failed", zap.Int64("from", fromUserID), zap.Int64("to", toUserID), zap.Error(err))
		}
	}
	return nil
}

// ListFollowing page 从 1 开始
func (s *relationshipService) ListFollowing(ctx context.Context, userID int64, page, pageSize int) ([]int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize
	items, err := s.followRepo.ListFollowings(ctx, userID, offset, pageSize)
	if err != nil {
		return nil, err
	}
	res := make([]int64, len(items))
	for i, it := range items {
		res[i] = it.FolloweeID
	}
	return res, nil
}

func (s *relationshipService) ListFans(ctx context.Context, userID int64, page, pageSize int) ([]int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize
	items, err := s.fanRepo.ListFans(ctx, userID, offset, pageSize)
	if err != nil {
		return nil, err
	}
	res := make([]int64, len(items))
	for i, it := range items {
		res[i] = it.FanID
	}
	return res, nil
}
