// Package graph 读取关注关系。默认走关系库，可切换到 Neo4j。
package graph

import (
	"context"
	"fmt"

	"github.com/d60-Lab/social-feed/internal/repository"
)

// Reader 社交图只读视图
type Reader interface {
	// FollowersOf 返回关注 userID 的全部用户
	FollowersOf(ctx context.Context, userID int64) ([]int64, error)
	// FollowingOf 返回 userID 关注的全部用户
	FollowingOf(ctx context.Context, userID int64) ([]int64, error)
}

// Writer 关注边的镜像写入；SQL 后端由关系服务直接落库，无需镜像
type Writer interface {
	Follow(ctx context.Context, followerID, followeeID int64) error
	Unfollow(ctx context.Context, followerID, followeeID int64) error
}

// SQLReader 关注列表读 follows，粉丝列表读 fans 冗余表
type SQLReader struct {
	follows repository.FollowRepository
	fans    repository.FanRepository
}

func NewSQLReader(follows repository.FollowRepository, fans repository.FanRepository) *SQLReader {
	return &SQLReader{follows: follows, fans: fans}
}

func (r *SQLReader) FollowersOf(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := r.fans.FanIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("followers of %d: %w", userID, err)
	}
	return ids, nil
}

func (r *SQLReader) FollowingOf(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := r.follows.FolloweeIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("following of %d: %w", userID, err)
	}
	return ids, nil
}
