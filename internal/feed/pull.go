package feed

import (
	"context"
	"fmt"

	"github.com/d60-Lab/social-feed/internal/graph"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
)

// PullEngine 读扩散：每次请求查询关注者与自己的帖子
type PullEngine struct {
	graph graph.Reader
	posts repository.PostRepository
}

func NewPullEngine(g graph.Reader, posts repository.PostRepository) *PullEngine {
	return &PullEngine{graph: g, posts: posts}
}

func (e *PullEngine) GetFeed(ctx context.Context, userID int64, limit, page int) (*Page, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if page < 0 {
		page = 0
	}
	following, err := e.graph.FollowingOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	creators := make([]int64, 0, len(following)+1)
	for _, id := range following {
		if id != userID {
			creators = append(creators, id)
		}
	}
	offset := page * limit

	if len(creators) == 0 {
		return e.ownPosts(ctx, userID, limit, offset)
	}

	creators = append(creators, userID)
	total, err := e.posts.CountByCreators(ctx, creators)
	if err != nil {
		return nil, fmt.Errorf("count feed posts: %w", err)
	}
	posts, err := e.posts.ListByCreators(ctx, creators, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list feed posts: %w", err)
	}
	return &Page{Posts: posts, TotalPages: totalPages(total, limit)}, nil
}

// ownPosts 没有关注任何人时只返回自己的帖子
func (e *PullEngine) ownPosts(ctx context.Context, userID int64, limit, offset int) (*Page, error) {
	all, err := e.posts.ListByCreator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list own posts: %w", err)
	}
	start := offset
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := make([]*model.Post, end-start)
	copy(page, all[start:end])
	return &Page{Posts: page, TotalPages: totalPages(int64(len(all)), limit)}, nil
}
