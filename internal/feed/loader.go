package feed

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

const postKeyPrefix = "post:"

func postKey(id int64) string { return postKeyPrefix + strconv.FormatInt(id, 10) }

// PostLoader 按 id 列表批量回表，结果顺序与入参一致，已删除的帖子被跳过
type PostLoader interface {
	Load(ctx context.Context, ids []int64) ([]*model.Post, error)
	Invalidate(ctx context.Context, id int64) error
}

// cachedPostLoader MGET 读缓存，缺失部分一次 IN 查询补齐并回填
type cachedPostLoader struct {
	posts repository.PostRepository
	rdb   *redis.Client
	ttl   time.Duration
}

// NewPostLoader ttl<=0 或 rdb 为 nil 时直接查库
func NewPostLoader(posts repository.PostRepository, rdb *redis.Client, ttl time.Duration) PostLoader {
	return &cachedPostLoader{posts: posts, rdb: rdb, ttl: ttl}
}

func (l *cachedPostLoader) enabled() bool { return l.rdb != nil && l.ttl > 0 }

func (l *cachedPostLoader) Load(ctx context.Context, ids []int64) ([]*model.Post, error) {
	if len(ids) == 0 {
		return []*model.Post{}, nil
	}

	found := make(map[int64]*model.Post, len(ids))
	if l.enabled() {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = postKey(id)
		}
		vals, err := l.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			logger.Warn("post cache mget failed", zap.Error(err))
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			var p model.Post
			if err := json.Unmarshal([]byte(s), &p); err == nil {
				found[ids[i]] = &p
			}
		}
	}

	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		rows, err := l.posts.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range rows {
			found[p.ID] = p
		}
		l.fill(ctx, rows)
	}

	out := make([]*model.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *cachedPostLoader) fill(ctx context.Context, rows []*model.Post) {
	if !l.enabled() || len(rows) == 0 {
		return
	}
	_, err := l.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range rows {
			payload, err := json.Marshal(p)
			if err != nil {
				continue
			}
			pipe.Set(ctx, postKey(p.ID), payload, l.ttl)
		}
		return nil
	})
	if err != nil {
		logger.Warn("post cache fill failed", zap.Error(err))
	}
}

func (l *cachedPostLoader) Invalidate(ctx context.Context, id int64) error {
	if l.rdb == nil {
		return nil
	}
	return l.rdb.Del(ctx, postKey(id)).Err()
}
