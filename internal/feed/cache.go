package feed

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const feedKeyPrefix = "feed:"

func feedKey(ownerID int64) string { return feedKeyPrefix + strconv.FormatInt(ownerID, 10) }

// Cache 每个用户一条 post id 列表，头部最新。它是可重建的派生投影，
// 只有扇出（追加）和删帖补偿（按值删除）会修改它。
type Cache interface {
	// AppendPost 把 postID 插到 owner 列表头部；默认不去重
	AppendPost(ctx context.Context, postID, ownerID int64) error
	// AppendPostToOwners 对每个 owner 执行 AppendPost，任一失败即返回错误
	AppendPostToOwners(ctx context.Context, postID int64, ownerIDs []int64) error
	// GetPage 返回 [page*limit, page*limit+limit) 区间的 id，越界返回空
	GetPage(ctx context.Context, ownerID int64, limit, page int) ([]int64, error)
	Size(ctx context.Context, ownerID int64) (int64, error)
	// RemovePost 扫描全部列表删除 postID，O(总条目数)，仅用于删帖补偿
	RemovePost(ctx context.Context, postID int64) (int64, error)
	// Replace 用 ids（头部最新）原子替换 owner 的列表
	Replace(ctx context.Context, ownerID int64, ids []int64) error
}

// CacheOptions 写入策略
type CacheOptions struct {
	// MaxEntries > 0 时每次追加后 LTRIM 到最近 N 条
	MaxEntries int
	// Dedupe 为 true 时追加前先 LREM，重投的事件把 id 移到头部而不是产生重复
	Dedupe bool
	// Batch 每个 pipeline 内处理的 owner 数
	Batch int
	// ScanCount RemovePost 的 SCAN COUNT 提示
	ScanCount int64
}

type redisCache struct {
	rdb  *redis.Client
	opts CacheOptions
}

func NewRedisCache(rdb *redis.Client, opts CacheOptions) Cache {
	if opts.Batch <= 0 {
		opts.Batch = 500
	}
	if opts.ScanCount <= 0 {
		opts.ScanCount = 500
	}
	return &redisCache{rdb: rdb, opts: opts}
}

func (c *redisCache) AppendPost(ctx context.Context, postID, ownerID int64) error {
	return c.AppendPostToOwners(ctx, postID, []int64{ownerID})
}

func (c *redisCache) AppendPostToOwners(ctx context.Context, postID int64, ownerIDs []int64) error {
	for start := 0; start < len(ownerIDs); start += c.opts.Batch {
		end := start + c.opts.Batch
		if end > len(ownerIDs) {
			end = len(ownerIDs)
		}
		if err := c.appendChunk(ctx, postID, ownerIDs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *redisCache) appendChunk(ctx context.Context, postID int64, owners []int64) error {
	fn := func(pipe redis.Pipeliner) error {
		for _, owner := range owners {
			key := feedKey(owner)
			if c.opts.Dedupe {
				pipe.LRem(ctx, key, 0, postID)
			}
			pipe.LPush(ctx, key, postID)
			if c.opts.MaxEntries > 0 {
				pipe.LTrim(ctx, key, 0, int64(c.opts.MaxEntries-1))
			}
		}
		return nil
	}
	var err error
	if c.opts.Dedupe || c.opts.MaxEntries > 0 {
		_, err = c.rdb.TxPipelined(ctx, fn)
	} else {
		_, err = c.rdb.Pipelined(ctx, fn)
	}
	if err != nil {
		return fmt.Errorf("append post %d: %w", postID, err)
	}
	return nil
}

func (c *redisCache) GetPage(ctx context.Context, ownerID int64, limit, page int) ([]int64, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if page < 0 {
		page = 0
	}
	start := int64(page) * int64(limit)
	vals, err := c.rdb.LRange(ctx, feedKey(ownerID), start, start+int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read feed %d: %w", ownerID, err)
	}
	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *redisCache) Size(ctx context.Context, ownerID int64) (int64, error) {
	n, err := c.rdb.LLen(ctx, feedKey(ownerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("feed size %d: %w", ownerID, err)
	}
	return n, nil
}

func (c *redisCache) RemovePost(ctx context.Context, postID int64) (int64, error) {
	var removed int64
	iter := c.rdb.Scan(ctx, 0, feedKeyPrefix+"*", c.opts.ScanCount).Iterator()
	keys := make([]string, 0, c.opts.ScanCount)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		cmds, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range keys {
				pipe.LRem(ctx, k, 0, postID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, cmd := range cmds {
			removed += cmd.(*redis.IntCmd).Val()
		}
		keys = keys[:0]
		return nil
	}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if int64(len(keys)) >= c.opts.ScanCount {
			if err := flush(); err != nil {
				return removed, fmt.Errorf("remove post %d: %w", postID, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan feeds: %w", err)
	}
	if err := flush(); err != nil {
		return removed, fmt.Errorf("remove post %d: %w", postID, err)
	}
	return removed, nil
}

func (c *redisCache) Replace(ctx context.Context, ownerID int64, ids []int64) error {
	key := feedKey(ownerID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(ids) > 0 {
			vals := make([]any, len(ids))
			for i, id := range ids {
				vals[i] = id
			}
			pipe.RPush(ctx, key, vals...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace feed %d: %w", ownerID, err)
	}
	return nil
}
