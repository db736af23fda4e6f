// Package queue 基于 Redis Streams 的 post-created 事件队列，至少一次投递
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/config"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

const fieldPostID = "post_id"

// Delivery 一条待处理的 post-created 事件
type Delivery struct {
	ID          string
	PostID      int64
	PublishedAt time.Time
}

// Publisher 写路径只需要发布能力
type Publisher interface {
	PublishPostCreated(ctx context.Context, postID int64) error
}

// StreamQueue XADD 发布，消费组读取，XACK 确认
type StreamQueue struct {
	rdb     *redis.Client
	stream  string
	group   string
	batch   int64
	block   time.Duration
	minIdle time.Duration
}

func NewStreamQueue(rdb *redis.Client, cfg config.QueueConfig) *StreamQueue {
	batch := cfg.Batch
	if batch <= 0 {
		batch = 32
	}
	return &StreamQueue{
		rdb:     rdb,
		stream:  cfg.Stream,
		group:   cfg.Group,
		batch:   batch,
		block:   cfg.Block,
		minIdle: cfg.MinIdle,
	}
}

func (q *StreamQueue) PublishPostCreated(ctx context.Context, postID int64) error {
	err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{fieldPostID: postID},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish post %d: %w", postID, err)
	}
	return nil
}

// EnsureGroup 创建消费组（连同 stream），已存在时忽略
func (q *StreamQueue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s: %w", q.group, err)
	}
	return nil
}

// Fetch 先认领超时未确认的事件，再读新事件；无事件时返回空切片
func (q *StreamQueue) Fetch(ctx context.Context, consumer string) ([]Delivery, error) {
	if q.minIdle > 0 {
		msgs, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: consumer,
			MinIdle:  q.minIdle,
			Start:    "0-0",
			Count:    q.batch,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("xautoclaim: %w", err)
		}
		if len(msgs) > 0 {
			return q.decode(ctx, msgs), nil
		}
	}

	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    q.batch,
		Block:    q.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	var out []Delivery
	for _, s := range streams {
		out = append(out, q.decode(ctx, s.Messages)...)
	}
	return out, nil
}

func (q *StreamQueue) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return q.rdb.XAck(ctx, q.stream, q.group, ids...).Err()
}

// decode 解析消息；无法解析的消息直接确认，避免反复重投
func (q *StreamQueue) decode(ctx context.Context, msgs []redis.XMessage) []Delivery {
	out := make([]Delivery, 0, len(msgs))
	for _, m := range msgs {
		postID, err := parsePostID(m.Values[fieldPostID])
		if err != nil {
			logger.Warn("drop malformed event", zap.String("id", m.ID), zap.Error(err))
			if ackErr := q.Ack(ctx, m.ID); ackErr != nil {
				logger.Warn("ack malformed event", zap.String("id", m.ID), zap.Error(ackErr))
			}
			continue
		}
		out = append(out, Delivery{ID: m.ID, PostID: postID, PublishedAt: idTime(m.ID)})
	}
	return out
}

func parsePostID(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("post_id missing")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("post_id %q invalid", s)
	}
	return id, nil
}

// idTime 从 "<ms>-<seq>" 形式的 stream id 取出发布时间
func idTime(id string) time.Time {
	ms, _, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}
	}
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
