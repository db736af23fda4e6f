package realtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

const (
	ModeLocal = "local"
	ModeRedis = "redis"
)

// Relay 把通知交给实时通道。local 模式直接投递到本实例的连接；
// redis 模式发布到 <prefix><recipient>，由每个实例的通配订阅接收后
// 检查本地是否有该用户的连接，没有则丢弃。投递尽力而为，不重试。
type Relay struct {
	registry *Registry
	rdb      *redis.Client
	mode     string
	prefix   string

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRelay(registry *Registry, rdb *redis.Client, mode, prefix string) *Relay {
	if mode == "" {
		mode = ModeLocal
	}
	if prefix == "" {
		prefix = "notification:"
	}
	return &Relay{registry: registry, rdb: rdb, mode: mode, prefix: prefix}
}

func (r *Relay) channel(userID int64) string { return r.prefix + strconv.FormatInt(userID, 10) }

func (r *Relay) DeliverNotification(ctx context.Context, n *model.Notification) {
	payload, err := encode(TypeNotification, n)
	if err != nil {
		logger.Warn("encode notification", zap.Int64("id", n.ID), zap.Error(err))
		return
	}
	r.SendToUser(ctx, n.RecipientID, payload)
}

func (r *Relay) DeliverUnreadCount(ctx context.Context, recipientID, count int64) {
	payload, err := encode(TypeUnreadCount, UnreadCount{Count: count})
	if err != nil {
		return
	}
	r.SendToUser(ctx, recipientID, payload)
}

// SendToUser 发布失败时退回到本实例投递，错误只记录不返回
func (r *Relay) SendToUser(ctx context.Context, userID int64, payload []byte) {
	if r.mode == ModeRedis && r.rdb != nil {
		err := r.rdb.Publish(ctx, r.channel(userID), payload).Err()
		if err == nil {
			deliveries.WithLabelValues("relay", "published").Inc()
			return
		}
		deliveries.WithLabelValues("relay", "error").Inc()
		logger.Warn("publish notification failed, delivering locally",
			zap.Int64("user_id", userID), zap.Error(err))
	}
	r.deliverLocal("local", userID, payload)
}

func (r *Relay) deliverLocal(path string, userID int64, payload []byte) {
	if r.registry.SendToUser(userID, payload) > 0 {
		deliveries.WithLabelValues(path, "delivered").Inc()
		return
	}
	deliveries.WithLabelValues(path, "dropped").Inc()
}

// Start 同步建立通配订阅，随后在后台接收直到 ctx 取消。local 模式为空操作。
func (r *Relay) Start(ctx context.Context) error {
	if r.mode != ModeRedis {
		return nil
	}
	ps := r.rdb.PSubscribe(ctx, r.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("psubscribe %s*: %w", r.prefix, err)
	}
	done := make(chan struct{})
	r.mu.Lock()
	r.pubsub, r.done = ps, done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.onMessage(msg)
			}
		}
	}()
	return nil
}

// Run 阻塞直到 ctx 取消
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	r.Wait()
	return nil
}

// Wait 等待订阅循环退出
func (r *Relay) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *Relay) onMessage(msg *redis.Message) {
	id, err := strconv.ParseInt(strings.TrimPrefix(msg.Channel, r.prefix), 10, 64)
	if err != nil {
		logger.Debug("ignore relay message", zap.String("channel", msg.Channel))
		return
	}
	r.deliverLocal("relay", id, []byte(msg.Payload))
}
