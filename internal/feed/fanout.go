package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/internal/graph"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/queue"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

// EventSource 扇出事件来源（Redis Streams 消费组）
type EventSource interface {
	EnsureGroup(ctx context.Context) error
	Fetch(ctx context.Context, consumer string) ([]queue.Delivery, error)
	Ack(ctx context.Context, ids ...string) error
}

// FanoutOptions worker 运行参数
type FanoutOptions struct {
	Consumer     string
	Workers      int
	IdleWait     time.Duration // 没取到事件时的等待
	RebuildLimit int
}

// FanoutWorker 消费 post-created 事件，把帖子 id 写入每个粉丝的时间线列表。
// 一个事件要么全部写完再确认，要么留在 pending 中等待重投，不做部分进度记录。
type FanoutWorker struct {
	posts     repository.PostRepository
	graph     graph.Reader
	cache     Cache
	source    EventSource
	opts      FanoutOptions
	metricsCh chan time.Duration // publish->landing latency
}

func NewFanoutWorker(posts repository.PostRepository, g graph.Reader, cache Cache, source EventSource, opts FanoutOptions) *FanoutWorker {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Consumer == "" {
		opts.Consumer = "fanout"
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = 50 * time.Millisecond
	}
	if opts.RebuildLimit <= 0 {
		opts.RebuildLimit = 1000
	}
	return &FanoutWorker{
		posts:     posts,
		graph:     g,
		cache:     cache,
		source:    source,
		opts:      opts,
		metricsCh: make(chan time.Duration, 65536),
	}
}

func (w *FanoutWorker) Metrics() <-chan time.Duration { return w.metricsCh }

// Handle 处理一个 post-created 事件。帖子已被删除时直接返回 nil。
func (w *FanoutWorker) Handle(ctx context.Context, postID int64) error {
	ctx, span := tracer.Start(ctx, "feed.Fanout")
	defer span.End()
	span.SetAttributes(attribute.Int64("post.id", postID))

	post, err := w.posts.GetByID(ctx, postID)
	if errors.Is(err, model.ErrNotFound) {
		logger.Info("fanout skipped, post gone", zap.Int64("post_id", postID))
		fanoutEvents.WithLabelValues("missing").Inc()
		return nil
	}
	if err != nil {
		return w.fail(span, fmt.Errorf("fetch post %d: %w", postID, err))
	}

	followers, err := w.graph.FollowersOf(ctx, post.CreatorID)
	if err != nil {
		return w.fail(span, fmt.Errorf("fetch followers of %d: %w", post.CreatorID, err))
	}
	span.SetAttributes(attribute.Int("fanout.followers", len(followers)))

	if err := w.cache.AppendPostToOwners(ctx, postID, followers); err != nil {
		return w.fail(span, err)
	}
	fanoutAppends.Add(float64(len(followers)))
	fanoutEvents.WithLabelValues("ok").Inc()
	return nil
}

func (w *FanoutWorker) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	fanoutEvents.WithLabelValues("error").Inc()
	return err
}

// Start 启动 Workers 个消费循环，返回停止函数；停止函数等待循环退出或 ctx 到期
func (w *FanoutWorker) Start() func(context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		wg.Add(1)
		consumer := fmt.Sprintf("%s-%d", w.opts.Consumer, i)
		go func() {
			defer wg.Done()
			w.loop(runCtx, consumer)
		}()
	}
	return func(ctx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run 阻塞运行直到 ctx 取消
func (w *FanoutWorker) Run(ctx context.Context) error {
	if err := w.source.EnsureGroup(ctx); err != nil {
		return err
	}
	stop := w.Start()
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return stop(stopCtx)
}

func (w *FanoutWorker) loop(ctx context.Context, consumer string) {
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := w.ProcessOnce(ctx, consumer)
		if err != nil && ctx.Err() == nil {
			logger.Warn("fanout fetch failed", zap.String("consumer", consumer), zap.Error(err))
		}
		if n == 0 || err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.opts.IdleWait):
			}
		}
	}
}

// ProcessOnce 拉取一批事件并逐个处理，返回本批事件数
func (w *FanoutWorker) ProcessOnce(ctx context.Context, consumer string) (int, error) {
	batch, err := w.source.Fetch(ctx, consumer)
	if err != nil {
		return 0, err
	}
	for _, d := range batch {
		if err := w.Handle(ctx, d.PostID); err != nil {
			// 不确认，留给 XAUTOCLAIM 重投
			logger.Error("fanout failed", zap.Int64("post_id", d.PostID), zap.String("event", d.ID), zap.Error(err))
			captureFanoutError(d, err)
			continue
		}
		if err := w.source.Ack(ctx, d.ID); err != nil {
			logger.Warn("fanout ack failed", zap.String("event", d.ID), zap.Error(err))
		}
		if !d.PublishedAt.IsZero() {
			lat := time.Since(d.PublishedAt)
			fanoutLatency.Observe(lat.Seconds())
			select {
			case w.metricsCh <- lat:
			default:
			}
		}
	}
	return len(batch), nil
}

func captureFanoutError(d queue.Delivery, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "fanout")
		scope.SetTag("post_id", strconv.FormatInt(d.PostID, 10))
		scope.SetExtra("event_id", d.ID)
		sentry.CaptureException(err)
	})
}

// Rebuild 从帖子库重算 owner 的时间线列表并原子替换，返回写入条数
func (w *FanoutWorker) Rebuild(ctx context.Context, ownerID int64, maxEntries int) (int, error) {
	following, err := w.graph.FollowingOf(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	creators := make([]int64, 0, len(following))
	for _, id := range following {
		if id != ownerID {
			creators = append(creators, id)
		}
	}
	limit := w.opts.RebuildLimit
	if maxEntries > 0 && maxEntries < limit {
		limit = maxEntries
	}
	posts, err := w.posts.ListByCreators(ctx, creators, limit, 0)
	if err != nil {
		return 0, fmt.Errorf("rebuild feed %d: %w", ownerID, err)
	}
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	if err := w.cache.Replace(ctx, ownerID, ids); err != nil {
		return 0, err
	}
	logger.Info("feed rebuilt", zap.Int64("user_id", ownerID), zap.Int("entries", len(ids)))
	return len(ids), nil
}
