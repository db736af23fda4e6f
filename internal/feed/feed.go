// Package feed 生成用户时间线：写扩散（Redis 列表）与读扩散（实时查询）两种策略，
// 由 Service 统一对外。
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/config"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

const (
	StrategyPush = "push"
	StrategyPull = "pull"
)

var ErrInvalidLimit = fmt.Errorf("limit must be positive: %w", model.ErrInvalidArgument)

var tracer = otel.Tracer("github.com/d60-Lab/social-feed/internal/feed")

// Page 一页时间线
type Page struct {
	Posts      []*model.Post `json:"posts"`
	TotalPages int           `json:"total_pages"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
}

// Strategy 时间线的一种计算方式；page 从 0 开始，limit 已由调用方校验为正数
type Strategy interface {
	GetFeed(ctx context.Context, userID int64, limit, page int) (*Page, error)
}

func totalPages(total int64, limit int) int {
	if total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// Service 对外唯一的分页时间线入口
type Service struct {
	strategy     Strategy
	name         string
	defaultLimit int
	maxLimit     int
}

func NewService(strategy Strategy, name string, defaultLimit, maxLimit int) *Service {
	return &Service{strategy: strategy, name: name, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

func (s *Service) DefaultLimit() int { return s.defaultLimit }

// GetFeed limit<=0 返回 ErrInvalidLimit，超过上限按上限处理；负页码按 0 处理
func (s *Service) GetFeed(ctx context.Context, userID int64, limit, page int) (*Page, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if s.maxLimit > 0 && limit > s.maxLimit {
		limit = s.maxLimit
	}
	if page < 0 {
		page = 0
	}

	ctx, span := tracer.Start(ctx, "feed.GetFeed")
	defer span.End()
	span.SetAttributes(
		attribute.String("feed.strategy", s.name),
		attribute.Int64("feed.user_id", userID),
		attribute.Int("feed.page", page),
		attribute.Int("feed.limit", limit),
	)

	start := time.Now()
	res, err := s.strategy.GetFeed(ctx, userID, limit, page)
	readDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		readErrors.WithLabelValues(s.name).Inc()
		return nil, err
	}
	res.Page, res.Limit = page, limit
	return res, nil
}

// cachedStrategy 读 Redis 列表，再批量回表成帖子
type cachedStrategy struct {
	cache  Cache
	loader PostLoader
}

func NewCachedStrategy(cache Cache, loader PostLoader) Strategy {
	return &cachedStrategy{cache: cache, loader: loader}
}

func (s *cachedStrategy) GetFeed(ctx context.Context, userID int64, limit, page int) (*Page, error) {
	size, err := s.cache.Size(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids, err := s.cache.GetPage(ctx, userID, limit, page)
	if err != nil {
		return nil, err
	}
	posts, err := s.loader.Load(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	return &Page{Posts: posts, TotalPages: totalPages(size, limit)}, nil
}

// fallbackStrategy primary 出错时本次请求降级到 secondary；空列表不算错误
type fallbackStrategy struct {
	primary   Strategy
	secondary Strategy
}

func WithFallback(primary, secondary Strategy) Strategy {
	return &fallbackStrategy{primary: primary, secondary: secondary}
}

func (s *fallbackStrategy) GetFeed(ctx context.Context, userID int64, limit, page int) (*Page, error) {
	res, err := s.primary.GetFeed(ctx, userID, limit, page)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, context.Canceled) {
		return nil, err
	}
	logger.Warn("feed cache unavailable, falling back to pull",
		zap.Int64("user_id", userID), zap.Error(err))
	readFallbacks.Inc()
	return s.secondary.GetFeed(ctx, userID, limit, page)
}

// New 按配置选择策略；push 且开启 fallback_to_pull 时缓存故障降级为读扩散
func New(cfg config.FeedConfig, cache Cache, loader PostLoader, pull *PullEngine) *Service {
	var s Strategy
	switch cfg.Strategy {
	case StrategyPull:
		s = pull
	default:
		s = NewCachedStrategy(cache, loader)
		if cfg.FallbackToPull {
			s = WithFallback(s, pull)
		}
	}
	return NewService(s, cfg.Strategy, cfg.DefaultLimit, cfg.MaxLimit)
}
