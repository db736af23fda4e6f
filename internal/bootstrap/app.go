package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/config"
	"github.com/d60-Lab/social-feed/internal/api/handler"
	"github.com/d60-Lab/social-feed/internal/feed"
	"github.com/d60-Lab/social-feed/internal/graph"
	"github.com/d60-Lab/social-feed/internal/notification"
	"github.com/d60-Lab/social-feed/internal/queue"
	"github.com/d60-Lab/social-feed/internal/realtime"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/internal/service"
	"github.com/d60-Lab/social-feed/pkg/database"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

// App 持有进程内所有组件，由 cmd 按子命令取用
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Posts         repository.PostRepository
	Profiles      repository.ProfileRepository
	Notifications *notification.Engine

	Graph      graph.Reader
	Cache      feed.Cache
	Queue      *queue.StreamQueue
	Feed       *feed.Service
	Worker     *feed.FanoutWorker
	Replicator *service.FanReplicator

	Auth      *realtime.JWTAuthenticator
	Registry  *realtime.Registry
	Relay     *realtime.Relay
	Transport *realtime.Transport

	Relations  service.RelationshipService
	PostSvc    *service.PostService
	Engagement *service.EngagementService
	Handler    *handler.Handler

	closers []func(context.Context) error
}

// Open 按配置连接 Postgres、Redis（以及可选的 Neo4j）并组装组件
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	var neo *graph.Neo4jGraph
	if cfg.Graph.Backend == "neo4j" {
		neo, err = graph.OpenNeo4j(ctx, cfg.Graph.Neo4jURI, cfg.Graph.Neo4jUser, cfg.Graph.Neo4jPassword, cfg.Graph.Neo4jDatabase)
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
	}

	app := Assemble(cfg, db, rdb, neo)
	app.closers = append(app.closers, func(context.Context) error { return rdb.Close() })
	if neo != nil {
		app.closers = append(app.closers, neo.Close)
	}
	app.closers = append(app.closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return app, nil
}

// Assemble 在已建立的连接上组装组件。neo 为 nil 时关注图走 SQL 表。
func Assemble(cfg *config.Config, db *gorm.DB, rdb *redis.Client, neo *graph.Neo4jGraph) *App {
	follows := repository.NewFollowRepository(db)
	fans := repository.NewFanRepository(db)
	profiles := repository.NewProfileRepository(db)
	posts := repository.NewPostRepository(db)
	comments := repository.NewCommentRepository(db)
	likes := repository.NewLikeRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	var g graph.Reader = graph.NewSQLReader(follows, fans)
	if neo != nil {
		g = neo
	}

	cache := feed.NewRedisCache(rdb, feed.CacheOptions{
		MaxEntries: cfg.Feed.MaxEntries,
		Dedupe:     cfg.Feed.Dedupe,
		Batch:      cfg.Feed.FanoutBatch,
	})
	loader := feed.NewPostLoader(posts, rdb, cfg.Feed.PostCacheTTL)
	q := queue.NewStreamQueue(rdb, cfg.Queue)
	pull := feed.NewPullEngine(g, posts)

	registry := realtime.NewRegistry()
	relay := realtime.NewRelay(registry, rdb, cfg.Realtime.Mode, cfg.Realtime.ChannelPrefix)
	auth := realtime.NewJWTAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer)
	transport := realtime.NewTransport(registry, auth, realtime.TransportOptions{
		SendBuffer:   cfg.Realtime.SendBuffer,
		AuthTimeout:  cfg.Realtime.AuthTimeout,
		WriteTimeout: cfg.Realtime.WriteTimeout,
		InboundRate:  cfg.Realtime.InboundRate,
		InboundBurst: cfg.Realtime.InboundBurst,
	})

	engine := notification.NewEngine(notifRepo, profiles, g, relay,
		notification.WithRetention(cfg.Notification.Retention))

	relOpts := []service.RelationOption{service.WithNotifier(engine)}
	var replicator *service.FanReplicator
	if cfg.Graph.AsyncFans {
		replicator = service.NewFanReplicator(fans, cfg.Graph.FanQueueSize)
		relOpts = append(relOpts, service.WithReplicator(replicator))
	}
	if neo != nil {
		relOpts = append(relOpts, service.WithGraphMirror(neo))
	}
	relations := service.NewRelationshipService(follows, fans, profiles, relOpts...)
	postSvc := service.NewPostService(posts, q, engine, cache, loader)
	engagement := service.NewEngagementService(posts, comments, likes, profiles, engine)
	feedSvc := feed.New(cfg.Feed, cache, loader, pull)

	worker := feed.NewFanoutWorker(posts, g, cache, q, feed.FanoutOptions{
		Consumer:     cfg.Queue.Consumer,
		Workers:      cfg.Queue.Workers,
		RebuildLimit: cfg.Feed.RebuildLimit,
	})

	logger.Info("components assembled",
		zap.String("feed_strategy", cfg.Feed.Strategy),
		zap.String("graph_backend", cfg.Graph.Backend),
		zap.String("realtime_mode", cfg.Realtime.Mode),
		zap.Bool("async_fans", cfg.Graph.AsyncFans),
	)

	return &App{
		Config:        cfg,
		DB:            db,
		Redis:         rdb,
		Posts:         posts,
		Profiles:      profiles,
		Notifications: engine,
		Graph:         g,
		Cache:         cache,
		Queue:         q,
		Feed:          feedSvc,
		Worker:        worker,
		Replicator:    replicator,
		Auth:          auth,
		Registry:      registry,
		Relay:         relay,
		Transport:     transport,
		Relations:     relations,
		PostSvc:       postSvc,
		Engagement:    engagement,
		Handler:       handler.New(relations, feedSvc, postSvc, engagement, engine),
	}
}

// Close 逆序释放连接
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("close resource failed", zap.Error(err))
		}
	}
}
