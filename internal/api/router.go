package api

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/social-feed/docs"
	"github.com/d60-Lab/social-feed/internal/api/handler"
	"github.com/d60-Lab/social-feed/internal/api/middleware"
	"github.com/d60-Lab/social-feed/internal/realtime"
)

// Options 路由依赖
type Options struct {
	ServiceName string
	Handler     *handler.Handler
	Auth        realtime.Authenticator
	WebSocket   http.Handler
	RateLimiter *middleware.RateLimiter // nil 表示不限流
}

// NewRouter 注册全部路由。/ws 不挂 gzip，升级后的连接不能被压缩中间件包装。
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.ServiceName != "" {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if opts.WebSocket != nil {
		r.GET("/ws", gin.WrapH(opts.WebSocket))
	}

	v1 := r.Group("/api/v1")
	if opts.RateLimiter != nil {
		v1.Use(opts.RateLimiter.Middleware())
	}
	v1.Use(gzip.Gzip(gzip.DefaultCompression), middleware.Auth(opts.Auth))

	h := opts.Handler
	rel := v1.Group("/relations")
	{
		rel.POST("/follow", h.Follow)
		rel.POST("/unfollow", h.Unfollow)
		rel.GET("/:user_id/following", h.ListFollowing)
		rel.GET("/:user_id/fans", h.ListFans)
	}

	v1.GET("/feed", h.GetFeed)

	posts := v1.Group("/posts")
	{
		posts.POST("", h.CreatePost)
		posts.GET("/:id", h.GetPost)
		posts.DELETE("/:id", h.DeletePost)
		posts.POST("/:id/like", h.LikePost)
		posts.DELETE("/:id/like", h.UnlikePost)
		posts.POST("/:id/comments", h.CreateComment)
	}

	comments := v1.Group("/comments")
	{
		comments.POST("/:id/like", h.LikeComment)
		comments.DELETE("/:id", h.DeleteComment)
	}

	notif := v1.Group("/notifications")
	{
		notif.GET("", h.ListNotifications)
		notif.GET("/unread-count", h.UnreadCount)
		notif.PUT("/read-all", h.MarkAllNotificationsRead)
		notif.PUT("/:id/read", h.MarkNotificationRead)
		notif.DELETE("/:id", h.DeleteNotification)
	}
	return r
}
