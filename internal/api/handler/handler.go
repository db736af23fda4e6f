package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/social-feed/internal/feed"
	"github.com/d60-Lab/social-feed/internal/notification"
	"github.com/d60-Lab/social-feed/internal/service"
)

// Handler HTTP 入口，只做参数解析与错误映射
type Handler struct {
	relService    service.RelationshipService
	feed          *feed.Service
	posts         *service.PostService
	engagement    *service.EngagementService
	notifications *notification.Engine
}

func New(rel service.RelationshipService, feedSvc *feed.Service, posts *service.PostService,
	engagement *service.EngagementService, notifications *notification.Engine) *Handler {
	return &Handler{relService: rel, feed: feedSvc, posts: posts, engagement: engagement, notifications: notifications}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}
