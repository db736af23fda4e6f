package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/social-feed/internal/api/middleware"
	"github.com/d60-Lab/social-feed/pkg/response"
)

// GetFeed 当前用户的时间线
// @Summary 时间线
// @Description 页码从 0 开始；limit 缺省使用配置值，超过上限按上限处理
// @Tags 时间线
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(0)
// @Param limit query int false "每页数量"
// @Success 200 {object} response.Response{data=feed.Page}
// @Failure 400 {object} response.Response
// @Router /api/v1/feed [get]
func (h *Handler) GetFeed(c *gin.Context) {
	page := queryInt(c, "page", 0)
	limit := queryInt(c, "limit", h.feed.DefaultLimit())
	res, err := h.feed.GetFeed(c.Request.Context(), middleware.UserID(c), limit, page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
