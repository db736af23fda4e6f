package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/social-feed/internal/realtime"
	"github.com/d60-Lab/social-feed/pkg/response"
)

const userIDKey = "user_id"

// Auth 校验 Authorization: Bearer <jwt>，把用户 id 写入上下文
func Auth(auth realtime.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		userID, err := auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID 取出 Auth 写入的用户 id
func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
