// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"infinity-go/internal/service"
	"infinity-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// 上下文键。
const (
	ContextUserIDKey   = "userID"
	ContextUsernameKey = "username"
	ContextTokenKey    = "token"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它从请求头中提取 token，验证有效性和吊销状态，并把用户身份存入 Gin 的上下文。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从 Authorization 请求头中获取 token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing authorization header"})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid authorization header format"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid or expired token"})
			return
		}

		// 已登出的 token 在自然过期前都在吊销名单中
		if userService.IsTokenRevoked(c.Request.Context(), tokenString) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "token has been revoked"})
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Set(ContextTokenKey, tokenString)

		c.Next()
	}
}

// CurrentUserID 从 Gin 上下文中取出认证后的用户 ID。
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}
