package middleware

import (
	"net/http"

	"infinity-go/internal/errs"
	"infinity-go/internal/service"

	"github.com/gin-gonic/gin"
)

// APIKeyAuthMiddleware 创建一个 Gin 中间件，用于公开数据 API 的密钥认证。
// 密钥从 x-api-key 请求头读取，认证通过后把密钥归属的用户 ID 存入上下文。
func APIKeyAuthMiddleware(apiKeyService service.APIKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		plaintext := c.GetHeader("x-api-key")
		if plaintext == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing x-api-key header"})
			return
		}

		key, err := apiKeyService.Authenticate(c.Request.Context(), plaintext)
		if err != nil {
			if errs.IsAuthorization(err) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
			}
			return
		}

		c.Set(ContextUserIDKey, key.UserID)
		c.Next()
	}
}
