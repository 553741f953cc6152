package handler

import (
	"infinity-go/internal/errs"
	"infinity-go/internal/middleware"
	"infinity-go/internal/service"

	"github.com/gin-gonic/gin"
)

// APIKeyHandler 负责处理公开 API 密钥管理的请求。
type APIKeyHandler struct {
	apiKeyService service.APIKeyService
}

// NewAPIKeyHandler 创建一个新的 APIKeyHandler 实例。
func NewAPIKeyHandler(apiKeyService service.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{apiKeyService: apiKeyService}
}

// CreateKeyRequest 定义了签发密钥 API 的请求体结构。
type CreateKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create 签发一个新密钥。明文只在这个响应里出现一次。
func (h *APIKeyHandler) Create(c *gin.Context) {
	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.FieldValidationf("name", "api key name is required"))
		return
	}

	plaintext, key, err := h.apiKeyService.CreateKey(c.Request.Context(), middleware.CurrentUserID(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	respondCreated(c, gin.H{
		"key":     plaintext,
		"details": key,
	})
}

// List 返回当前用户的全部密钥。
func (h *APIKeyHandler) List(c *gin.Context) {
	keys, err := h.apiKeyService.ListKeys(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, keys)
}

// Revoke 吊销一个密钥。
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	err := h.apiKeyService.RevokeKey(c.Request.Context(), c.Param("keyId"), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "api key revoked"})
}
