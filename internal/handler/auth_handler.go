package handler

import (
	"net/http"

	"infinity-go/internal/errs"
	"infinity-go/internal/middleware"
	"infinity-go/internal/service"
	"infinity-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责处理注册、登录、登出和刷新 token 的 API 请求。
type AuthHandler struct {
	userService service.UserService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// CredentialsRequest 定义了注册与登录 API 的请求体结构。
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest 定义了刷新 token API 的请求体结构。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Register 处理用户注册请求。
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validationf("username and password are required"))
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, user)
}

// Login 处理登录请求，签发 access/refresh token 对。
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validationf("username and password are required"))
		return
	}

	accessToken, refreshToken, user, err := h.userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		// 凭证错误按惯例返回 401 而不是 403
		if errs.IsAuthorization(err) {
			c.JSON(http.StatusUnauthorized, Response{Success: false, Error: err.Error()})
			return
		}
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"token":        accessToken,
		"refreshToken": refreshToken,
		"user":         user,
	})
}

// RefreshToken 处理刷新 token 的请求。
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validationf("refreshToken is required"))
		return
	}

	newAccessToken, newRefreshToken, err := h.userService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		log.Warnf("RefreshToken: 刷新失败, error: %v", err)
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "invalid refresh token"})
		return
	}

	respondOK(c, gin.H{
		"token":        newAccessToken,
		"refreshToken": newRefreshToken,
	})
}

// Logout 处理登出请求，吊销当前 token。
func (h *AuthHandler) Logout(c *gin.Context) {
	tokenString := c.GetString(middleware.ContextTokenKey)
	if err := h.userService.Logout(c.Request.Context(), tokenString); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "logged out"})
}

// Profile 返回当前用户的资料。
func (h *AuthHandler) Profile(c *gin.Context) {
	user, err := h.userService.GetProfile(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, user)
}
