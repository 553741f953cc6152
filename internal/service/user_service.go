package service

import (
	"context"
	"errors"
	"time"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"
	"infinity-go/internal/repository"
	"infinity-go/pkg/hash"
	"infinity-go/pkg/log"
	"infinity-go/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (accessToken, refreshToken string, user *model.User, err error)
	RefreshToken(ctx context.Context, refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	IsTokenRevoked(ctx context.Context, tokenString string) bool
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
	rdb        *redis.Client
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, rdb *redis.Client) UserService {
	return &userService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		rdb:        rdb,
	}
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(ctx context.Context, username, password string) (*model.User, error) {
	// 1. 基本校验
	if len(username) < 3 {
		return nil, errs.FieldValidationf("username", "username must be at least 3 characters")
	}
	if len(password) < 8 {
		return nil, errs.FieldValidationf("password", "password must be at least 8 characters")
	}

	// 2. 检查用户名是否已存在
	_, err := s.userRepo.FindByUsername(ctx, username)
	if err == nil {
		return nil, errs.Conflictf("username '%s' is already taken", username)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 3. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	// 4. 创建新用户，并发重名由唯一索引兜底
	newUser := &model.User{
		ID:       uuid.NewString(),
		Username: username,
		Password: hashedPassword,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflictf("username '%s' is already taken", username)
		}
		return nil, err
	}

	log.Infof("[UserService] 用户注册成功, id: %s, username: %s", newUser.ID, username)
	return newUser, nil
}

// Login 校验凭证并签发 access/refresh token 对。
func (s *userService) Login(ctx context.Context, username, password string) (string, string, *model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", nil, errs.Unauthorized("invalid username or password")
		}
		return "", "", nil, err
	}
	if !hash.CheckPassword(password, user.Password) {
		return "", "", nil, errs.Unauthorized("invalid username or password")
	}

	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		return "", "", nil, err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		return "", "", nil, err
	}

	log.Infof("[UserService] 用户登录成功, id: %s", user.ID)
	return accessToken, refreshToken, user, nil
}

// RefreshToken 用有效的 refresh token 换发新的 token 对。
func (s *userService) RefreshToken(ctx context.Context, refreshTokenString string) (string, string, error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", errs.Unauthorized("invalid refresh token")
	}
	if s.IsTokenRevoked(ctx, refreshTokenString) {
		return "", "", errs.Unauthorized("refresh token has been revoked")
	}

	// 用户可能在签发后被删除，换发前回表确认
	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", errs.Unauthorized("invalid refresh token")
		}
		return "", "", err
	}

	newAccessToken, err := s.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		return "", "", err
	}
	return newAccessToken, newRefreshToken, nil
}

// GetProfile 返回用户资料。
func (s *userService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("user")
		}
		return nil, err
	}
	return user, nil
}

// Logout 把 token 加入 Redis 吊销名单，有效期到 token 自然过期为止。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	if s.rdb == nil {
		return nil
	}

	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		// token 本就无效，吊销是空操作
		return nil
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, denylistKey(tokenString), "1", ttl).Err()
}

// IsTokenRevoked 检查 token 是否在吊销名单中。
func (s *userService) IsTokenRevoked(ctx context.Context, tokenString string) bool {
	if s.rdb == nil {
		return false
	}
	n, err := s.rdb.Exists(ctx, denylistKey(tokenString)).Result()
	if err != nil {
		log.Warnf("[UserService] 查询 token 吊销名单失败: %v", err)
		return false
	}
	return n > 0
}

func denylistKey(tokenString string) string {
	return "auth:denylist:" + hash.HashAPIKey(tokenString)
}
