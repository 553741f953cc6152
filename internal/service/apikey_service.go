package service

import (
	"context"
	"errors"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"
	"infinity-go/internal/repository"
	"infinity-go/pkg/hash"
	"infinity-go/pkg/log"
	"infinity-go/pkg/token"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKeyService 接口定义了公开 API 密钥的业务操作。
type APIKeyService interface {
	// CreateKey 签发一个新密钥，明文只在返回值中出现一次。
	CreateKey(ctx context.Context, userID, name string) (plaintext string, key *model.APIKey, err error)
	ListKeys(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeKey(ctx context.Context, id, userID string) error
	// Authenticate 校验密钥明文并返回其归属的密钥记录。
	Authenticate(ctx context.Context, plaintext string) (*model.APIKey, error)
}

// apiKeyService 是 APIKeyService 接口的实现。
type apiKeyService struct {
	apiKeyRepo repository.APIKeyRepository
	prefix     string
}

// NewAPIKeyService 创建一个新的 APIKeyService 实例。
func NewAPIKeyService(apiKeyRepo repository.APIKeyRepository, prefix string) APIKeyService {
	return &apiKeyService{apiKeyRepo: apiKeyRepo, prefix: prefix}
}

// CreateKey 签发一个新密钥：前缀加 32 字节随机数的十六进制，数据库只存摘要。
func (s *apiKeyService) CreateKey(ctx context.Context, userID, name string) (string, *model.APIKey, error) {
	if name == "" {
		return "", nil, errs.FieldValidationf("name", "api key name must not be empty")
	}

	plaintext := s.prefix + token.GenerateRandomString(32)
	key := &model.APIKey{
		ID:      uuid.NewString(),
		UserID:  userID,
		KeyHash: hash.HashAPIKey(plaintext),
		Name:    name,
		Status:  model.APIKeyStatusActive,
	}
	if err := s.apiKeyRepo.Create(ctx, key); err != nil {
		return "", nil, err
	}

	log.Infof("[APIKeyService] API 密钥签发成功, id: %s, user: %s", key.ID, userID)
	return plaintext, key, nil
}

// ListKeys 返回用户的全部密钥（只含摘要，不含明文）。
func (s *apiKeyService) ListKeys(ctx context.Context, userID string) ([]*model.APIKey, error) {
	return s.apiKeyRepo.FindByUser(ctx, userID)
}

// RevokeKey 吊销一个密钥。
func (s *apiKeyService) RevokeKey(ctx context.Context, id, userID string) error {
	rows, err := s.apiKeyRepo.Revoke(ctx, id, userID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return errs.NotFound("api key")
	}
	log.Infof("[APIKeyService] API 密钥已吊销, id: %s", id)
	return nil
}

// Authenticate 校验密钥明文：查摘要、检查状态，并更新最近使用时间。
func (s *apiKeyService) Authenticate(ctx context.Context, plaintext string) (*model.APIKey, error) {
	key, err := s.apiKeyRepo.FindByHash(ctx, hash.HashAPIKey(plaintext))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Unauthorized("invalid api key")
		}
		return nil, err
	}
	if key.Status != model.APIKeyStatusActive {
		return nil, errs.Unauthorized("api key has been revoked")
	}

	// 最近使用时间是尽力而为的统计，失败不影响请求
	if err := s.apiKeyRepo.TouchLastUsed(ctx, key.ID); err != nil {
		log.Warnf("[APIKeyService] 更新密钥使用时间失败, id: %s, error: %v", key.ID, err)
	}
	return key, nil
}
