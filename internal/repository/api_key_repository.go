package repository

import (
	"context"
	"time"

	"infinity-go/internal/model"

	"gorm.io/gorm"
)

// APIKeyRepository 定义了对 api_keys 表的数据操作接口。
type APIKeyRepository interface {
	Create(ctx context.Context, key *model.APIKey) error
	FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	FindByUser(ctx context.Context, userID string) ([]*model.APIKey, error)
	Revoke(ctx context.Context, id, userID string) (int64, error)
	TouchLastUsed(ctx context.Context, id string) error
}

// apiKeyRepository 是 APIKeyRepository 接口的 GORM 实现。
type apiKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository 创建一个新的 APIKeyRepository 实例。
func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

// Create 持久化一个新密钥（只存摘要）。
func (r *apiKeyRepository) Create(ctx context.Context, key *model.APIKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

// FindByHash 根据密钥摘要查找。
func (r *apiKeyRepository) FindByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	var key model.APIKey
	if err := r.db.WithContext(ctx).Where("key_hash = ?", keyHash).First(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// FindByUser 返回用户的全部密钥，按创建时间倒序。
func (r *apiKeyRepository) FindByUser(ctx context.Context, userID string) ([]*model.APIKey, error) {
	var keys []*model.APIKey
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&keys).Error
	return keys, err
}

// Revoke 将密钥标记为已吊销，返回受影响的行数。
func (r *apiKeyRepository) Revoke(ctx context.Context, id, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.APIKey{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("status", model.APIKeyStatusRevoked)
	return res.RowsAffected, res.Error
}

// TouchLastUsed 更新密钥的最近使用时间。
func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", &now).Error
}
