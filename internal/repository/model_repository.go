// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"infinity-go/internal/model"
	"infinity-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// 模型定义读缓存的有效期。定义在每次请求时都要解析，缓存省去热点模型的回表。
const modelCacheTTL = 5 * time.Minute

// ModelRepository 定义了对 model_definitions 表的数据操作接口。
type ModelRepository interface {
	Create(ctx context.Context, m *model.ModelDefinition) error
	FindByID(ctx context.Context, id string) (*model.ModelDefinition, error)
	FindByName(ctx context.Context, name, ownerID string) (*model.ModelDefinition, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*model.ModelDefinition, error)
	Update(ctx context.Context, m *model.ModelDefinition) error
	Delete(ctx context.Context, id string) error
	NameTaken(ctx context.Context, name, ownerID, excludeID string) (bool, error)
}

// modelRepository 是 ModelRepository 的 GORM 实现，读路径带 Redis 缓存。
type modelRepository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewModelRepository 创建一个新的 ModelRepository 实例。
func NewModelRepository(db *gorm.DB, rdb *redis.Client) ModelRepository {
	return &modelRepository{db: db, rdb: rdb}
}

func modelCacheKey(id string) string {
	return "model:def:" + id
}

func modelNameCacheKey(ownerID, name string) string {
	return fmt.Sprintf("model:name:%s:%s", ownerID, name)
}

// Create 在数据库中创建一条模型定义。
// (owner_id, name) 上有唯一索引，并发重名创建由约束兜底。
func (r *modelRepository) Create(ctx context.Context, m *model.ModelDefinition) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// FindByID 根据 ID 查找模型定义，优先命中缓存。
func (r *modelRepository) FindByID(ctx context.Context, id string) (*model.ModelDefinition, error) {
	if cached := r.fromCache(ctx, modelCacheKey(id)); cached != nil {
		return cached, nil
	}

	var m model.ModelDefinition
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	r.toCache(ctx, modelCacheKey(id), &m)
	return &m, nil
}

// FindByName 根据 (name, owner) 查找模型定义，优先命中缓存。
func (r *modelRepository) FindByName(ctx context.Context, name, ownerID string) (*model.ModelDefinition, error) {
	if cached := r.fromCache(ctx, modelNameCacheKey(ownerID, name)); cached != nil {
		return cached, nil
	}

	var m model.ModelDefinition
	err := r.db.WithContext(ctx).Where("name = ? AND owner_id = ?", name, ownerID).First(&m).Error
	if err != nil {
		return nil, err
	}
	r.toCache(ctx, modelNameCacheKey(ownerID, name), &m)
	return &m, nil
}

// FindByOwner 返回某个 owner 的全部模型定义，按创建时间倒序。
func (r *modelRepository) FindByOwner(ctx context.Context, ownerID string) ([]*model.ModelDefinition, error) {
	var models []*model.ModelDefinition
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error
	return models, err
}

// Update 保存模型定义并使缓存失效。
// 改名时旧名字的缓存键在 TTL 内仍会命中，必须一并清掉。
func (r *modelRepository) Update(ctx context.Context, m *model.ModelDefinition) error {
	var prevName string
	if r.rdb != nil {
		var prev model.ModelDefinition
		if err := r.db.WithContext(ctx).Select("name").Where("id = ?", m.ID).First(&prev).Error; err == nil {
			prevName = prev.Name
		}
	}

	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}

	r.invalidate(ctx, m)
	if prevName != "" && prevName != m.Name {
		r.dropNameKey(ctx, m.OwnerID, prevName)
	}
	return nil
}

// Delete 删除模型定义并使缓存失效。
func (r *modelRepository) Delete(ctx context.Context, id string) error {
	m, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Delete(&model.ModelDefinition{}, "id = ?", id).Error; err != nil {
		return err
	}
	r.invalidate(ctx, m)
	return nil
}

// NameTaken 检查 (name, owner) 是否已被占用。excludeID 非空时排除自身（更新场景）。
func (r *modelRepository) NameTaken(ctx context.Context, name, ownerID, excludeID string) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&model.ModelDefinition{}).
		Where("name = ? AND owner_id = ?", name, ownerID)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *modelRepository) fromCache(ctx context.Context, key string) *model.ModelDefinition {
	if r.rdb == nil {
		return nil
	}
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var m model.ModelDefinition
	if err := json.Unmarshal(raw, &m); err != nil {
		// 缓存内容损坏时直接丢弃，回退数据库
		_ = r.rdb.Del(ctx, key).Err()
		return nil
	}
	return &m
}

func (r *modelRepository) toCache(ctx context.Context, key string, m *model.ModelDefinition) {
	if r.rdb == nil {
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, key, raw, modelCacheTTL).Err(); err != nil {
		log.Warnf("[ModelRepository] 写入模型缓存失败, key: %s, error: %v", key, err)
	}
}

func (r *modelRepository) invalidate(ctx context.Context, m *model.ModelDefinition) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Del(ctx, modelCacheKey(m.ID), modelNameCacheKey(m.OwnerID, m.Name)).Err(); err != nil {
		log.Warnf("[ModelRepository] 清除模型缓存失败, id: %s, error: %v", m.ID, err)
	}
}

func (r *modelRepository) dropNameKey(ctx context.Context, ownerID, name string) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Del(ctx, modelNameCacheKey(ownerID, name)).Err(); err != nil {
		log.Warnf("[ModelRepository] 清除模型名缓存失败, owner: %s, name: %s, error: %v", ownerID, name, err)
	}
}
