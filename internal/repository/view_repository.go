package repository

import (
	"context"

	"infinity-go/internal/model"

	"gorm.io/gorm"
)

// ViewRepository 定义了对 model_views 表的数据操作接口。
// 默认视图的“先清后设”在单个事务内完成，避免并发提升产生两个默认视图。
type ViewRepository interface {
	Create(ctx context.Context, v *model.ModelView) error
	FindByID(ctx context.Context, id string) (*model.ModelView, error)
	FindVisible(ctx context.Context, modelID, ownerID string) ([]*model.ModelView, error)
	FindDefault(ctx context.Context, modelID, ownerID string) (*model.ModelView, error)
	CountByModel(ctx context.Context, modelID string) (int64, error)
	Update(ctx context.Context, v *model.ModelView) error
	DeleteWithReplacement(ctx context.Context, v *model.ModelView, replacementID string) error
	DeleteByModel(ctx context.Context, modelID string) error
}

// viewRepository 是 ViewRepository 接口的 GORM 实现。
type viewRepository struct {
	db *gorm.DB
}

// NewViewRepository 创建一个新的 ViewRepository 实例。
func NewViewRepository(db *gorm.DB) ViewRepository {
	return &viewRepository{db: db}
}

// Create 持久化一个视图。若 IsDefault 为真，同一事务内先清除旧默认。
func (r *viewRepository) Create(ctx context.Context, v *model.ModelView) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if v.IsDefault {
			if err := unsetDefault(tx, v.ModelID, v.OwnerID); err != nil {
				return err
			}
		}
		return tx.Create(v).Error
	})
}

// FindByID 根据 ID 查找视图。
func (r *viewRepository) FindByID(ctx context.Context, id string) (*model.ModelView, error) {
	var v model.ModelView
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// FindVisible 返回调用者可见的视图：本人的全部视图加上他人公开的视图。
func (r *viewRepository) FindVisible(ctx context.Context, modelID, ownerID string) ([]*model.ModelView, error) {
	var views []*model.ModelView
	err := r.db.WithContext(ctx).
		Where("model_id = ? AND (owner_id = ? OR is_public = ?)", modelID, ownerID, true).
		Order("created_at DESC").
		Find(&views).Error
	return views, err
}

// FindDefault 返回 (model, owner) 的默认视图，没有时返回 gorm.ErrRecordNotFound。
func (r *viewRepository) FindDefault(ctx context.Context, modelID, ownerID string) (*model.ModelView, error) {
	var v model.ModelView
	err := r.db.WithContext(ctx).
		Where("model_id = ? AND owner_id = ? AND is_default = ?", modelID, ownerID, true).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CountByModel 统计模型名下的视图数量。
func (r *viewRepository) CountByModel(ctx context.Context, modelID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ModelView{}).
		Where("model_id = ?", modelID).
		Count(&count).Error
	return count, err
}

// Update 保存视图。提升为默认时在同一事务内先清除旧默认。
func (r *viewRepository) Update(ctx context.Context, v *model.ModelView) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if v.IsDefault {
			if err := unsetDefault(tx, v.ModelID, v.OwnerID); err != nil {
				return err
			}
		}
		return tx.Save(v).Error
	})
}

// DeleteWithReplacement 删除视图；被删视图是默认视图时，
// 在同一事务内把 replacementID 提升为新默认。
// 提升限定在被删视图的 (model, owner) 内，不会触碰其他 owner 的默认视图。
func (r *viewRepository) DeleteWithReplacement(ctx context.Context, v *model.ModelView, replacementID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", v.ID).Delete(&model.ModelView{}).Error; err != nil {
			return err
		}
		if replacementID == "" {
			return nil
		}
		res := tx.Model(&model.ModelView{}).
			Where("id = ? AND model_id = ? AND owner_id = ?", replacementID, v.ModelID, v.OwnerID).
			Update("is_default", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// DeleteByModel 删除模型名下的全部视图（删除模型时的级联清理）。
func (r *viewRepository) DeleteByModel(ctx context.Context, modelID string) error {
	return r.db.WithContext(ctx).
		Where("model_id = ?", modelID).
		Delete(&model.ModelView{}).Error
}

func unsetDefault(tx *gorm.DB, modelID, ownerID string) error {
	return tx.Model(&model.ModelView{}).
		Where("model_id = ? AND owner_id = ? AND is_default = ?", modelID, ownerID, true).
		Update("is_default", false).Error
}
