package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"infinity-go/internal/model"

	"gorm.io/gorm"
)

// RecordRepository 定义了对 model_data 表的数据操作接口。
type RecordRepository interface {
	Create(ctx context.Context, rec *model.DataRecord) error
	FindByID(ctx context.Context, id, modelID string) (*model.DataRecord, error)
	FindByIDs(ctx context.Context, modelID string, ids []string) ([]*model.DataRecord, error)
	FindWithFilter(ctx context.Context, modelID string, filter map[string]interface{}, offset, limit int) ([]*model.DataRecord, int64, error)
	FindAllByModel(ctx context.Context, modelID string) ([]*model.DataRecord, error)
	Update(ctx context.Context, rec *model.DataRecord) error
	Delete(ctx context.Context, id, modelID string) (int64, error)
	DeleteByModel(ctx context.Context, modelID string) (int64, error)
	SetStatusByModel(ctx context.Context, modelID, status string) error
}

// recordRepository 是 RecordRepository 接口的 GORM 实现。
type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository 创建一个新的 RecordRepository 实例。
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

// Create 持久化一条记录。载荷和向量在同一条 INSERT 中落库。
func (r *recordRepository) Create(ctx context.Context, rec *model.DataRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// FindByID 查找属于指定模型的一条记录。
func (r *recordRepository) FindByID(ctx context.Context, id, modelID string) (*model.DataRecord, error) {
	var rec model.DataRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND model_id = ?", id, modelID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByIDs 批量查找记录，调用方负责按需要的顺序重排。
func (r *recordRepository) FindByIDs(ctx context.Context, modelID string, ids []string) ([]*model.DataRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var recs []*model.DataRecord
	err := r.db.WithContext(ctx).
		Where("model_id = ? AND id IN ?", modelID, ids).
		Find(&recs).Error
	return recs, err
}

// FindWithFilter 按等值条件过滤并分页，总数和数据页使用同一组谓词。
// filter 的键必须已在 service 层对模型字段集校验过。
func (r *recordRepository) FindWithFilter(ctx context.Context, modelID string, filter map[string]interface{}, offset, limit int) ([]*model.DataRecord, int64, error) {
	base := r.db.WithContext(ctx).Model(&model.DataRecord{}).Where("model_id = ?", modelID)
	base, err := applyEqualityFilter(base, filter)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []*model.DataRecord
	err = base.Session(&gorm.Session{}).
		Order("created_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// FindAllByModel 返回模型的全部记录，用于数据导出。
func (r *recordRepository) FindAllByModel(ctx context.Context, modelID string) ([]*model.DataRecord, error) {
	var recs []*model.DataRecord
	err := r.db.WithContext(ctx).
		Where("model_id = ?", modelID).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	return recs, err
}

// Update 覆盖记录的载荷和向量。向量为 nil 时写入 NULL。
// 时间戳写在入参结构体上，调用方返回给客户端的就是落库的值。
func (r *recordRepository) Update(ctx context.Context, rec *model.DataRecord) error {
	rec.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Model(&model.DataRecord{}).
		Where("id = ? AND model_id = ?", rec.ID, rec.ModelID).
		Updates(map[string]interface{}{
			"data":       rec.Data,
			"vector":     rec.Vector,
			"updated_at": rec.UpdatedAt,
		}).Error
}

// Delete 删除一条记录，返回受影响的行数。
func (r *recordRepository) Delete(ctx context.Context, id, modelID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND model_id = ?", id, modelID).
		Delete(&model.DataRecord{})
	return res.RowsAffected, res.Error
}

// DeleteByModel 清空模型的全部记录，返回删除的行数。
func (r *recordRepository) DeleteByModel(ctx context.Context, modelID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("model_id = ?", modelID).
		Delete(&model.DataRecord{})
	return res.RowsAffected, res.Error
}

// SetStatusByModel 批量翻转模型下所有记录的状态（归档/恢复）。
func (r *recordRepository) SetStatusByModel(ctx context.Context, modelID, status string) error {
	return r.db.WithContext(ctx).
		Model(&model.DataRecord{}).
		Where("model_id = ?", modelID).
		Update("status", status).Error
}

// applyEqualityFilter 把等值过滤编译为 JSON 路径谓词。
// 字段名只作为参数传入 JSON_EXTRACT，不拼接进 SQL 文本。
func applyEqualityFilter(q *gorm.DB, filter map[string]interface{}) (*gorm.DB, error) {
	for field, value := range filter {
		path := fmt.Sprintf("$.%q", field)
		if value == nil {
			q = q.Where("JSON_EXTRACT(data, ?) IS NULL OR JSON_TYPE(JSON_EXTRACT(data, ?)) = 'NULL'", path, path)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("无法序列化过滤值: %w", err)
		}
		q = q.Where("JSON_EXTRACT(data, ?) = CAST(? AS JSON)", path, string(raw))
	}
	return q, nil
}
