// Package service 包含了引擎的业务逻辑层。
package service

import (
	"context"
	"errors"
	"regexp"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"
	"infinity-go/internal/repository"
	"infinity-go/pkg/log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 模型名只允许字母、数字和连字符；字段名必须以字母开头，下划线前缀保留给系统键。
var (
	modelNameRe = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	fieldNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
)

// 用户可声明的字段类型。vector 由引擎管理，不在其中。
var creatableFieldTypes = map[string]bool{
	model.FieldTypeString:  true,
	model.FieldTypeNumber:  true,
	model.FieldTypeBoolean: true,
	model.FieldTypeDate:    true,
}

// SchemaService 接口定义了模型定义的全部业务操作。
type SchemaService interface {
	CreateModel(ctx context.Context, ownerID string, input *model.CreateModelInput) (*model.ModelDefinition, error)
	GetModel(ctx context.Context, id, ownerID string) (*model.ModelDefinition, error)
	GetModelByName(ctx context.Context, name, ownerID string) (*model.ModelDefinition, error)
	ListModels(ctx context.Context, ownerID string) ([]*model.ModelDefinition, error)
	UpdateModel(ctx context.Context, id, ownerID string, input *model.UpdateModelInput) (*model.ModelDefinition, error)
	DeleteModel(ctx context.Context, id, ownerID string) error
	ArchiveModel(ctx context.Context, id, ownerID string) (*model.ModelDefinition, error)
	RestoreModel(ctx context.Context, id, ownerID string) (*model.ModelDefinition, error)
}

// schemaService 是 SchemaService 接口的实现。
type schemaService struct {
	modelRepo  repository.ModelRepository
	recordRepo repository.RecordRepository
	viewRepo   repository.ViewRepository
	vectorRepo repository.VectorRepository
	viewSvc    ViewService
}

// NewSchemaService 创建一个新的 SchemaService 实例。
func NewSchemaService(
	modelRepo repository.ModelRepository,
	recordRepo repository.RecordRepository,
	viewRepo repository.ViewRepository,
	vectorRepo repository.VectorRepository,
	viewSvc ViewService,
) SchemaService {
	return &schemaService{
		modelRepo:  modelRepo,
		recordRepo: recordRepo,
		viewRepo:   viewRepo,
		vectorRepo: vectorRepo,
		viewSvc:    viewSvc,
	}
}

// CreateModel 创建一份模型定义，并为它引导一个默认视图。
func (s *schemaService) CreateModel(ctx context.Context, ownerID string, input *model.CreateModelInput) (*model.ModelDefinition, error) {
	// 1. 校验定义本身
	if err := validateModelName(input.Name); err != nil {
		return nil, err
	}
	if len(input.Fields) == 0 {
		return nil, errs.Validationf("model must define at least one field")
	}
	if err := validateFieldDefinitions(input.Fields); err != nil {
		return nil, err
	}
	if err := validateRelationships(input.Relationships, input.Fields); err != nil {
		return nil, err
	}
	if err := validateIndexes(input.Indexes, input.Fields); err != nil {
		return nil, err
	}
	if err := validateEmbeddingSpec(input.Embedding, input.Fields); err != nil {
		return nil, err
	}

	// 2. 检查 (name, owner) 是否重名
	taken, err := s.modelRepo.NameTaken(ctx, input.Name, ownerID, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errs.Conflictf("model with name '%s' already exists", input.Name)
	}

	// 3. 落库，并发重名由唯一索引兜底
	m := &model.ModelDefinition{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Name:          input.Name,
		Description:   input.Description,
		Fields:        input.Fields,
		Relationships: input.Relationships,
		Indexes:       input.Indexes,
		Embedding:     input.Embedding,
		Status:        model.StatusActive,
	}
	if err := s.modelRepo.Create(ctx, m); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflictf("model with name '%s' already exists", input.Name)
		}
		return nil, err
	}

	// 4. 引导默认视图。失败不回滚模型，视图可以之后手动补建
	if _, err := s.viewSvc.CreateDefaultView(ctx, m, ownerID); err != nil {
		log.Errorf("[SchemaService] 引导默认视图失败, model: %s, error: %v", m.ID, err)
	}

	log.Infof("[SchemaService] 模型创建成功, id: %s, name: %s, owner: %s", m.ID, m.Name, ownerID)
	return m, nil
}

// GetModel 返回属于调用者的模型定义。跨 owner 读取一律返回 NotFound。
func (s *schemaService) GetModel(ctx context.Context, id, ownerID string) (*model.ModelDefinition, error) {
	m, err := s.modelRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("model")
		}
		return nil, err
	}
	if m.OwnerID != ownerID {
		return nil, errs.NotFound("model")
	}
	return m, nil
}

// GetModelByName 按名称解析调用者的模型定义。
func (s *schemaService) GetModelByName(ctx context.Context, name, ownerID string) (*model.ModelDefinition, error) {
	m, err := s.modelRepo.FindByName(ctx, name, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("model")
		}
		return nil, err
	}
	return m, nil
}

// ListModels 返回调用者的全部模型定义。
func (s *schemaService) ListModels(ctx context.Context, ownerID string) ([]*model.ModelDefinition, error) {
	return s.modelRepo.FindByOwner(ctx, ownerID)
}

// UpdateModel 局部更新模型定义，nil 的部分保持不变。
func (s *schemaService) UpdateModel(ctx context.Context, id, ownerID string, input *model.UpdateModelInput) (*model.ModelDefinition, error) {
	// 1. 解析并检查归属
	m, err := s.findOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	// 2. 应用变更并重新校验改动的部分
	if input.Name != nil && *input.Name != m.Name {
		if err := validateModelName(*input.Name); err != nil {
			return nil, err
		}
		taken, err := s.modelRepo.NameTaken(ctx, *input.Name, ownerID, m.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, errs.Conflictf("model with name '%s' already exists", *input.Name)
		}
		m.Name = *input.Name
	}
	if input.Description != nil {
		m.Description = *input.Description
	}
	if input.Fields != nil {
		if len(input.Fields) == 0 {
			return nil, errs.Validationf("model must define at least one field")
		}
		if err := validateFieldDefinitions(input.Fields); err != nil {
			return nil, err
		}
		m.Fields = input.Fields
	}
	if input.Relationships != nil {
		m.Relationships = input.Relationships
	}
	if input.Indexes != nil {
		m.Indexes = input.Indexes
	}
	if input.Embedding != nil {
		m.Embedding = input.Embedding
	}

	// 3. 关联、索引、向量配置依赖字段集合，字段变了就要整体复查
	if err := validateRelationships(m.Relationships, m.Fields); err != nil {
		return nil, err
	}
	if err := validateIndexes(m.Indexes, m.Fields); err != nil {
		return nil, err
	}
	if err := validateEmbeddingSpec(m.Embedding, m.Fields); err != nil {
		return nil, err
	}

	if err := s.modelRepo.Update(ctx, m); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflictf("model with name '%s' already exists", m.Name)
		}
		return nil, err
	}

	log.Infof("[SchemaService] 模型更新成功, id: %s", m.ID)
	return m, nil
}

// DeleteModel 删除模型定义，并级联清理它名下的记录、向量和视图。
func (s *schemaService) DeleteModel(ctx context.Context, id, ownerID string) error {
	m, err := s.findOwned(ctx, id, ownerID)
	if err != nil {
		return err
	}

	// 1. 先清数据再删定义，中途失败时定义仍在，可以重试
	deleted, err := s.recordRepo.DeleteByModel(ctx, m.ID)
	if err != nil {
		return err
	}
	if s.vectorRepo != nil {
		if err := s.vectorRepo.DeleteByModel(ctx, m.ID); err != nil {
			log.Errorf("[SchemaService] 清理模型向量失败, model: %s, error: %v", m.ID, err)
		}
	}
	if err := s.viewRepo.DeleteByModel(ctx, m.ID); err != nil {
		return err
	}

	// 2. 删除定义本身
	if err := s.modelRepo.Delete(ctx, m.ID); err != nil {
		return err
	}

	log.Infof("[SchemaService] 模型删除成功, id: %s, 级联删除记录数: %d", m.ID, deleted)
	return nil
}

// ArchiveModel 归档模型：定义和记录都翻转状态，数据保留但拒绝写入。
func (s *schemaService) ArchiveModel(ctx context.Context, id, ownerID string) (*model.ModelDefinition, error) {
	return s.setStatus(ctx, id, ownerID, model.StatusArchived)
}

// RestoreModel 恢复已归档的模型。
func (s *schemaService) RestoreModel(ctx context.Context, id, ownerID string) (*model.ModelDefinition, error) {
	return s.setStatus(ctx, id, ownerID, model.StatusActive)
}

func (s *schemaService) setStatus(ctx context.Context, id, ownerID, status string) (*model.ModelDefinition, error) {
	m, err := s.findOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if m.Status == status {
		return m, nil
	}

	m.Status = status
	if err := s.modelRepo.Update(ctx, m); err != nil {
		return nil, err
	}
	if err := s.recordRepo.SetStatusByModel(ctx, m.ID, status); err != nil {
		return nil, err
	}

	log.Infof("[SchemaService] 模型状态变更, id: %s, status: %s", m.ID, status)
	return m, nil
}

// findOwned 解析模型并校验归属：不存在返回 NotFound，非本人资源的变更返回越权。
func (s *schemaService) findOwned(ctx context.Context, id, ownerID string) (*model.ModelDefinition, error) {
	m, err := s.modelRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("model")
		}
		return nil, err
	}
	if m.OwnerID != ownerID {
		return nil, errs.Unauthorized("you do not own this model")
	}
	return m, nil
}

func validateModelName(name string) error {
	if name == "" || !modelNameRe.MatchString(name) {
		return errs.FieldValidationf("name", "model name may only contain letters, digits and hyphens")
	}
	return nil
}

func validateFieldDefinitions(fields model.FieldMap) error {
	for name, def := range fields {
		if !fieldNameRe.MatchString(name) {
			return errs.FieldValidationf(name, "field name '%s' is invalid", name)
		}
		if !creatableFieldTypes[def.Type] {
			return errs.FieldValidationf(name, "field '%s' has unsupported type '%s'", name, def.Type)
		}
		// 枚举值与默认值必须符合字段自身的类型约束
		for _, candidate := range def.Enum {
			if err := validateFieldValue(name, model.FieldDefinition{Type: def.Type}, candidate); err != nil {
				return errs.FieldValidationf(name, "enum value of field '%s' does not match its type", name)
			}
		}
		if def.Default != nil {
			if err := validateFieldValue(name, def, def.Default); err != nil {
				return errs.FieldValidationf(name, "default value of field '%s' is invalid", name)
			}
		}
	}
	return nil
}

func validateRelationships(rels model.RelationshipMap, fields model.FieldMap) error {
	for name, rel := range rels {
		if rel.TargetModelID == "" {
			return errs.FieldValidationf(name, "relationship '%s' must reference a target model", name)
		}
		if _, ok := fields[rel.ForeignKey]; !ok {
			return errs.FieldValidationf(name, "relationship '%s' references unknown field '%s'", name, rel.ForeignKey)
		}
	}
	return nil
}

func validateIndexes(indexes model.IndexMap, fields model.FieldMap) error {
	for name, idx := range indexes {
		if len(idx.Fields) == 0 {
			return errs.FieldValidationf(name, "index '%s' must cover at least one field", name)
		}
		for _, f := range idx.Fields {
			if _, ok := fields[f]; !ok {
				return errs.FieldValidationf(name, "index '%s' references unknown field '%s'", name, f)
			}
		}
	}
	return nil
}

func validateEmbeddingSpec(spec *model.EmbeddingSpec, fields model.FieldMap) error {
	if spec == nil || !spec.Enabled {
		return nil
	}
	if len(spec.SourceFields) == 0 {
		return errs.Validationf("embedding requires at least one source field")
	}
	for _, f := range spec.SourceFields {
		def, ok := fields[f]
		if !ok {
			return errs.FieldValidationf(f, "embedding source field '%s' does not exist", f)
		}
		if def.Type != model.FieldTypeString {
			return errs.FieldValidationf(f, "embedding source field '%s' must be a string field", f)
		}
	}
	return nil
}
