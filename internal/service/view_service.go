package service

import (
	"context"
	"errors"
	"time"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"
	"infinity-go/internal/notifier"
	"infinity-go/internal/repository"
	"infinity-go/pkg/log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 视图配置中允许的枚举值。
var (
	viewFilterOperators = map[string]bool{
		"eq": true, "neq": true, "gt": true, "gte": true, "lt": true, "lte": true,
		"contains": true, "not_contains": true, "starts_with": true, "ends_with": true,
		"is_empty": true, "is_not_empty": true, "in": true, "not_in": true,
	}
	viewSortDirections = map[string]bool{"asc": true, "desc": true}
	viewDensities      = map[string]bool{"": true, "compact": true, "normal": true, "comfortable": true}
	viewThemes         = map[string]bool{"": true, "light": true, "dark": true, "system": true}
	viewAggFunctions   = map[string]bool{
		"sum": true, "avg": true, "count": true, "min": true, "max": true, "countDistinct": true,
	}
	viewUpdateBehaviors = map[string]bool{"": true, "instant": true, "batch": true}
)

// ViewService 接口定义了保存视图的全部业务操作。
type ViewService interface {
	CreateView(ctx context.Context, m *model.ModelDefinition, ownerID string, input *model.CreateViewInput) (*model.ModelView, error)
	CreateDefaultView(ctx context.Context, m *model.ModelDefinition, ownerID string) (*model.ModelView, error)
	GetView(ctx context.Context, id, ownerID string) (*model.ModelView, error)
	ListViews(ctx context.Context, m *model.ModelDefinition, ownerID string) ([]*model.ModelView, error)
	GetDefaultView(ctx context.Context, m *model.ModelDefinition, ownerID string) (*model.ModelView, error)
	UpdateView(ctx context.Context, id, ownerID string, input *model.UpdateViewInput) (*model.ModelView, error)
	DeleteView(ctx context.Context, id, ownerID, replacementID string) error
}

// viewService 是 ViewService 接口的实现。
type viewService struct {
	viewRepo  repository.ViewRepository
	modelRepo repository.ModelRepository
	notifier  *notifier.Notifier
}

// NewViewService 创建一个新的 ViewService 实例。
func NewViewService(viewRepo repository.ViewRepository, modelRepo repository.ModelRepository, n *notifier.Notifier) ViewService {
	return &viewService{viewRepo: viewRepo, modelRepo: modelRepo, notifier: n}
}

// CreateView 在模型下创建一个视图。设为默认时旧默认在同一事务内被取代。
func (s *viewService) CreateView(ctx context.Context, m *model.ModelDefinition, ownerID string, input *model.CreateViewInput) (*model.ModelView, error) {
	if input.Name == "" {
		return nil, errs.FieldValidationf("name", "view name must not be empty")
	}
	if err := validateViewConfig(&input.Config, m.Fields); err != nil {
		return nil, err
	}

	v := &model.ModelView{
		ID:          uuid.NewString(),
		ModelID:     m.ID,
		OwnerID:     ownerID,
		Name:        input.Name,
		Description: input.Description,
		Config:      input.Config,
		IsDefault:   input.IsDefault,
		IsPublic:    input.IsPublic,
	}
	if err := s.viewRepo.Create(ctx, v); err != nil {
		return nil, err
	}

	log.Infof("[ViewService] 视图创建成功, id: %s, model: %s, default: %v", v.ID, m.ID, v.IsDefault)
	return v, nil
}

// CreateDefaultView 为新模型引导默认视图：全部字段可见，按创建时间倒序。
func (s *viewService) CreateDefaultView(ctx context.Context, m *model.ModelDefinition, ownerID string) (*model.ModelView, error) {
	columns := make([]model.ViewColumnConfig, 0, len(m.Fields))
	for name := range m.Fields {
		columns = append(columns, model.ViewColumnConfig{
			Field:      name,
			Visible:    true,
			Sortable:   true,
			Filterable: true,
		})
	}

	return s.CreateView(ctx, m, ownerID, &model.CreateViewInput{
		Name: "Default View",
		Config: model.ViewConfig{
			Columns: columns,
			Sorting: []model.ViewSortConfig{{Field: model.SystemKeyCreatedAt, Direction: "desc"}},
		},
		IsDefault: true,
	})
}

// GetView 返回一个对调用者可见的视图：本人的或公开的。
func (s *viewService) GetView(ctx context.Context, id, ownerID string) (*model.ModelView, error) {
	v, err := s.viewRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("view")
		}
		return nil, err
	}
	if v.OwnerID != ownerID && !v.IsPublic {
		return nil, errs.NotFound("view")
	}
	return v, nil
}

// ListViews 返回模型下调用者可见的全部视图。
func (s *viewService) ListViews(ctx context.Context, m *model.ModelDefinition, ownerID string) ([]*model.ModelView, error) {
	return s.viewRepo.FindVisible(ctx, m.ID, ownerID)
}

// GetDefaultView 返回调用者在模型下的默认视图。
func (s *viewService) GetDefaultView(ctx context.Context, m *model.ModelDefinition, ownerID string) (*model.ModelView, error) {
	v, err := s.viewRepo.FindDefault(ctx, m.ID, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("view")
		}
		return nil, err
	}
	return v, nil
}

// UpdateView 局部更新视图，nil 的部分保持不变，并广播配置变更事件。
func (s *viewService) UpdateView(ctx context.Context, id, ownerID string, input *model.UpdateViewInput) (*model.ModelView, error) {
	// 1. 解析并检查归属。变更操作只有 owner 能做
	v, err := s.viewRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("view")
		}
		return nil, err
	}
	if v.OwnerID != ownerID {
		return nil, errs.Unauthorized("you do not own this view")
	}

	// 2. 应用变更，记录实际改动作为事件的增量
	delta := model.JSONMap{}
	if input.Name != nil && *input.Name != v.Name {
		if *input.Name == "" {
			return nil, errs.FieldValidationf("name", "view name must not be empty")
		}
		v.Name = *input.Name
		delta["name"] = v.Name
	}
	if input.Description != nil {
		v.Description = *input.Description
		delta["description"] = v.Description
	}
	if input.Config != nil {
		fields, err := s.modelFields(ctx, v.ModelID)
		if err != nil {
			return nil, err
		}
		if err := validateViewConfig(input.Config, fields); err != nil {
			return nil, err
		}
		v.Config = *input.Config
		delta["config"] = v.Config
	}
	if input.IsDefault != nil {
		v.IsDefault = *input.IsDefault
		delta["is_default"] = v.IsDefault
	}
	if input.IsPublic != nil {
		v.IsPublic = *input.IsPublic
		delta["is_public"] = v.IsPublic
	}
	if len(delta) == 0 {
		return v, nil
	}

	if err := s.viewRepo.Update(ctx, v); err != nil {
		return nil, err
	}

	s.publishViewEvent(ctx, v.ID, v.ModelID, model.ViewEventConfigUpdated, delta)
	log.Infof("[ViewService] 视图更新成功, id: %s", v.ID)
	return v, nil
}

// DeleteView 删除视图。模型的最后一个视图不可删除；
// 删除默认视图必须同时指定接替的视图。
func (s *viewService) DeleteView(ctx context.Context, id, ownerID, replacementID string) error {
	v, err := s.viewRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound("view")
		}
		return err
	}
	if v.OwnerID != ownerID {
		return errs.Unauthorized("you do not own this view")
	}

	count, err := s.viewRepo.CountByModel(ctx, v.ModelID)
	if err != nil {
		return err
	}
	if count <= 1 {
		return errs.Conflictf("cannot delete the last view of a model")
	}
	if v.IsDefault && replacementID == "" {
		return errs.Conflictf("cannot delete the default view without a replacement")
	}
	if replacementID == id {
		return errs.FieldValidationf("replacement", "replacement view must be a different view")
	}
	if !v.IsDefault {
		replacementID = ""
	}

	// 接替视图必须是同一 owner 在同一模型下的视图，
	// 否则会把别人的视图提升为默认，破坏对方的单默认约束
	if replacementID != "" {
		repl, err := s.viewRepo.FindByID(ctx, replacementID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("view")
			}
			return err
		}
		if repl.ModelID != v.ModelID || repl.OwnerID != v.OwnerID {
			return errs.NotFound("view")
		}
	}

	if err := s.viewRepo.DeleteWithReplacement(ctx, v, replacementID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound("view")
		}
		return err
	}

	s.publishViewEvent(ctx, v.ID, v.ModelID, model.ViewEventDeleted, nil)
	log.Infof("[ViewService] 视图删除成功, id: %s, replacement: %s", v.ID, replacementID)
	return nil
}

func (s *viewService) modelFields(ctx context.Context, modelID string) (model.FieldMap, error) {
	m, err := s.modelRepo.FindByID(ctx, modelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("model")
		}
		return nil, err
	}
	return m.Fields, nil
}

func (s *viewService) publishViewEvent(ctx context.Context, viewID, modelID, eventType string, delta model.JSONMap) {
	if s.notifier == nil {
		return
	}
	now := time.Now().UnixMilli()
	s.notifier.Publish(ctx, notifier.Message{
		Channel: notifier.ViewChannel(viewID),
		Kind:    notifier.KindViewUpdate,
		Payload: model.ViewUpdateEvent{
			Type:        eventType,
			ViewID:      viewID,
			ModelID:     modelID,
			ConfigDelta: delta,
			Timestamp:   now,
		},
		Timestamp: now,
	})
}

// validateViewConfig 校验视图配置：引用的字段必须存在（系统键除外），
// 各处的枚举值必须合法。
func validateViewConfig(cfg *model.ViewConfig, fields model.FieldMap) error {
	for _, col := range cfg.Columns {
		if err := validateViewField(col.Field, fields); err != nil {
			return err
		}
	}
	for _, sorting := range cfg.Sorting {
		if err := validateViewField(sorting.Field, fields); err != nil {
			return err
		}
		if !viewSortDirections[sorting.Direction] {
			return errs.FieldValidationf(sorting.Field, "sort direction must be 'asc' or 'desc'")
		}
	}
	for _, filter := range cfg.Filters {
		if err := validateViewField(filter.Field, fields); err != nil {
			return err
		}
		if !viewFilterOperators[filter.Operator] {
			return errs.FieldValidationf(filter.Field, "unknown filter operator '%s'", filter.Operator)
		}
		if filter.Conjunction != "" && filter.Conjunction != "and" && filter.Conjunction != "or" {
			return errs.FieldValidationf(filter.Field, "filter conjunction must be 'and' or 'or'")
		}
	}
	if !viewDensities[cfg.Layout.Density] {
		return errs.FieldValidationf("layout", "unknown layout density '%s'", cfg.Layout.Density)
	}
	if !viewThemes[cfg.Layout.Theme] {
		return errs.FieldValidationf("layout", "unknown layout theme '%s'", cfg.Layout.Theme)
	}
	if cfg.Grouping != nil {
		for _, f := range cfg.Grouping.Fields {
			if err := validateViewField(f, fields); err != nil {
				return err
			}
		}
		for _, agg := range cfg.Grouping.Aggregations {
			if err := validateViewField(agg.Field, fields); err != nil {
				return err
			}
			if !viewAggFunctions[agg.Function] {
				return errs.FieldValidationf(agg.Field, "unknown aggregation function '%s'", agg.Function)
			}
		}
	}
	if cfg.Realtime != nil {
		if !viewUpdateBehaviors[cfg.Realtime.UpdateBehavior] {
			return errs.FieldValidationf("realtime", "unknown update behavior '%s'", cfg.Realtime.UpdateBehavior)
		}
		if cfg.Realtime.BatchInterval < 0 {
			return errs.FieldValidationf("realtime", "batch interval must not be negative")
		}
	}
	return nil
}

func validateViewField(field string, fields model.FieldMap) error {
	switch field {
	case model.SystemKeyID, model.SystemKeyCreatedAt, model.SystemKeyUpdatedAt:
		return nil
	}
	if _, ok := fields[field]; !ok {
		return errs.FieldValidationf(field, "view references unknown field '%s'", field)
	}
	return nil
}
