package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ViewColumnConfig 描述视图中一列的展示配置。
type ViewColumnConfig struct {
	Field      string            `json:"field"`
	Visible    bool              `json:"visible"`
	Width      int               `json:"width,omitempty"`
	Format     *ViewColumnFormat `json:"format,omitempty"`
	Sortable   bool              `json:"sortable,omitempty"`
	Filterable bool              `json:"filterable,omitempty"`
}

// ViewColumnFormat 描述列值的渲染格式。
type ViewColumnFormat struct {
	Type    string  `json:"type"` // text | number | date | boolean | custom
	Options JSONMap `json:"options,omitempty"`
}

// ViewSortConfig 描述视图的一个排序条件。
type ViewSortConfig struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // asc | desc
}

// ViewFilterConfig 描述视图的一个过滤条件。
type ViewFilterConfig struct {
	Field       string      `json:"field"`
	Operator    string      `json:"operator"`
	Value       interface{} `json:"value,omitempty"`
	Conjunction string      `json:"conjunction,omitempty"` // and | or
}

// ViewLayoutConfig 描述视图的整体布局。
type ViewLayoutConfig struct {
	Density string `json:"density,omitempty"` // compact | normal | comfortable
	Theme   string `json:"theme,omitempty"`   // light | dark | system
}

// ViewGroupConfig 描述视图的分组聚合配置。
type ViewGroupConfig struct {
	Fields            []string          `json:"fields"`
	Aggregations      []ViewAggregation `json:"aggregations,omitempty"`
	ExpandedByDefault bool              `json:"expanded_by_default,omitempty"`
}

// ViewAggregation 描述分组下的一个聚合。
type ViewAggregation struct {
	Field    string `json:"field"`
	Function string `json:"function"` // sum | avg | count | min | max | countDistinct
}

// ViewRealtimeConfig 描述视图的实时更新行为。
type ViewRealtimeConfig struct {
	Enabled        bool   `json:"enabled"`
	UpdateBehavior string `json:"update_behavior,omitempty"` // instant | batch
	BatchInterval  int    `json:"batch_interval,omitempty"`  // 毫秒
}

// ViewConfig 是一份完整的视图配置，以 JSON 列形式持久化。
type ViewConfig struct {
	Columns  []ViewColumnConfig  `json:"columns"`
	Sorting  []ViewSortConfig    `json:"sorting,omitempty"`
	Filters  []ViewFilterConfig  `json:"filters,omitempty"`
	Layout   ViewLayoutConfig    `json:"layout,omitempty"`
	Grouping *ViewGroupConfig    `json:"grouping,omitempty"`
	Realtime *ViewRealtimeConfig `json:"realtime,omitempty"`
}

// Value 实现 driver.Valuer 接口。
func (c ViewConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan 实现 sql.Scanner 接口。
func (c *ViewConfig) Scan(src interface{}) error {
	return scanJSON(src, c, "ViewConfig")
}

// ModelView 对应于数据库中的 model_views 表。
// 每个 (model_id, owner_id) 至多一个默认视图，模型至少保留一个视图。
type ModelView struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	ModelID     string     `gorm:"type:varchar(36);not null;index" json:"model_id"`
	OwnerID     string     `gorm:"type:varchar(36);not null;index" json:"owner_id"`
	Name        string     `gorm:"type:varchar(100);not null" json:"name"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	Config      ViewConfig `gorm:"type:json;not null" json:"config"`
	IsDefault   bool       `gorm:"not null;default:false" json:"is_default"`
	IsPublic    bool       `gorm:"not null;default:false" json:"is_public"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ModelView) TableName() string {
	return "model_views"
}

// CreateViewInput 是创建视图的请求载荷。
type CreateViewInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Config      ViewConfig `json:"config"`
	IsDefault   bool       `json:"is_default"`
	IsPublic    bool       `json:"is_public"`
}

// UpdateViewInput 是更新视图的请求载荷，nil 的部分保持不变。
type UpdateViewInput struct {
	Name        *string     `json:"name"`
	Description *string     `json:"description"`
	Config      *ViewConfig `json:"config"`
	IsDefault   *bool       `json:"is_default"`
	IsPublic    *bool       `json:"is_public"`
}
