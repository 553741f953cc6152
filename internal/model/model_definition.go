package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 模型与记录的状态。归档只翻转状态，不删除数据。
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// 支持的字段类型。vector 由平台管理，用户不可创建。
const (
	FieldTypeString  = "string"
	FieldTypeNumber  = "number"
	FieldTypeBoolean = "boolean"
	FieldTypeDate    = "date"
	FieldTypeVector  = "vector"
)

// FieldDefinition 描述模型中一个用户字段的约束。
type FieldDefinition struct {
	Type        string        `json:"type"`
	Required    bool          `json:"required,omitempty"`
	Unique      bool          `json:"unique,omitempty"`
	Default     interface{}   `json:"default,omitempty"`
	Enum        []interface{} `json:"enum,omitempty"`
	Description string        `json:"description,omitempty"`
	ForeignKey  string        `json:"foreign_key,omitempty"`
}

// FieldMap 以 JSON 列形式持久化字段定义集合。
type FieldMap map[string]FieldDefinition

// Value 实现 driver.Valuer 接口。
func (m FieldMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner 接口。
func (m *FieldMap) Scan(src interface{}) error {
	return scanJSON(src, m, "FieldMap")
}

// RelationshipDefinition 描述模型间的关联。外键必须指向本模型已有字段。
type RelationshipDefinition struct {
	TargetModelID string `json:"target_model_id"`
	ForeignKey    string `json:"foreign_key"`
	OnDelete      string `json:"on_delete,omitempty"` // cascade | setNull | restrict
	OnUpdate      string `json:"on_update,omitempty"`
}

// RelationshipMap 以 JSON 列形式持久化关联定义集合。
type RelationshipMap map[string]RelationshipDefinition

// Value 实现 driver.Valuer 接口。
func (m RelationshipMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner 接口。
func (m *RelationshipMap) Scan(src interface{}) error {
	return scanJSON(src, m, "RelationshipMap")
}

// IndexDefinition 描述一个用户声明的索引。
type IndexDefinition struct {
	Fields []string `json:"fields"`
	Unique bool     `json:"unique,omitempty"`
}

// IndexMap 以 JSON 列形式持久化索引定义集合。
type IndexMap map[string]IndexDefinition

// Value 实现 driver.Valuer 接口。
func (m IndexMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner 接口。
func (m *IndexMap) Scan(src interface{}) error {
	return scanJSON(src, m, "IndexMap")
}

// EmbeddingSpec 描述模型的语义检索配置。
// 所有 source_fields 必须引用已存在的 string 字段。
type EmbeddingSpec struct {
	Enabled      bool     `json:"enabled"`
	SourceFields []string `json:"source_fields"`
}

// Value 实现 driver.Valuer 接口。
func (s *EmbeddingSpec) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan 实现 sql.Scanner 接口。
func (s *EmbeddingSpec) Scan(src interface{}) error {
	return scanJSON(src, s, "EmbeddingSpec")
}

// ModelDefinition 对应于数据库中的 model_definitions 表。
// 它是租户在运行时声明的一份数据模型 schema。
type ModelDefinition struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID       string          `gorm:"type:varchar(36);not null;uniqueIndex:uk_owner_name" json:"owner_id"`
	Name          string          `gorm:"type:varchar(100);not null;uniqueIndex:uk_owner_name" json:"name"`
	Description   string          `gorm:"type:text" json:"description,omitempty"`
	Fields        FieldMap        `gorm:"type:json;not null" json:"fields"`
	Relationships RelationshipMap `gorm:"type:json" json:"relationships,omitempty"`
	Indexes       IndexMap        `gorm:"type:json" json:"indexes,omitempty"`
	Embedding     *EmbeddingSpec  `gorm:"type:json" json:"embedding,omitempty"`
	Status        string          `gorm:"type:varchar(16);not null;default:active" json:"status"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ModelDefinition) TableName() string {
	return "model_definitions"
}

// EmbeddingEnabled 报告该模型是否开启了语义检索。
func (m *ModelDefinition) EmbeddingEnabled() bool {
	return m.Embedding != nil && m.Embedding.Enabled
}

// CreateModelInput 是创建模型定义的请求载荷。
type CreateModelInput struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Fields        FieldMap        `json:"fields"`
	Relationships RelationshipMap `json:"relationships"`
	Indexes       IndexMap        `json:"indexes"`
	Embedding     *EmbeddingSpec  `json:"embedding"`
}

// UpdateModelInput 是更新模型定义的请求载荷，nil 的部分保持不变。
type UpdateModelInput struct {
	Name          *string         `json:"name"`
	Description   *string         `json:"description"`
	Fields        FieldMap        `json:"fields"`
	Relationships RelationshipMap `json:"relationships"`
	Indexes       IndexMap        `json:"indexes"`
	Embedding     *EmbeddingSpec  `json:"embedding"`
}

func scanJSON(src, dst interface{}, typeName string) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("无法将 %T 扫描为 %s", src, typeName)
	}
}
