package model

import "time"

// 系统保留键，写入载荷中出现时会被剥离，不参与校验。
const (
	SystemKeyID        = "_id"
	SystemKeyCreatedAt = "_created_at"
	SystemKeyUpdatedAt = "_updated_at"
	SystemKeyVector    = "_vector"
)

// DataRecord 对应于数据库中的 model_data 表。
// Data 保存经过 schema 校验的用户字段，Vector 是可选的向量表示，永不对 API 消费者暴露。
type DataRecord struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ModelID   string    `gorm:"type:varchar(36);not null;index" json:"model_id"`
	OwnerID   string    `gorm:"type:varchar(36);not null;index" json:"owner_id"`
	Data      JSONMap   `gorm:"type:json;not null" json:"data"`
	Vector    Vector    `gorm:"type:json" json:"-"`
	Status    string    `gorm:"type:varchar(16);not null;default:active" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DataRecord) TableName() string {
	return "model_data"
}

// ToAPI 将记录转换为对外的扁平结构：系统字段加用户字段，不含向量。
func (r *DataRecord) ToAPI() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Data)+3)
	for k, v := range r.Data {
		out[k] = v
	}
	out[SystemKeyID] = r.ID
	out[SystemKeyCreatedAt] = r.CreatedAt
	out[SystemKeyUpdatedAt] = r.UpdatedAt
	return out
}

// ListRecordsQuery 是记录列表查询的参数。
// Filter 目前只支持等值匹配，键必须是模型已定义的字段。
type ListRecordsQuery struct {
	Filter map[string]interface{}
	Page   int
	Limit  int
}

// Normalize 填充分页默认值并限制单页上限。
func (q *ListRecordsQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
}

// SearchResult 是一次相似度检索命中的记录及其得分。
type SearchResult struct {
	Record     *DataRecord
	Similarity float64
}

// ToAPI 在记录的对外结构上附加 similarity 字段。
func (s *SearchResult) ToAPI() map[string]interface{} {
	out := s.Record.ToAPI()
	out["similarity"] = s.Similarity
	return out
}
