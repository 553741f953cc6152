package model

import "time"

// API 密钥状态。
const (
	APIKeyStatusActive  = "active"
	APIKeyStatusRevoked = "revoked"
)

// APIKey 对应于数据库中的 api_keys 表。
// 数据库只保存密钥的 SHA-256 摘要，明文仅在签发时返回一次。
type APIKey struct {
	ID         string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     string     `gorm:"type:varchar(36);not null;index" json:"user_id"`
	KeyHash    string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	Name       string     `gorm:"type:varchar(100);not null" json:"name"`
	Status     string     `gorm:"type:varchar(16);not null;default:active" json:"status"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastUsedAt *time.Time `gorm:"default:null" json:"last_used_at,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (APIKey) TableName() string {
	return "api_keys"
}
