// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// JSONMap 是一个以 JSON 列形式持久化的键值映射。
// 动态记录的用户字段没有固定结构，只能以半结构化形式存储。
type JSONMap map[string]interface{}

// Value 实现 driver.Valuer 接口，序列化为 JSON 存入数据库。
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner 接口，从数据库 JSON 列反序列化。
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("无法将 %T 扫描为 JSONMap", src)
	}
}

// Vector 是记录的向量表示，以 JSON 数组形式持久化。
// 权威副本存在 MySQL 行内，Elasticsearch 中的是用于检索的镜像。
type Vector []float32

// Value 实现 driver.Valuer 接口。空向量存 NULL。
func (v Vector) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan 实现 sql.Scanner 接口。
func (v *Vector) Scan(src interface{}) error {
	if src == nil {
		*v = nil
		return nil
	}
	switch raw := src.(type) {
	case []byte:
		return json.Unmarshal(raw, v)
	case string:
		return json.Unmarshal([]byte(raw), v)
	default:
		return errors.New("向量列的数据库类型不受支持")
	}
}
