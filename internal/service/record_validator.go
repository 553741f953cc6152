package service

import (
	"strings"
	"time"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"
)

// 写入载荷接受的日期格式。
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// stripSystemKeys 剥离写入载荷中的系统保留键（下划线开头）。
// 这些键由引擎维护，客户端回传时直接忽略而不是报错。
func stripSystemKeys(data model.JSONMap) model.JSONMap {
	out := make(model.JSONMap, len(data))
	for k, v := range data {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

// validateFields 按模型定义校验一份完整的写入载荷：
// 未声明的字段拒绝，required 字段必须出现且非 null，
// 值类型与枚举约束逐字段检查。
func validateFields(fields model.FieldMap, data model.JSONMap) error {
	// 1. 拒绝未声明的字段
	for key := range data {
		if _, ok := fields[key]; !ok {
			return errs.FieldValidationf(key, "field '%s' is not defined in the model", key)
		}
	}

	// 2. 逐字段检查 required、类型与枚举
	for name, def := range fields {
		value, present := data[name]
		if !present || value == nil {
			if def.Required {
				return errs.FieldValidationf(name, "field '%s' is required", name)
			}
			continue
		}

		if err := validateFieldValue(name, def, value); err != nil {
			return err
		}
	}
	return nil
}

func validateFieldValue(name string, def model.FieldDefinition, value interface{}) error {
	switch def.Type {
	case model.FieldTypeString:
		if _, ok := value.(string); !ok {
			return errs.FieldValidationf(name, "field '%s' must be a string", name)
		}
	case model.FieldTypeNumber:
		if !isJSONNumber(value) {
			return errs.FieldValidationf(name, "field '%s' must be a number", name)
		}
	case model.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return errs.FieldValidationf(name, "field '%s' must be a boolean", name)
		}
	case model.FieldTypeDate:
		s, ok := value.(string)
		if !ok || !isParsableDate(s) {
			return errs.FieldValidationf(name, "field '%s' must be a date string", name)
		}
	default:
		// vector 等平台管理类型不接受客户端写入
		return errs.FieldValidationf(name, "field '%s' cannot be written directly", name)
	}

	if len(def.Enum) > 0 && !enumContains(def.Enum, value) {
		return errs.FieldValidationf(name, "field '%s' must be one of the allowed values", name)
	}
	return nil
}

func isJSONNumber(value interface{}) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

func isParsableDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// enumContains 判断值是否在枚举中。两边都来自 JSON 反序列化，
// 标量类型只会是 string/float64/bool，直接比较即可。
func enumContains(enum []interface{}, value interface{}) bool {
	for _, candidate := range enum {
		if candidate == value {
			return true
		}
	}
	return false
}
