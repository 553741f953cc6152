// Package errs 定义了引擎的错误分类体系。
// 所有 service 层错误都应归入其中一类，handler 层据此映射 HTTP 状态码。
package errs

import (
	"errors"
	"fmt"
)

// ValidationError 表示请求载荷未通过模型定义校验。
// Field 为可选的出错字段名，用于拼装面向用户的错误消息。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validationf 创建一个不针对特定字段的校验错误。
func Validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// FieldValidationf 创建一个针对特定字段的校验错误。
func FieldValidationf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError 表示模型/记录/视图不存在。
// 跨 owner 的读取同样映射为 NotFound，不泄露资源是否存在。
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// NotFound 创建一个 NotFoundError，resource 形如 "model" / "record" / "view"。
func NotFound(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

// ConflictError 表示唯一性约束冲突（重名模型、重名视图等）。
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Conflictf 创建一个 ConflictError。
func Conflictf(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError 表示对非本人资源的变更操作。
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// Unauthorized 创建一个 AuthorizationError。
func Unauthorized(message string) *AuthorizationError {
	return &AuthorizationError{Message: message}
}

// EmbeddingError 包装向量化服务商的失败。
// 触发它的写入必须整体中止，不落任何数据。
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return "embedding provider failed: " + e.Err.Error()
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// Embedding 包装一个服务商错误。
func Embedding(err error) *EmbeddingError {
	return &EmbeddingError{Err: err}
}

// IsValidation 判断 err 是否为校验错误。
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound 判断 err 是否为资源不存在。
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict 判断 err 是否为唯一性冲突。
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsAuthorization 判断 err 是否为越权操作。
func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsEmbedding 判断 err 是否为向量化服务商错误。
func IsEmbedding(err error) bool {
	var target *EmbeddingError
	return errors.As(err, &target)
}
