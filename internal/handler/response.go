// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"infinity-go/internal/errs"
	"infinity-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// Response 是所有 API 的统一响应信封。
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Error   string      `json:"error,omitempty"`
	Field   string      `json:"field,omitempty"`
}

// PageMeta 是分页列表的元信息。
type PageMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// BulkMeta 是批量写入的元信息。
type BulkMeta struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BulkItemError 描述批量写入中一个失败的条目。
type BulkItemError struct {
	Index int         `json:"index"`
	Error string      `json:"error"`
	Data  interface{} `json:"data,omitempty"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func respondPage(c *gin.Context, data interface{}, meta PageMeta) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

// respondError 把 service 层错误映射到 HTTP 状态码：
// 校验 400、不存在 404、冲突 409、越权 403，其余一律 500。
func respondError(c *gin.Context, err error) {
	switch {
	case errs.IsValidation(err):
		var field string
		var target *errs.ValidationError
		if errors.As(err, &target) {
			field = target.Field
		}
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error(), Field: field})
	case errs.IsNotFound(err):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errs.IsConflict(err):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	case errs.IsAuthorization(err):
		c.JSON(http.StatusForbidden, Response{Success: false, Error: err.Error()})
	default:
		log.Errorf("未处理的内部错误, path: %s, error: %v", c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal server error"})
	}
}
