package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"infinity-go/internal/errs"
	"infinity-go/internal/middleware"
	"infinity-go/internal/model"
	"infinity-go/internal/service"

	"github.com/gin-gonic/gin"
)

// 公开数据 API 的保留查询参数，不参与字段过滤。
var reservedQueryParams = map[string]bool{"model": true, "id": true, "page": true, "limit": true}

// PublicDataHandler 负责处理以 API 密钥认证的公开数据请求。
// 模型按名称寻址，密钥归属的用户即模型 owner。
type PublicDataHandler struct {
	schemaService service.SchemaService
	recordService service.RecordService
}

// NewPublicDataHandler 创建一个新的 PublicDataHandler 实例。
func NewPublicDataHandler(schemaService service.SchemaService, recordService service.RecordService) *PublicDataHandler {
	return &PublicDataHandler{schemaService: schemaService, recordService: recordService}
}

// resolveModel 解析模型名，支持路径参数和 ?model= 两种形式。
func (h *PublicDataHandler) resolveModel(c *gin.Context) (*model.ModelDefinition, bool) {
	name := c.Param("modelName")
	if name == "" {
		name = c.Query("model")
	}
	if name == "" {
		respondError(c, errs.FieldValidationf("model", "model name is required"))
		return nil, false
	}

	m, err := h.schemaService.GetModelByName(c.Request.Context(), name, middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return m, true
}

// Get 读取记录。?id= 或路径参数给出时返回单条，否则分页列出。
// 其余查询参数按模型字段类型转换后作为等值过滤条件。
func (h *PublicDataHandler) Get(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}

	if id := h.recordID(c); id != "" {
		rec, err := h.recordService.GetRecord(c.Request.Context(), m, id)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, rec.ToAPI())
		return
	}

	query, err := h.parsePublicQuery(c, m)
	if err != nil {
		respondError(c, err)
		return
	}

	recs, total, err := h.recordService.ListRecords(c.Request.Context(), m, query)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, recordsToAPI(recs), PageMeta{Page: query.Page, Limit: query.Limit, Total: total})
}

// Post 创建记录。请求体是对象时创建单条，是数组时逐条批量创建。
func (h *PublicDataHandler) Post(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}

	single, items, err := readObjectOrArray(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if single != nil {
		rec, err := h.recordService.CreateRecord(c.Request.Context(), m, single)
		if err != nil {
			respondError(c, err)
			return
		}
		respondCreated(c, rec.ToAPI())
		return
	}

	h.bulkWrite(c, items, http.StatusCreated, func(item model.JSONMap) (map[string]interface{}, error) {
		rec, err := h.recordService.CreateRecord(c.Request.Context(), m, item)
		if err != nil {
			return nil, err
		}
		return rec.ToAPI(), nil
	})
}

// Put 整体替换记录。单条用 ?id= 或路径参数寻址，批量条目用自身的 _id 寻址。
func (h *PublicDataHandler) Put(c *gin.Context) {
	h.write(c, func(ctx *gin.Context, m *model.ModelDefinition, id string, payload model.JSONMap) (*model.DataRecord, error) {
		return h.recordService.ReplaceRecord(ctx.Request.Context(), m, id, payload)
	})
}

// Patch 合并更新记录，寻址方式与 Put 相同。
func (h *PublicDataHandler) Patch(c *gin.Context) {
	h.write(c, func(ctx *gin.Context, m *model.ModelDefinition, id string, payload model.JSONMap) (*model.DataRecord, error) {
		return h.recordService.PatchRecord(ctx.Request.Context(), m, id, payload)
	})
}

// Search 对模型的记录做语义相似度检索。
func (h *PublicDataHandler) Search(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.FieldValidationf("query", "query text is required"))
		return
	}

	results, err := h.recordService.SearchSimilar(c.Request.Context(), m, req.Query, req.Limit, req.MinSimilarity)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		out = append(out, res.ToAPI())
	}
	respondOK(c, out)
}

// Delete 删除一条记录，成功返回 204。
func (h *PublicDataHandler) Delete(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}

	id := h.recordID(c)
	if id == "" {
		respondError(c, errs.FieldValidationf("id", "record id is required"))
		return
	}

	if err := h.recordService.DeleteRecord(c.Request.Context(), m, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updateFunc func(c *gin.Context, m *model.ModelDefinition, id string, payload model.JSONMap) (*model.DataRecord, error)

func (h *PublicDataHandler) write(c *gin.Context, update updateFunc) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}

	single, items, err := readObjectOrArray(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if single != nil {
		id := h.recordID(c)
		if id == "" {
			// 单条更新也允许把 _id 放在载荷里
			id, _ = single[model.SystemKeyID].(string)
		}
		if id == "" {
			respondError(c, errs.FieldValidationf("id", "record id is required"))
			return
		}
		rec, err := update(c, m, id, single)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, rec.ToAPI())
		return
	}

	h.bulkWrite(c, items, http.StatusOK, func(item model.JSONMap) (map[string]interface{}, error) {
		id, _ := item[model.SystemKeyID].(string)
		if id == "" {
			return nil, errs.FieldValidationf("_id", "bulk update items must carry an _id")
		}
		rec, err := update(c, m, id, item)
		if err != nil {
			return nil, err
		}
		return rec.ToAPI(), nil
	})
}

// bulkWrite 逐条执行批量写入并按结果选择状态码：
// 全部成功用 allOKStatus，全部失败 400，部分成功 207。
func (h *PublicDataHandler) bulkWrite(c *gin.Context, items []model.JSONMap, allOKStatus int, op func(model.JSONMap) (map[string]interface{}, error)) {
	if len(items) == 0 {
		respondError(c, errs.Validationf("bulk payload must not be empty"))
		return
	}

	succeeded := make([]map[string]interface{}, 0, len(items))
	itemErrors := make([]BulkItemError, 0)
	for i, item := range items {
		out, err := op(item)
		if err != nil {
			itemErrors = append(itemErrors, BulkItemError{Index: i, Error: err.Error(), Data: item})
			continue
		}
		succeeded = append(succeeded, out)
	}

	status := allOKStatus
	switch {
	case len(succeeded) == 0:
		status = http.StatusBadRequest
	case len(itemErrors) > 0:
		status = http.StatusMultiStatus
	}

	c.JSON(status, gin.H{
		"success": len(itemErrors) == 0,
		"data":    succeeded,
		"meta": BulkMeta{
			Total:     len(items),
			Succeeded: len(succeeded),
			Failed:    len(itemErrors),
		},
		"errors": itemErrors,
	})
}

func (h *PublicDataHandler) recordID(c *gin.Context) string {
	if id := c.Param("recordId"); id != "" {
		return id
	}
	return c.Query("id")
}

// parsePublicQuery 解析分页参数，并把其余查询参数按字段类型转换为等值过滤。
func (h *PublicDataHandler) parsePublicQuery(c *gin.Context, m *model.ModelDefinition) (*model.ListRecordsQuery, error) {
	query := &model.ListRecordsQuery{Filter: map[string]interface{}{}}
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errs.FieldValidationf("page", "page must be an integer")
		}
		query.Page = n
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errs.FieldValidationf("limit", "limit must be an integer")
		}
		query.Limit = n
	}

	for key, values := range c.Request.URL.Query() {
		if reservedQueryParams[key] || len(values) == 0 {
			continue
		}
		def, ok := m.Fields[key]
		if !ok {
			return nil, errs.FieldValidationf(key, "filter field '%s' is not defined in the model", key)
		}
		coerced, err := coerceQueryValue(key, def.Type, values[0])
		if err != nil {
			return nil, err
		}
		query.Filter[key] = coerced
	}
	return query, nil
}

// coerceQueryValue 把查询参数字符串转换为字段声明的类型。
func coerceQueryValue(field, fieldType, raw string) (interface{}, error) {
	switch fieldType {
	case model.FieldTypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errs.FieldValidationf(field, "filter value of '%s' must be a number", field)
		}
		return n, nil
	case model.FieldTypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errs.FieldValidationf(field, "filter value of '%s' must be a boolean", field)
		}
		return b, nil
	default:
		return raw, nil
	}
}

// readObjectOrArray 读取请求体并判断它是单个对象还是对象数组。
func readObjectOrArray(c *gin.Context) (model.JSONMap, []model.JSONMap, error) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, nil, errs.Validationf("failed to read request body")
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil, errs.Validationf("request body must not be empty")
	}

	if trimmed[0] == '[' {
		var items []model.JSONMap
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, nil, errs.Validationf("request body must be a JSON object or an array of objects")
		}
		return nil, items, nil
	}

	var single model.JSONMap
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, nil, errs.Validationf("request body must be a JSON object or an array of objects")
	}
	return single, nil, nil
}
