package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"infinity-go/internal/errs"
	"infinity-go/internal/middleware"
	"infinity-go/internal/model"
	"infinity-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DataHandler 负责处理登录用户数据记录的 API 请求。
type DataHandler struct {
	schemaService service.SchemaService
	recordService service.RecordService
}

// NewDataHandler 创建一个新的 DataHandler 实例。
func NewDataHandler(schemaService service.SchemaService, recordService service.RecordService) *DataHandler {
	return &DataHandler{schemaService: schemaService, recordService: recordService}
}

// SearchRequest 定义了语义检索 API 的请求体结构。
type SearchRequest struct {
	Query         string  `json:"query" binding:"required"`
	Limit         int     `json:"limit"`
	MinSimilarity float64 `json:"minSimilarity"`
}

// recordPayload 是私有数据 API 的写请求体，字段载荷包在 fields 里。
type recordPayload struct {
	Fields model.JSONMap `json:"fields" binding:"required"`
}

func (h *DataHandler) resolveModel(c *gin.Context) (*model.ModelDefinition, bool) {
	m, err := h.schemaService.GetModel(c.Request.Context(), c.Param("modelId"), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return m, true
}

// recordID 取路径参数里的记录 id，没有就退回 ?id=。
func (h *DataHandler) recordID(c *gin.Context) (string, bool) {
	id := c.Param("recordId")
	if id == "" {
		id = c.Query("id")
	}
	if id == "" {
		respondError(c, errs.FieldValidationf("id", "record id is required"))
		return "", false
	}
	return id, true
}

// Create 创建一条记录。
func (h *DataHandler) Create(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}

	var payload recordPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errs.FieldValidationf("fields", "request body must wrap the record in a 'fields' object"))
		return
	}

	rec, err := h.recordService.CreateRecord(c.Request.Context(), m, payload.Fields)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, rec.ToAPI())
}

// List 分页列出记录。?id= 给出时退化为单条读取。
func (h *DataHandler) List(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}

	// 单条读取的捷径
	if id := c.Query("id"); id != "" {
		rec, err := h.recordService.GetRecord(c.Request.Context(), m, id)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, rec.ToAPI())
		return
	}

	query, err := parseListQuery(c)
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

// Get 返回一条记录。
func (h *DataHandler) Get(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}

	rec, err := h.recordService.GetRecord(c.Request.Context(), m, c.Param("recordId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rec.ToAPI())
}

// Replace 整体替换一条记录（PUT 语义）。
func (h *DataHandler) Replace(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}
	id, ok := h.recordID(c)
	if !ok {
		return
	}

	var payload recordPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errs.FieldValidationf("fields", "request body must wrap the record in a 'fields' object"))
		return
	}

	rec, err := h.recordService.ReplaceRecord(c.Request.Context(), m, id, payload.Fields)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rec.ToAPI())
}

// Patch 合并更新一条记录（PATCH 语义）。
func (h *DataHandler) Patch(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}
	id, ok := h.recordID(c)
	if !ok {
		return
	}

	var payload recordPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errs.FieldValidationf("fields", "request body must wrap the record in a 'fields' object"))
		return
	}

	rec, err := h.recordService.PatchRecord(c.Request.Context(), m, id, payload.Fields)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rec.ToAPI())
}

// Delete 删除一条记录，成功返回 204。
func (h *DataHandler) Delete(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}
	id, ok := h.recordID(c)
	if !ok {
		return
	}

	if err := h.recordService.DeleteRecord(c.Request.Context(), m, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Search 对模型的记录做语义相似度检索。
func (h *DataHandler) Search(c *gin.Context) {
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

// Clear 清空模型的全部记录，模型定义与视图保留。
func (h *DataHandler) Clear(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}

	deleted, err := h.recordService.ClearData(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": deleted})
}

// Export 把模型的全部记录快照到对象存储，返回下载链接。
func (h *DataHandler) Export(c *gin.Context) {
	m, ok := h.resolveModel(c)
	if !ok {
		return
	}

	url, err := h.recordService.ExportRecords(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"url": url})
}

// parseListQuery 解析分页参数和 filter 查询参数（JSON 对象字符串）。
func parseListQuery(c *gin.Context) (*model.ListRecordsQuery, error) {
	query := &model.ListRecordsQuery{}
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
	if raw := c.Query("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &query.Filter); err != nil {
			return nil, errs.FieldValidationf("filter", "filter must be a JSON object")
		}
	}
	return query, nil
}

func recordsToAPI(recs []*model.DataRecord) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ToAPI())
	}
	return out
}
