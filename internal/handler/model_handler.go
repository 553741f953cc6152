package handler

import (
	"infinity-go/internal/errs"
	"infinity-go/internal/middleware"
	"infinity-go/internal/model"
	"infinity-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ModelHandler 负责处理模型定义管理的 API 请求。
type ModelHandler struct {
	schemaService service.SchemaService
}

// NewModelHandler 创建一个新的 ModelHandler 实例。
func NewModelHandler(schemaService service.SchemaService) *ModelHandler {
	return &ModelHandler{schemaService: schemaService}
}

// Create 创建一份模型定义。
func (h *ModelHandler) Create(c *gin.Context) {
	var input model.CreateModelInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errs.Validationf("invalid request payload"))
		return
	}

	m, err := h.schemaService.CreateModel(c.Request.Context(), middleware.CurrentUserID(c), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, m)
}

// List 返回当前用户的全部模型定义。
func (h *ModelHandler) List(c *gin.Context) {
	models, err := h.schemaService.ListModels(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, models)
}

// Get 返回一份模型定义。
func (h *ModelHandler) Get(c *gin.Context) {
	m, err := h.schemaService.GetModel(c.Request.Context(), c.Param("modelId"), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, m)
}

// Update 局部更新一份模型定义。
func (h *ModelHandler) Update(c *gin.Context) {
	var input model.UpdateModelInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errs.Validationf("invalid request payload"))
		return
	}

	m, err := h.schemaService.UpdateModel(c.Request.Context(), c.Param("modelId"), middleware.CurrentUserID(c), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, m)
}

// Delete 删除一份模型定义及其名下的全部数据。
func (h *ModelHandler) Delete(c *gin.Context) {
	if err := h.schemaService.DeleteModel(c.Request.Context(), c.Param("modelId"), middleware.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "model deleted"})
}

// Archive 归档模型：数据保留但拒绝写入。
func (h *ModelHandler) Archive(c *gin.Context) {
	m, err := h.schemaService.ArchiveModel(c.Request.Context(), c.Param("modelId"), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, m)
}

// Restore 恢复已归档的模型。
func (h *ModelHandler) Restore(c *gin.Context) {
	m, err := h.schemaService.RestoreModel(c.Request.Context(), c.Param("modelId"), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, m)
}
