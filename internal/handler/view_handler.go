package handler

import (
	"infinity-go/internal/errs"
	"infinity-go/internal/middleware"
	"infinity-go/internal/model"
	"infinity-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ViewHandler 负责处理保存视图管理的 API 请求。
type ViewHandler struct {
	schemaService service.SchemaService
	viewService   service.ViewService
}

// NewViewHandler 创建一个新的 ViewHandler 实例。
func NewViewHandler(schemaService service.SchemaService, viewService service.ViewService) *ViewHandler {
	return &ViewHandler{schemaService: schemaService, viewService: viewService}
}

// Create 在模型下创建一个视图。
func (h *ViewHandler) Create(c *gin.Context) {
	ownerID := middleware.CurrentUserID(c)
	m, err := h.schemaService.GetModel(c.Request.Context(), c.Param("modelId"), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}

	var input model.CreateViewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errs.Validationf("invalid request payload"))
		return
	}

	v, err := h.viewService.CreateView(c.Request.Context(), m, ownerID, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, v)
}

// List 返回模型下调用者可见的全部视图。
func (h *ViewHandler) List(c *gin.Context) {
	ownerID := middleware.CurrentUserID(c)
	m, err := h.schemaService.GetModel(c.Request.Context(), c.Param("modelId"), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}

	views, err := h.viewService.ListViews(c.Request.Context(), m, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, views)
}

// GetDefault 返回调用者在模型下的默认视图。
func (h *ViewHandler) GetDefault(c *gin.Context) {
	ownerID := middleware.CurrentUserID(c)
	m, err := h.schemaService.GetModel(c.Request.Context(), c.Param("modelId"), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}

	v, err := h.viewService.GetDefaultView(c.Request.Context(), m, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, v)
}

// Get 返回一个视图。
func (h *ViewHandler) Get(c *gin.Context) {
	v, err := h.viewService.GetView(c.Request.Context(), c.Param("viewId"), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, v)
}

// Update 局部更新一个视图。
func (h *ViewHandler) Update(c *gin.Context) {
	var input model.UpdateViewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errs.Validationf("invalid request payload"))
		return
	}

	v, err := h.viewService.UpdateView(c.Request.Context(), c.Param("viewId"), middleware.CurrentUserID(c), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, v)
}

// Delete 删除一个视图。删除默认视图需要 ?replacement= 指定接替者。
func (h *ViewHandler) Delete(c *gin.Context) {
	err := h.viewService.DeleteView(
		c.Request.Context(),
		c.Param("viewId"),
		middleware.CurrentUserID(c),
		c.Query("replacement"),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "view deleted"})
}
