package handlers

import (
	"context"

	"AlertDesk/internal/models"
	"AlertDesk/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func createType[T any](h *Handlers, c *gin.Context, fn func(context.Context, *gorm.DB, models.Identity, models.TypeRequest) (*T, error)) {
	var req models.TypeRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := fn(c.Request.Context(), h.db, identity(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "type created", t)
}

func listTypes[T any](h *Handlers, c *gin.Context, fn func(context.Context, *gorm.DB, models.Identity) ([]T, error)) {
	list, err := fn(c.Request.Context(), h.db, identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "types", list)
}

func getType[T any](h *Handlers, c *gin.Context, fn func(context.Context, *gorm.DB, models.Identity, uint) (*T, error)) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	t, err := fn(c.Request.Context(), h.db, identity(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "type", t)
}

func updateType[T any](h *Handlers, c *gin.Context, fn func(context.Context, *gorm.DB, models.Identity, uint, models.TypeUpdate) (*T, error)) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req models.TypeUpdate
	if !bindJSON(c, &req) {
		return
	}
	t, err := fn(c.Request.Context(), h.db, identity(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "type updated", t)
}

// deleteType 引用该类型的记录会被置空
func deleteType(h *Handlers, c *gin.Context, fn func(context.Context, *gorm.DB, models.Identity, uint) error) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), h.db, identity(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "type deleted", nil)
}

func (h *Handlers) handleListBeneficiaryTypes(c *gin.Context) {
	listTypes(h, c, models.ListBeneficiaryTypes)
}

func (h *Handlers) handleGetBeneficiaryType(c *gin.Context) {
	getType(h, c, models.GetBeneficiaryType)
}

func (h *Handlers) handleCreateBeneficiaryType(c *gin.Context) {
	createType(h, c, models.CreateBeneficiaryType)
}

func (h *Handlers) handleUpdateBeneficiaryType(c *gin.Context) {
	updateType(h, c, models.UpdateBeneficiaryType)
}

func (h *Handlers) handleDeleteBeneficiaryType(c *gin.Context) {
	deleteType(h, c, models.DeleteBeneficiaryType)
}

func (h *Handlers) handleListAlertTypes(c *gin.Context) {
	listTypes(h, c, models.ListAlertTypes)
}

func (h *Handlers) handleGetAlertType(c *gin.Context) {
	getType(h, c, models.GetAlertType)
}

func (h *Handlers) handleCreateAlertType(c *gin.Context) {
	createType(h, c, models.CreateAlertType)
}

func (h *Handlers) handleUpdateAlertType(c *gin.Context) {
	updateType(h, c, models.UpdateAlertType)
}

func (h *Handlers) handleDeleteAlertType(c *gin.Context) {
	deleteType(h, c, models.DeleteAlertType)
}
