package handlers

import (
	"AlertDesk/internal/models"
	"AlertDesk/pkg/response"

	"github.com/gin-gonic/gin"
)

// handleRegisterAdmin 注册组织及其管理员
func (h *Handlers) handleRegisterAdmin(c *gin.Context) {
	var req models.RegisterRootRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := models.CreateRootUser(c.Request.Context(), h.db, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "admin registered", user)
}

func (h *Handlers) handleRegisterOperator(c *gin.Context) {
	var req models.RegisterOperatorRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := models.CreateOperator(c.Request.Context(), h.db, identity(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "operator registered", user)
}

func (h *Handlers) handleListUsers(c *gin.Context) {
	users, err := models.ListUsers(c.Request.Context(), h.db, identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "users", users)
}

func (h *Handlers) handleUserDetails(c *gin.Context) {
	response.Success(c, "user", models.CurrentUser(c))
}

func (h *Handlers) handleUpdateUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req models.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := models.UpdateUser(c.Request.Context(), h.db, identity(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "user updated", user)
}

func (h *Handlers) handleLogout(c *gin.Context) {
	models.Logout(c)
	response.Success(c, "logout", nil)
}
