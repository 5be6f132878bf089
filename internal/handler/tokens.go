package handlers

import (
	"AlertDesk/internal/models"
	apperrors "AlertDesk/pkg/errors"
	"AlertDesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type obtainTokenRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshTokenRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// handleObtainToken 邮箱+密码换取 access/refresh
func (h *Handlers) handleObtainToken(c *gin.Context) {
	var req obtainTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := models.Authenticate(c.Request.Context(), h.db, req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	pair, err := h.deps.Tokens.Issue(user)
	if err != nil {
		response.Error(c, apperrors.Wrap(err, "issue token"))
		return
	}
	models.Login(c, user)
	response.Success(c, "token", pair)
}

func (h *Handlers) handleRefreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	access, err := h.deps.Tokens.Refresh(req.Refresh)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "token", gin.H{"access": access})
}

// handleWSTicket 浏览器无法设置 Authorization 头时使用一次性 uuid
func (h *Handlers) handleWSTicket(c *gin.Context) {
	ticket, err := h.deps.Auth.IssueWSTicket(c.Request.Context(), models.CurrentUser(c), h.cfg.WSTicketTTL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ticket", gin.H{"uuid": ticket})
}
