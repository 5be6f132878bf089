package handlers

import (
	"AlertDesk/internal/models"
	"AlertDesk/pkg/middleware"
	"AlertDesk/pkg/sse"
	"AlertDesk/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// WSCaller hands the authenticated identity to the websocket gateway.
func WSCaller(c *gin.Context) (websocket.Caller, bool) {
	id, ok := models.CurrentIdentity(c)
	if !ok {
		return websocket.Caller{}, false
	}
	return websocket.Caller{UserID: id.UserID, OrganizationID: id.OrganizationID}, true
}

func SSECaller(c *gin.Context) (sse.Caller, bool) {
	id, ok := models.CurrentIdentity(c)
	if !ok {
		return sse.Caller{}, false
	}
	return sse.Caller{UserID: id.UserID, OrganizationID: id.OrganizationID}, true
}

// UserKey keys the rate limiter by user id once authenticated.
func UserKey(c *gin.Context) string {
	if id, ok := models.CurrentIdentity(c); ok {
		return cast.ToString(id.UserID)
	}
	return ""
}

// AuditActor fills the operation log with the caller of the request.
func AuditActor(c *gin.Context) (middleware.Actor, bool) {
	u := models.CurrentUser(c)
	if u == nil {
		return middleware.Actor{}, false
	}
	return middleware.Actor{UserID: u.ID, Username: u.Email, OrganizationID: u.OrganizationID}, true
}

func (h *Handlers) registerLiveRoutes(engine *gin.Engine) {
	if h.deps.WSHub != nil {
		websocket.RegisterRoutes(engine, websocket.NewHandler(h.deps.WSHub, WSCaller), h.authRequired())
	}
	if h.deps.SSEHub != nil {
		engine.GET(sse.RouteAlerts, h.authRequired(), h.deps.SSEHub.Serve)
	}
}
