package websocket

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// CallerFunc extracts the authenticated caller set by the auth middleware.
type CallerFunc func(c *gin.Context) (Caller, bool)

// Handler WebSocket HTTP处理器
type Handler struct {
	hub    *Hub
	caller CallerFunc
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(hub *Hub, caller CallerFunc) *Handler {
	return &Handler{
		hub:    hub,
		caller: caller,
	}
}

// RegisterRoutes 统一注册路由，auth 中间件挂在会话路由之前
func RegisterRoutes(r gin.IRouter, handler *Handler, auth ...gin.HandlerFunc) {
	r.GET(RouteAlerts, chain(auth, handler.HandleAlerts)...)
	r.GET(RouteStats, chain(auth, handler.GetStats)...)
	r.GET(RouteHealth, handler.HealthCheck)
}

func chain(mw []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}

// HandleAlerts 加入组织告警频道
func (h *Handler) HandleAlerts(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrNotAuthenticated})
		return
	}

	organizationID, err := strconv.ParseUint(c.Param("organization_id"), 10, 64)
	if err != nil || organizationID == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": ErrUnknownOrganization})
		return
	}

	// Serve writes the rejection itself when admission fails
	if _, err := h.hub.Serve(c.Writer, c.Request, caller, uint(organizationID)); err != nil {
		c.Abort()
	}
}

// GetStats 获取WebSocket统计信息，只统计调用者自己的组织
func (h *Handler) GetStats(c *gin.Context) {
	stats := gin.H{
		"total_connections":  h.hub.GetConnectionCount(),
		"max_connections":    h.hub.config.MaxConnections,
		"heartbeat_interval": h.hub.config.HeartbeatInterval.String(),
		"connection_timeout": h.hub.config.ConnectionTimeout.String(),
		"enable_compression": h.hub.config.EnableCompression,
		"max_message_size":   h.hub.config.MaxMessageSize,
	}
	if caller, ok := h.caller(c); ok {
		stats["organization"] = caller.OrganizationID
		stats["organization_connections"] = h.hub.GetOrganizationSessions(caller.OrganizationID)
	}

	c.JSON(http.StatusOK, stats)
}

// HealthCheck WebSocket健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	if !h.hub.Running() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  ErrHubClosed.Error(),
		})
		return
	}

	totalConnections := h.hub.GetConnectionCount()
	maxConnections := h.hub.config.MaxConnections

	status := "healthy"
	if totalConnections >= maxConnections*9/10 { // 90%以上认为警告
		status = "warning"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"total_connections": totalConnections,
		"max_connections":   maxConnections,
		"connection_usage":  float64(totalConnections) / float64(maxConnections) * 100,
		"hub_running":       true,
		"timestamp":         time.Now().Unix(),
	})
}
