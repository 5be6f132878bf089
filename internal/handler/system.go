package handlers

import (
	"net/http"

	"AlertDesk/pkg/metrics"
	"AlertDesk/pkg/middleware"
	"AlertDesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if h.deps.Monitor != nil {
		stats := h.deps.Monitor.Latest()
		if stats == nil {
			stats = h.deps.Monitor.Collect()
		}
		body["system"] = stats
	} else {
		body["system"] = metrics.CollectSystemStats()
	}
	if h.deps.WSHub != nil {
		body["websocket_connections"] = h.deps.WSHub.GetConnectionCount()
	}

	// 检查数据库连接
	sqlDB, err := h.db.DB()
	if err != nil {
		body["status"], body["error"] = "unhealthy", "database connection failed"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		body["status"], body["error"] = "unhealthy", "database ping failed"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	// 返回健康状态
	c.JSON(http.StatusOK, body)
}

// handleOperationLogs 管理员查看本组织的写操作审计
func (h *Handlers) handleOperationLogs(c *gin.Context) {
	limit := cast.ToInt(c.DefaultQuery("limit", "100"))
	logs, err := middleware.ListOperationLogs(h.db.WithContext(c.Request.Context()), identity(c).OrganizationID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "operation logs", logs)
}
