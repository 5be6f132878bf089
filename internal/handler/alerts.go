package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"AlertDesk/internal/models"
	apperrors "AlertDesk/pkg/errors"
	"AlertDesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// coordinate accepts a JSON number or a numeric string.
type coordinate float64

func (c *coordinate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var raw any = string(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return apperrors.WithKindf(apperrors.KindValidation, "%s is not a valid coordinate", b)
	}
	*c = coordinate(v)
	return nil
}

type createAlertRequest struct {
	Telephone  string      `json:"telephone" binding:"required"`
	Latitude   *coordinate `json:"latitude" binding:"required"`
	Longitude  *coordinate `json:"longitude" binding:"required"`
	MessageSID string      `json:"message_sid"`
}

func (h *Handlers) handleListAlerts(c *gin.Context) {
	var filter models.AlertFilter
	if raw := c.Query("state"); raw != "" {
		st, err := models.ParseAlertState(raw)
		if err != nil {
			response.Error(c, err)
			return
		}
		filter.State = &st
	}
	var err error
	if filter.BeneficiaryID, err = queryUint(c, "beneficiary_id"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.TypeID, err = queryUint(c, "type_id"); err != nil {
		response.Error(c, err)
		return
	}

	alerts, err := models.ListAlerts(c.Request.Context(), h.db, identity(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "alerts", models.RenderAlerts(alerts))
}

// handleCreateAlert API 接入：电话号码 + 坐标
func (h *Handlers) handleCreateAlert(c *gin.Context) {
	var req createAlertRequest
	if !bindJSON(c, &req) {
		return
	}
	alert, created, err := models.IngestAlert(c.Request.Context(), h.db, models.IngestRequest{
		Telephone:      strings.TrimSpace(req.Telephone),
		Latitude:       float64(*req.Latitude),
		Longitude:      float64(*req.Longitude),
		MessageSID:     strings.TrimSpace(req.MessageSID),
		Source:         models.SourceAPI,
		OrganizationID: identity(c).OrganizationID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.renderIngested(c, alert, created)
}

// renderIngested answers 201 for a new alert and 200 for a repeated
// correlation id.
func (h *Handlers) renderIngested(c *gin.Context, alert *models.Alert, created bool) {
	payload := models.RenderAlert(alert)
	if created {
		response.Created(c, "alert created", payload)
		return
	}
	c.JSON(http.StatusOK, response.Body{Code: http.StatusOK, Msg: "alert already received", Data: payload})
}

func (h *Handlers) handleGetAlert(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	alert, err := models.GetAlert(c.Request.Context(), h.db, identity(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "alert", models.RenderAlert(alert))
}

// handleUpdateAlert 状态机 + observations / type_id
func (h *Handlers) handleUpdateAlert(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req models.AlertUpdate
	if !bindJSON(c, &req) {
		return
	}
	alert, err := models.ApplyAlertUpdate(c.Request.Context(), h.db, identity(c), id, req)
	if req.State != nil && h.deps.Metrics != nil {
		h.deps.Metrics.RecordTransition(strings.ToUpper(strings.TrimSpace(*req.State)), err == nil)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "alert updated", models.RenderAlert(alert))
}
