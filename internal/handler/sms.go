package handlers

import (
	"AlertDesk/internal/models"
	apperrors "AlertDesk/pkg/errors"
	"AlertDesk/pkg/logger"
	"AlertDesk/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// smsInbound accepts the provider field names and lower case aliases, as
// a form post or JSON.
type smsInbound struct {
	From            string `json:"From" form:"From"`
	Body            string `json:"Body" form:"Body"`
	MessageSid      string `json:"MessageSid" form:"MessageSid"`
	Telephone       string `json:"telephone" form:"telephone"`
	BodyAlias       string `json:"body" form:"body"`
	MessageSidAlias string `json:"message_sid" form:"message_sid"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (r smsInbound) message() models.SMSMessage {
	return models.SMSMessage{
		From:       firstNonEmpty(r.From, r.Telephone),
		Body:       firstNonEmpty(r.Body, r.BodyAlias),
		MessageSID: firstNonEmpty(r.MessageSid, r.MessageSidAlias),
	}
}

// handleSMSInbound 短信网关回调
func (h *Handlers) handleSMSInbound(c *gin.Context) {
	var req smsInbound
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, apperrors.WithKind(apperrors.KindValidation, err.Error()))
		return
	}
	msg := req.message()
	alert, created, err := models.IngestSMS(c.Request.Context(), h.db, msg)
	if err != nil {
		logger.Info("sms rejected",
			zap.String("from", msg.From),
			zap.String("sid", msg.MessageSID),
			zap.String("kind", string(apperrors.KindOf(err))),
		)
		response.Error(c, err)
		return
	}
	h.renderIngested(c, alert, created)
}
