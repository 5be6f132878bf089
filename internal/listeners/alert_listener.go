package listeners

import (
	"context"
	"time"

	"AlertDesk/internal/models"
	"AlertDesk/pkg/logger"
	"AlertDesk/pkg/metrics"
	"AlertDesk/pkg/pubsub"
	"AlertDesk/pkg/util"

	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// InitAlertListeners broadcasts every created alert to its organization.
// Publishing is best effort: a failure is logged and the alert stays created.
func InitAlertListeners(bus pubsub.Bus) {
	util.Sig().Connect(models.SigAlertCreated, func(sender any, params ...any) {
		alert, ok := sender.(*models.Alert)
		if !ok {
			return
		}
		source := ""
		if len(params) > 0 {
			source, _ = params[0].(string)
		}
		if m := metrics.Global(); m != nil {
			m.RecordAlertIngested(source)
		}

		payload, err := models.MarshalAlert(alert)
		if err != nil {
			logger.Error("render alert failed", zap.Uint("alert", alert.ID), zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		topic := pubsub.OrganizationTopic(alert.OrganizationID)
		if err := bus.Publish(ctx, topic, payload); err != nil {
			logger.Warn("publish alert failed", zap.Uint("alert", alert.ID), zap.String("topic", topic), zap.Error(err))
			return
		}
		logger.Info("alert created",
			zap.Uint("alert", alert.ID),
			zap.Uint("organization", alert.OrganizationID),
			zap.String("source", source),
		)
	})
}
