package listeners

import (
	"AlertDesk/internal/models"
	"AlertDesk/pkg/logger"
	"AlertDesk/pkg/util"

	"go.uber.org/zap"
)

func InitUserListeners() {
	// register initialized listener - audit trail for new accounts and logins
	util.Sig().Connect(models.SigUserCreate, func(sender any, params ...any) {
		user := sender.(*models.User)
		logger.Info("user registered",
			zap.Uint("user", user.ID),
			zap.String("email", user.Email),
			zap.String("role", user.Role),
			zap.Uint("organization", user.OrganizationID),
		)
	})

	util.Sig().Connect(models.SigUserLogin, func(sender any, params ...any) {
		user := sender.(*models.User)
		logger.Debug("user login", zap.Uint("user", user.ID))
	})
}
