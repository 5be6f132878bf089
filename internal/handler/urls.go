package handlers

import (
	"time"

	"AlertDesk/internal/models"
	"AlertDesk/pkg/cache"
	"AlertDesk/pkg/config"
	"AlertDesk/pkg/metrics"
	"AlertDesk/pkg/middleware"
	"AlertDesk/pkg/search"
	"AlertDesk/pkg/sse"
	"AlertDesk/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps are the collaborators built at startup. Nil members switch the
// matching feature off.
type Deps struct {
	Auth        *models.Authenticator
	Tokens      *models.TokenIssuer
	Search      search.Engine
	Metrics     *metrics.Metrics
	Monitor     *metrics.SystemMonitor
	WSHub       *websocket.Hub
	SSEHub      *sse.Hub
	SMSLimiter  *middleware.RateLimiter
	APILimiter  *middleware.RateLimiter
	Idempotency cache.Cache
	Audit       *middleware.OperationLogConfig
}

type Handlers struct {
	db   *gorm.DB
	cfg  *config.Config
	deps Deps
}

func NewHandlers(db *gorm.DB, cfg *config.Config, deps Deps) *Handlers {
	return &Handlers{
		db:   db,
		cfg:  cfg,
		deps: deps,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	r := engine.Group(h.cfg.APIPrefix)

	// Register Global Singleton DB
	r.Use(middleware.InjectDB(h.db))
	if h.deps.Audit != nil {
		r.Use(middleware.OperationLogMiddleware(*h.deps.Audit))
	}

	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerAuthRoutes(r)
	h.registerUserRoutes(r)
	h.registerBeneficiaryRoutes(r)
	h.registerTypeRoutes(r)
	h.registerAlertRoutes(r)
	h.registerSMSRoutes(r)

	h.registerLiveRoutes(engine)
	if h.deps.Metrics != nil && h.cfg.MetricsPath != "" {
		engine.GET(h.cfg.MetricsPath, gin.WrapH(h.deps.Metrics.Handler()))
	}
}

func (h *Handlers) authRequired() gin.HandlerFunc {
	return h.deps.Auth.Required()
}

// guard authenticates every route of g and, when configured, limits
// each user's request rate.
func (h *Handlers) guard(g *gin.RouterGroup) {
	g.Use(h.authRequired())
	if h.deps.APILimiter != nil {
		g.Use(h.deps.APILimiter.Middleware())
	}
}

// Token Module
func (h *Handlers) registerAuthRoutes(r *gin.RouterGroup) {
	token := r.Group("token")
	{
		token.POST("", h.handleObtainToken)

		token.POST("/refresh", h.handleRefreshToken)
	}

	r.POST("/ws/auth", h.authRequired(), h.handleWSTicket)
}

// User Module
func (h *Handlers) registerUserRoutes(r *gin.RouterGroup) {
	users := r.Group("users")
	{
		// register
		users.POST("/admin", h.handleRegisterAdmin)

		users.POST("/operator", h.authRequired(), models.AdminRequired, h.handleRegisterOperator)

		users.GET("", h.authRequired(), h.handleListUsers)

		users.GET("/details", h.authRequired(), h.handleUserDetails)

		// update
		users.PATCH("/:id", h.authRequired(), h.handleUpdateUser)

		// logout
		users.POST("/logout", h.authRequired(), h.handleLogout)
	}
}

func (h *Handlers) registerBeneficiaryRoutes(r *gin.RouterGroup) {
	g := r.Group("beneficiaries")
	h.guard(g)
	{
		g.GET("", h.handleListBeneficiaries)

		g.POST("", h.handleCreateBeneficiary)

		g.GET("/:id", h.handleGetBeneficiary)

		g.PATCH("/:id", h.handleUpdateBeneficiary)

		g.DELETE("/:id", h.handleDisableBeneficiary)
	}
}

func (h *Handlers) registerTypeRoutes(r *gin.RouterGroup) {
	bt := r.Group("beneficiary-types")
	h.guard(bt)
	{
		bt.GET("", h.handleListBeneficiaryTypes)
		bt.GET("/:id", h.handleGetBeneficiaryType)
		bt.POST("", models.AdminRequired, h.handleCreateBeneficiaryType)
		bt.PATCH("/:id", models.AdminRequired, h.handleUpdateBeneficiaryType)
		bt.DELETE("/:id", models.AdminRequired, h.handleDeleteBeneficiaryType)
	}

	at := r.Group("alert-types")
	h.guard(at)
	{
		at.GET("", h.handleListAlertTypes)
		at.GET("/:id", h.handleGetAlertType)
		at.POST("", models.AdminRequired, h.handleCreateAlertType)
		at.PATCH("/:id", models.AdminRequired, h.handleUpdateAlertType)
		at.DELETE("/:id", models.AdminRequired, h.handleDeleteAlertType)
	}
}

func (h *Handlers) registerAlertRoutes(r *gin.RouterGroup) {
	g := r.Group("alerts")
	h.guard(g)
	{
		g.GET("", h.handleListAlerts)

		create := []gin.HandlerFunc{}
		if h.deps.Idempotency != nil {
			create = append(create, middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{
				Store:  h.deps.Idempotency,
				TTL:    10 * time.Minute,
				Prefix: "idem:alerts:",
			}))
		}
		g.POST("", append(create, h.handleCreateAlert)...)

		g.GET("/:id", h.handleGetAlert)

		g.PATCH("/:id", h.handleUpdateAlert)
	}
}

func (h *Handlers) registerSMSRoutes(r *gin.RouterGroup) {
	chain := []gin.HandlerFunc{}
	if h.deps.SMSLimiter != nil {
		chain = append(chain, h.deps.SMSLimiter.Middleware())
	}
	chain = append(chain, middleware.SignVerifyMiddleware(h.cfg.SMSSigningSecret), h.handleSMSInbound)
	r.POST("/sms/inbound", chain...)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)

		system.GET("/operation-logs", h.authRequired(), models.AdminRequired, h.handleOperationLogs)
	}
}
