// Package bootstrap wires configuration, storage, the notification bus and
// the HTTP surface into a runnable server.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	handlers "AlertDesk/internal/handler"
	"AlertDesk/internal/jobs"
	"AlertDesk/internal/listeners"
	"AlertDesk/internal/models"
	"AlertDesk/pkg/backup"
	"AlertDesk/pkg/cache"
	"AlertDesk/pkg/config"
	"AlertDesk/pkg/grpcx"
	"AlertDesk/pkg/i18n"
	"AlertDesk/pkg/logger"
	"AlertDesk/pkg/metrics"
	"AlertDesk/pkg/middleware"
	"AlertDesk/pkg/pubsub"
	"AlertDesk/pkg/response"
	"AlertDesk/pkg/scheduler"
	"AlertDesk/pkg/search"
	"AlertDesk/pkg/sse"
	"AlertDesk/pkg/storage"
	"AlertDesk/pkg/util"
	"AlertDesk/pkg/websocket"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// App holds every long lived component of a running server.
type App struct {
	Cfg     *config.Config
	DB      *gorm.DB
	Redis   *redis.Client
	Cache   cache.Cache
	Bus     pubsub.Bus
	Metrics *metrics.Metrics
	Monitor *metrics.SystemMonitor
	Search  search.Engine
	WSHub   *websocket.Hub
	SSEHub  *sse.Hub
	Cron    *scheduler.Cron
	Engine  *gin.Engine
	geo     *middleware.GeoLocator
}

// OpenDB connects to the configured database, defaulting to a local
// sqlite file. The defaults are written back to cfg for the backup job.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DBDriver == "" {
		cfg.DBDriver = util.DriverSQLite
	}
	if cfg.DSN == "" && cfg.DBDriver == util.DriverSQLite {
		cfg.DSN = "file:alertdesk.db"
	}
	return util.InitDatabase(os.Stdout, cfg.DBDriver, cfg.DSN)
}

// Migrate creates or updates the schema and exits.
func Migrate(cfg *config.Config) error {
	db, err := OpenDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := models.Migrate(db, &middleware.OperationLog{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migration finished", zap.String("driver", cfg.DBDriver))
	return nil
}

// New builds the application without starting any listener.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Cfg: cfg}
	var err error

	if app.DB, err = OpenDB(cfg); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err = models.Migrate(app.DB, &middleware.OperationLog{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	tr, err := i18n.NewI18nSupport(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("load translations: %w", err)
	}
	response.SetTranslator(tr)

	app.Metrics = metrics.NewMetrics()
	metrics.SetGlobal(app.Metrics)
	app.Monitor = metrics.NewSystemMonitor(60)

	if cfg.UsesRedis() {
		if app.Redis, err = cache.NewRedisClient(cfg.Cache.Redis); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}
	if app.Cache, err = cache.NewCache(cfg.Cache, app.Redis); err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	if app.Bus, err = pubsub.New(ctx, cfg.Bus, app.Redis, app.Metrics); err != nil {
		return nil, fmt.Errorf("init bus: %w", err)
	}

	listeners.InitUserListeners()
	listeners.InitAlertListeners(app.Bus)
	if cfg.SearchEnabled {
		app.Search, err = search.New(search.Config{
			IndexPath:           cfg.SearchPath,
			DefaultSearchFields: search.BeneficiaryFields,
		}, search.BuildIndexMapping(""))
		if err != nil {
			return nil, fmt.Errorf("open search index: %w", err)
		}
		listeners.InitSearchListeners(app.Search)
		if _, err := listeners.ReindexBeneficiaries(ctx, app.DB, app.Search); err != nil {
			logger.Warn("reindex beneficiaries failed", zap.Error(err))
		}
	}

	wsCfg := websocket.LoadConfigFromEnv()
	if err := websocket.ValidateConfig(wsCfg); err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	app.WSHub = websocket.NewHub(app.Bus, wsCfg).WithMetrics(app.Metrics)
	app.SSEHub = sse.NewHub(app.Bus, handlers.SSECaller, wsCfg.HeartbeatInterval).WithMetrics(app.Metrics)

	if err := app.initCron(); err != nil {
		return nil, err
	}
	if err := app.initEngine(tr); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) initCron() error {
	a.Cron = scheduler.NewCron(time.Local)
	opts := jobs.Options{StatsSchedule: a.Cfg.StatsSchedule}
	if a.Cfg.BackupEnabled {
		var store storage.Store
		if a.Cfg.BackupUpload {
			ms, err := storage.NewMinioStore()
			if err != nil {
				return fmt.Errorf("backup storage: %w", err)
			}
			store = ms
		}
		opts.Backup = backup.New(a.Cfg.DBDriver, a.Cfg.DSN, a.Cfg.BackupPath, store)
		opts.BackupSchedule = a.Cfg.BackupSchedule
	}
	return jobs.Register(a.Cron, a.DB, a.Metrics, a.Monitor, opts)
}

func (a *App) rateLimiter(cfg middleware.RateLimiterConfig, prefix string) (*middleware.RateLimiter, error) {
	var store limiter.Store
	if a.Redis != nil {
		s, err := middleware.NewRedisStore(a.Redis, prefix)
		if err != nil {
			return nil, err
		}
		store = s
	}
	cfg.AddHeaders = true
	return middleware.NewRateLimiter(cfg, store), nil
}

func (a *App) initEngine(tr *i18n.I18nSupport) error {
	cfg := a.Cfg
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	observer := middleware.NewPrometheusObserver(a.Metrics.Registry())
	smsLimiter, err := a.rateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.SMSRate,
		Identifier: middleware.IdentifierIP,
		AllowCIDRs: cfg.SMSAllowCIDRs,
		DenyCIDRs:  cfg.RateDenyCIDRs,
	}, "limiter:sms:")
	if err != nil {
		return fmt.Errorf("sms rate limiter: %w", err)
	}
	apiLimiter, err := a.rateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.APIRate,
		RouteRates: cfg.APIRouteRates,
		Identifier: middleware.IdentifierUser,
		DenyCIDRs:  cfg.RateDenyCIDRs,
	}, "limiter:api:")
	if err != nil {
		return fmt.Errorf("api rate limiter: %w", err)
	}
	smsLimiter.WithObserver(observer)
	apiLimiter.WithObserver(observer).WithUserKey(handlers.UserKey)

	var audit *middleware.OperationLogConfig
	if cfg.AuditEnabled {
		audit = &middleware.OperationLogConfig{Actor: handlers.AuditActor, SkipPaths: []string{cfg.APIPrefix + "/token"}}
		if cfg.GeoIPPath != "" {
			if a.geo, err = middleware.OpenGeoLocator(cfg.GeoIPPath); err != nil {
				logger.Warn("geoip database unavailable", zap.String("path", cfg.GeoIPPath), zap.Error(err))
			} else {
				audit.Geo = a.geo
			}
		}
	}

	engine := gin.New()
	engine.Use(logger.GinLogger(), logger.GinRecovery(true))
	engine.Use(metrics.MonitorMiddleware(a.Metrics))
	engine.Use(middleware.LanguageMiddleware(tr))
	secret := cfg.SessionSecret
	if secret == "" {
		secret = cfg.JWTSecret
	}
	engine.Use(sessions.Sessions("alertdesk", cookie.NewStore([]byte(secret))))

	tokens := models.NewTokenIssuer(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	h := handlers.NewHandlers(a.DB, cfg, handlers.Deps{
		Auth:        models.NewAuthenticator(a.DB, tokens, a.Cache),
		Tokens:      tokens,
		Search:      a.Search,
		Metrics:     a.Metrics,
		Monitor:     a.Monitor,
		WSHub:       a.WSHub,
		SSEHub:      a.SSEHub,
		SMSLimiter:  smsLimiter,
		APILimiter:  apiLimiter,
		Idempotency: a.Cache,
		Audit:       audit,
	})
	h.Register(engine)
	a.Engine = engine
	return nil
}

// Run serves HTTP (and gRPC health when configured) until ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{Addr: a.Cfg.Addr, Handler: a.Engine}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", a.Cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if a.Cfg.GRPCAddr != "" {
		go func() {
			probe := func(ctx context.Context) error {
				sqlDB, err := a.DB.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			}
			if err := grpcx.Serve(ctx, grpcx.ServerConfig{Addr: a.Cfg.GRPCAddr}, probe); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}
	a.Cron.Start()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}

// Close releases every component in reverse order of construction.
func (a *App) Close() {
	if a.Cron != nil {
		a.Cron.Stop()
	}
	if a.WSHub != nil {
		a.WSHub.Close()
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.Search != nil {
		_ = a.Search.Close()
	}
	if a.geo != nil {
		_ = a.geo.Close()
	}
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	logger.Sync()
}
