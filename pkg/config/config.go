package config

import (
	"log"
	"os"
	"time"

	"AlertDesk/pkg/cache"
	constants "AlertDesk/pkg/constant"
	"AlertDesk/pkg/logger"
	"AlertDesk/pkg/pubsub"
	"AlertDesk/pkg/util"
)

// Config is loaded once from the environment at startup.
type Config struct {
	DBDriver      string `env:"DB_DRIVER"`
	DSN           string `env:"DSN"`
	Log           logger.LogConfig
	Addr          string `env:"ADDR"`
	Mode          string `env:"MODE"`
	APIPrefix     string `env:"API_PREFIX"`
	SessionSecret string `env:"SESSION_SECRET"`
	Language      string `env:"LANGUAGE"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTAccessTTL  time.Duration `env:"JWT_ACCESS_TTL"`
	JWTRefreshTTL time.Duration `env:"JWT_REFRESH_TTL"`
	WSTicketTTL   time.Duration `env:"WS_TICKET_TTL"`

	Cache cache.Config
	Bus   pubsub.Config

	SMSSigningSecret string `env:"SMS_SIGNING_SECRET"`
	SMSRate          string `env:"SMS_RATE"`
	APIRate          string `env:"API_RATE"`

	// 按路由模板覆盖 API_RATE，如 "/api/alerts=120-M"
	APIRouteRates map[string]string `env:"API_ROUTE_RATES"`
	SMSAllowCIDRs []string          `env:"SMS_ALLOW_CIDRS"`
	RateDenyCIDRs []string          `env:"RATE_LIMIT_DENY_CIDRS"`

	AuditEnabled bool   `env:"AUDIT_ENABLED"`
	GeoIPPath    string `env:"GEOIP_PATH"`

	MetricsPath    string `env:"METRICS_PATH"`
	StatsSchedule  string `env:"STATS_SCHEDULE"`
	SearchEnabled  bool   `env:"SEARCH_ENABLED"`
	SearchPath     string `env:"SEARCH_INDEX_PATH"`
	GRPCAddr       string `env:"GRPC_ADDR"`
	BackupEnabled  bool   `env:"BACKUP_ENABLED"`
	BackupPath     string `env:"BACKUP_PATH"`
	BackupSchedule string `env:"BACKUP_SCHEDULE"`
	BackupUpload   bool   `env:"BACKUP_UPLOAD"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv(constants.EnvAppEnv)
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = FromEnv()
	return nil
}

// FromEnv reads the configuration without touching .env files.
func FromEnv() *Config {
	return &Config{
		DBDriver:      util.GetEnv("DB_DRIVER"),
		DSN:           util.GetEnv("DSN"),
		Addr:          util.GetEnvOr("ADDR", constants.DefaultAddr),
		Mode:          util.GetEnv("MODE"),
		APIPrefix:     util.GetEnvOr("API_PREFIX", constants.DefaultAPIPrefix),
		SessionSecret: util.GetEnv("SESSION_SECRET"),
		Language:      util.GetEnvOr("LANGUAGE", constants.DefaultLanguage),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		JWTSecret:     util.GetEnv("JWT_SECRET"),
		JWTAccessTTL:  util.GetDurationEnv("JWT_ACCESS_TTL", 30*time.Minute),
		JWTRefreshTTL: util.GetDurationEnv("JWT_REFRESH_TTL", 24*time.Hour),
		WSTicketTTL:   util.GetDurationEnv("WS_TICKET_TTL", time.Minute),
		Cache: cache.Config{
			Type: util.GetEnvOr("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:         util.GetEnvOr("REDIS_ADDR", "localhost:6379"),
				Password:     util.GetEnv("REDIS_PASSWORD"),
				DB:           int(util.GetIntEnv("REDIS_DB")),
				PoolSize:     int(util.GetIntEnv("REDIS_POOL_SIZE")),
				MinIdleConns: int(util.GetIntEnv("REDIS_MIN_IDLE_CONNS")),
				DialTimeout:  util.GetDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
				ReadTimeout:  util.GetDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
				WriteTimeout: util.GetDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			},
			Local: cache.LocalConfig{
				MaxSize:           int(util.GetIntEnv("LOCAL_CACHE_MAX_SIZE")),
				DefaultExpiration: util.GetDurationEnv("LOCAL_CACHE_DEFAULT_EXPIRATION", 5*time.Minute),
				CleanupInterval:   util.GetDurationEnv("LOCAL_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
			},
		},
		Bus: pubsub.Config{
			Type:          util.GetEnvOr("BUS_TYPE", pubsub.TypeMemory),
			BufferSize:    int(util.GetIntEnv("BUS_BUFFER_SIZE")),
			ChannelPrefix: util.GetEnvOr("BUS_CHANNEL_PREFIX", pubsub.DefaultChannelPrefix),
		},
		SMSSigningSecret: util.GetEnv("SMS_SIGNING_SECRET"),
		SMSRate:          util.GetEnvOr("SMS_RATE", "60-M"),
		APIRate:          util.GetEnvOr("API_RATE", "600-M"),
		APIRouteRates:    util.GetMapEnv("API_ROUTE_RATES"),
		SMSAllowCIDRs:    util.GetListEnv("SMS_ALLOW_CIDRS"),
		RateDenyCIDRs:    util.GetListEnv("RATE_LIMIT_DENY_CIDRS"),
		AuditEnabled:     util.GetBoolEnv("AUDIT_ENABLED"),
		GeoIPPath:        util.GetEnv("GEOIP_PATH"),
		MetricsPath:      util.GetEnvOr("METRICS_PATH", "/metrics"),
		StatsSchedule:    util.GetEnvOr("STATS_SCHEDULE", "@every 1m"),
		SearchEnabled:    util.GetBoolEnv("SEARCH_ENABLED"),
		SearchPath:       util.GetEnv("SEARCH_INDEX_PATH"),
		GRPCAddr:         util.GetEnv("GRPC_ADDR"),
		BackupEnabled:    util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:       util.GetEnvOr("BACKUP_PATH", "backups"),
		BackupSchedule:   util.GetEnvOr("BACKUP_SCHEDULE", "0 3 * * *"),
		BackupUpload:     util.GetBoolEnv("BACKUP_UPLOAD"),
	}
}

// UsesRedis reports whether any component needs a shared redis client.
func (c *Config) UsesRedis() bool {
	return c.Cache.Type == "redis" || c.Bus.Type == pubsub.TypeRedis
}
