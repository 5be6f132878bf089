package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	constants "AlertDesk/pkg/constant"
	"AlertDesk/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OperationLog 记录用户操作日志
type OperationLog struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"index" json:"user_id"`              // 操作的用户 ID，匿名 webhook 为 0
	Username        string    `gorm:"size:128" json:"username"`          // 操作的用户名
	OrganizationID  uint      `gorm:"index" json:"organization_id"`      // 操作者所在组织
	Action          string    `gorm:"size:8" json:"action"`              // HTTP 方法
	Target          string    `gorm:"size:255" json:"target"`            // 路由模板
	Path            string    `gorm:"size:255" json:"path"`              // 实际路径
	Status          int       `json:"status"`                            // 响应状态码
	IPAddress       string    `gorm:"size:64" json:"ip_address"`         // 用户 IP 地址
	UserAgent       string    `gorm:"size:255" json:"user_agent"`        // 用户的浏览器信息
	Referer         string    `gorm:"size:255" json:"referer"`           // 请求来源页面
	Device          string    `gorm:"size:64" json:"device"`             // 用户设备
	Browser         string    `gorm:"size:64" json:"browser"`            // 浏览器信息
	OperatingSystem string    `gorm:"size:64" json:"operating_system"`   // 操作系统
	Location        string    `gorm:"size:128" json:"location"`          // 用户的地理位置
	DurationMs      int64     `json:"duration_ms"`                       // 处理耗时
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// Actor identifies who performed a request.
type Actor struct {
	UserID         uint
	Username       string
	OrganizationID uint
}

// ActorFunc reads the authenticated actor, if any, after the handler ran.
type ActorFunc func(c *gin.Context) (Actor, bool)

// GeoLocator resolves an IP to a city name.
type GeoLocator struct {
	reader *geoip2.Reader
}

// OpenGeoLocator opens a GeoLite2 City database. Lookups on a nil locator
// return "".
func OpenGeoLocator(path string) (*GeoLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoLocator{reader: reader}, nil
}

func (g *GeoLocator) City(address string) string {
	if g == nil || g.reader == nil {
		return ""
	}
	ip := net.ParseIP(address)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() {
		return ""
	}
	record, err := g.reader.City(ip)
	if err != nil {
		return ""
	}
	city := record.City.Names["en"]
	if country := record.Country.IsoCode; country != "" {
		if city == "" {
			return country
		}
		return city + ", " + country
	}
	return city
}

func (g *GeoLocator) Close() error {
	if g == nil || g.reader == nil {
		return nil
	}
	return g.reader.Close()
}

type OperationLogConfig struct {
	Actor ActorFunc
	Geo   *GeoLocator
	// SkipPaths 前缀匹配
	SkipPaths []string
}

// OperationLogMiddleware 记录写操作的审计日志。写库失败只记日志，不影响请求。
func OperationLogMiddleware(cfg OperationLogConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			return
		}
		for _, p := range cfg.SkipPaths {
			if p != "" && strings.HasPrefix(c.Request.URL.Path, p) {
				return
			}
		}
		v, ok := c.Get(constants.DbField)
		if !ok {
			return
		}
		db := v.(*gorm.DB)

		entry := NewOperationLog(c, cfg, time.Since(start))
		if err := db.WithContext(c.Request.Context()).Create(entry).Error; err != nil {
			logger.Warn("record operation log failed", zap.String("path", entry.Path), zap.Error(err))
		}
	}
}

// NewOperationLog builds the audit entry of a finished request.
func NewOperationLog(c *gin.Context, cfg OperationLogConfig, cost time.Duration) *OperationLog {
	ua := user_agent.New(c.GetHeader("User-Agent"))
	browser, version := ua.Browser()
	device := "desktop"
	if ua.Mobile() {
		device = "mobile"
	} else if ua.Bot() {
		device = "bot"
	}

	target := c.FullPath()
	if target == "" {
		target = c.Request.URL.Path
	}
	entry := &OperationLog{
		Action:          c.Request.Method,
		Target:          truncate(target, 255),
		Path:            truncate(c.Request.URL.Path, 255),
		Status:          c.Writer.Status(),
		IPAddress:       c.ClientIP(),
		UserAgent:       truncate(c.GetHeader("User-Agent"), 255),
		Referer:         truncate(c.GetHeader("Referer"), 255),
		Device:          device,
		Browser:         truncate(strings.TrimSpace(browser+" "+version), 64),
		OperatingSystem: truncate(ua.OS(), 64),
		Location:        cfg.Geo.City(c.ClientIP()),
		DurationMs:      cost.Milliseconds(),
	}
	if cfg.Actor != nil {
		if actor, ok := cfg.Actor(c); ok {
			entry.UserID = actor.UserID
			entry.Username = actor.Username
			entry.OrganizationID = actor.OrganizationID
		}
	}
	return entry
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ListOperationLogs returns the newest audit entries of one organization.
func ListOperationLogs(db *gorm.DB, organizationID uint, limit int) ([]OperationLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []OperationLog
	err := db.Where("organization_id = ?", organizationID).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
