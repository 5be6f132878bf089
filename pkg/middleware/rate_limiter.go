package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	IdentifierIP   = "ip"
	IdentifierUser = "user"
)

// RateLimiterConfig 限流配置
//
// Rate 使用 ulule 格式，如 "60-M"；RouteRates 按 gin 路由模板覆盖，
// 例如 {"/api/alerts": "120-M"}。AllowCIDRs 不限流（短信服务商出口），
// DenyCIDRs 直接拒绝。
type RateLimiterConfig struct {
	Rate       string
	RouteRates map[string]string
	Identifier string // ip|user
	AllowCIDRs []string
	DenyCIDRs  []string
	AddHeaders bool
}

// MetricsObserver receives one call per limited request.
type MetricsObserver interface {
	OnAllow(route string)
	OnDeny(route string)
}

// PrometheusObserver counts decisions per route template.
type PrometheusObserver struct {
	allow *prometheus.CounterVec
	deny  *prometheus.CounterVec
}

// NewPrometheusObserver registers its counters on reg when reg is not nil.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	o := &PrometheusObserver{
		allow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_allow_total",
			Help: "Allowed requests by rate limiter",
		}, []string{"route"}),
		deny: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_deny_total",
			Help: "Denied requests by rate limiter",
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(o.allow, o.deny)
	}
	return o
}

func (p *PrometheusObserver) OnAllow(route string) { p.allow.WithLabelValues(route).Inc() }
func (p *PrometheusObserver) OnDeny(route string)  { p.deny.WithLabelValues(route).Inc() }

// NewRedisStore shares counters between instances through redis.
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "alertdesk:limiter"
	}
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
}

// UserKeyFunc returns the caller identity used by the "user" identifier.
type UserKeyFunc func(c *gin.Context) string

// RateLimiter keeps one ulule limiter per distinct rate over a shared store.
type RateLimiter struct {
	cfg      RateLimiterConfig
	store    limiter.Store
	observer MetricsObserver
	userKey  UserKeyFunc
	allow    []*net.IPNet
	deny     []*net.IPNet

	mu     sync.Mutex
	byRate map[string]*limiter.Limiter
}

// NewRateLimiter uses an in-memory store when store is nil. Invalid CIDRs
// are ignored.
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	return &RateLimiter{
		cfg:    cfg,
		store:  store,
		allow:  parseCIDRs(cfg.AllowCIDRs),
		deny:   parseCIDRs(cfg.DenyCIDRs),
		byRate: make(map[string]*limiter.Limiter),
	}
}

func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.observer = observer
	return l
}

func (l *RateLimiter) WithUserKey(fn UserKeyFunc) *RateLimiter {
	l.userKey = fn
	return l
}

// Middleware 返回 Gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := routeOf(c)
		ip := strings.TrimPrefix(c.ClientIP(), "::ffff:")
		if ipListed(ip, l.allow) {
			c.Next()
			return
		}
		if ipListed(ip, l.deny) {
			l.report(route, false)
			denyTooMany(c)
			return
		}

		lctx, err := l.limiterFor(route).Get(c.Request.Context(), l.key(c, route, ip))
		if err != nil {
			// store 故障时放行
			c.Next()
			return
		}
		if l.cfg.AddHeaders {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			c.Header("X-RateLimit-Reset", strconv.Itoa(secondsUntil(lctx.Reset)))
		}
		if lctx.Reached {
			c.Header("Retry-After", strconv.Itoa(secondsUntil(lctx.Reset)))
			l.report(route, false)
			denyTooMany(c)
			return
		}
		l.report(route, true)
		c.Next()
	}
}

// key 覆盖了速率的路由单独计数，其余路由共用一个计数
func (l *RateLimiter) key(c *gin.Context, route, ip string) string {
	k := "ip:" + ip
	if l.cfg.Identifier == IdentifierUser && l.userKey != nil {
		if user := l.userKey(c); user != "" {
			k = "user:" + user
		}
	}
	if l.cfg.RouteRates[route] != "" {
		k = route + ":" + k
	}
	return k
}

func (l *RateLimiter) rateFor(route string) string {
	if r := l.cfg.RouteRates[route]; r != "" {
		return r
	}
	if l.cfg.Rate != "" {
		return l.cfg.Rate
	}
	return "10-S"
}

func (l *RateLimiter) limiterFor(route string) *limiter.Limiter {
	rate := l.rateFor(route)
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.byRate[rate]; ok {
		return lim
	}
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		r = limiter.Rate{Period: time.Second, Limit: 10}
	}
	lim := limiter.New(l.store, r)
	l.byRate[rate] = lim
	return lim
}

func (l *RateLimiter) report(route string, allowed bool) {
	if l.observer == nil {
		return
	}
	if allowed {
		l.observer.OnAllow(route)
	} else {
		l.observer.OnDeny(route)
	}
}

func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return c.Request.URL.Path
}

func parseCIDRs(cidrs []string) []*net.IPNet {
	var out []*net.IPNet
	for _, s := range cidrs {
		if _, n, err := net.ParseCIDR(strings.TrimSpace(s)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func ipListed(ip string, nets []*net.IPNet) bool {
	pip := net.ParseIP(ip)
	if pip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(pip) {
			return true
		}
	}
	return false
}

func secondsUntil(unix int64) int {
	if sec := int(time.Until(time.Unix(unix, 0)).Seconds()); sec > 0 {
		return sec
	}
	return 0
}

func denyTooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "msg": "Too Many Requests"})
}
