package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"AlertDesk/pkg/cache"
	"AlertDesk/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 决定一段时间内重复请求的拒绝窗口
	Store      cache.Cache   // 本地缓存或 Redis
	Prefix     string
}

// IdempotencyMiddleware rejects a repeated Idempotency-Key within TTL with
// 409. Requests without the header pass through untouched.
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "idem:"
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" || cfg.Store == nil {
			c.Next()
			return
		}
		// 键按路由隔离，避免不同接口共用同一个 key 时互相影响
		h := sha256.Sum256([]byte(c.Request.Method + " " + c.FullPath() + " " + key))
		storeKey := cfg.Prefix + hex.EncodeToString(h[:])

		ok, err := cfg.Store.SetIfAbsent(c.Request.Context(), storeKey, time.Now().Unix(), cfg.TTL)
		if err != nil {
			logger.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "msg": "duplicate request"})
			return
		}
		c.Next()
		// 失败的请求允许客户端用同一个 key 重试
		if c.Writer.Status() >= http.StatusInternalServerError {
			_ = cfg.Store.Delete(c.Request.Context(), storeKey)
		}
	}
}
