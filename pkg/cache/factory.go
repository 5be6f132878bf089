package cache

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NewCache 创建缓存实例。redis 类型复用传入的客户端，为 nil 时按配置新建。
func NewCache(config Config, client *redis.Client) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case "", "local":
		return NewLocalCache(config.Local)
	case "gocache":
		return NewGoCache(config.Local), nil
	case "redis":
		if client != nil {
			return NewRedisCacheWithClient(client), nil
		}
		return NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}
