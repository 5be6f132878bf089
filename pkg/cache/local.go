package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localCache 基于 LRU 的本地缓存，单项过期时间
type localCache struct {
	config LocalConfig
	items  *lru.Cache[string, *cacheItem]
	mu     sync.Mutex
	stop   chan struct{}
	once   sync.Once
}

// cacheItem 缓存项
type cacheItem struct {
	value      interface{}
	expiration time.Time
}

func (it *cacheItem) expired(now time.Time) bool {
	return !it.expiration.IsZero() && now.After(it.expiration)
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) (Cache, error) {
	def := DefaultLocalConfig()
	if config.MaxSize <= 0 {
		config.MaxSize = def.MaxSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	items, err := lru.New[string, *cacheItem](config.MaxSize)
	if err != nil {
		return nil, err
	}
	lc := &localCache{
		config: config,
		items:  items,
		stop:   make(chan struct{}),
	}

	// 启动清理协程
	go lc.startCleanup()

	return lc, nil
}

func (lc *localCache) expiryFor(expiration time.Duration) time.Time {
	if expiration <= 0 {
		expiration = lc.config.DefaultExpiration
	}
	if expiration <= 0 {
		return time.Time{}
	}
	return time.Now().Add(expiration)
}

// live returns the item under key when present and not expired. Caller holds mu.
func (lc *localCache) live(key string) (*cacheItem, bool) {
	item, ok := lc.items.Get(key)
	if !ok {
		return nil, false
	}
	if item.expired(time.Now()) {
		lc.items.Remove(key)
		return nil, false
	}
	return item, true
}

// Get 获取缓存值
func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	item, ok := lc.live(key)
	if !ok {
		return nil, false
	}
	return item.value, true
}

// Set 设置缓存值
func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.items.Add(key, &cacheItem{value: value, expiration: lc.expiryFor(expiration)})
	return nil
}

// SetIfAbsent 仅在键不存在时写入
func (lc *localCache) SetIfAbsent(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if _, ok := lc.live(key); ok {
		return false, nil
	}
	lc.items.Add(key, &cacheItem{value: value, expiration: lc.expiryFor(expiration)})
	return true, nil
}

// Delete 删除缓存
func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.items.Remove(key)
	return nil
}

// Exists 检查键是否存在
func (lc *localCache) Exists(ctx context.Context, key string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	_, ok := lc.live(key)
	return ok
}

// Increment 自增，不存在或已过期时从 0 开始
func (lc *localCache) Increment(ctx context.Context, key string, value int64) (int64, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	item, ok := lc.live(key)
	if !ok {
		lc.items.Add(key, &cacheItem{value: value, expiration: lc.expiryFor(0)})
		return value, nil
	}

	var current int64
	switch v := item.value.(type) {
	case int:
		current = int64(v)
	case int64:
		current = v
	case float64:
		current = int64(v)
	}
	item.value = current + value
	return current + value, nil
}

// Close 停止清理协程
func (lc *localCache) Close() error {
	lc.once.Do(func() { close(lc.stop) })
	return nil
}

// startCleanup 启动清理协程
func (lc *localCache) startCleanup() {
	ticker := time.NewTicker(lc.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lc.stop:
			return
		case <-ticker.C:
			lc.cleanup()
		}
	}
}

// cleanup 清理过期项
func (lc *localCache) cleanup() {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	now := time.Now()
	for _, key := range lc.items.Keys() {
		if item, ok := lc.items.Peek(key); ok && item.expired(now) {
			lc.items.Remove(key)
		}
	}
}
