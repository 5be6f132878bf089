// Package websocket relays organization alert events to operator dashboards.
//
// A session is strictly one-way: every bus payload becomes one text frame and
// inbound frames are read only to notice pongs and disconnects.
package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"AlertDesk/pkg/metrics"
	"AlertDesk/pkg/pubsub"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Session 表示一个已加入组织频道的WebSocket连接
type Session struct {
	ID             string
	UserID         uint
	OrganizationID uint
	Conn           *websocket.Conn
	Hub            *Hub
	JoinedAt       time.Time

	sub      *pubsub.Subscription
	mu       sync.RWMutex
	lastPing time.Time
	done     chan struct{}
	once     sync.Once
}

// LastPing returns when the peer last answered a ping.
func (s *Session) LastPing() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPing
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastPing = time.Now()
	s.mu.Unlock()
}

// Hub 管理所有WebSocket会话
type Hub struct {
	bus     pubsub.Bus
	metrics *metrics.Metrics

	// 注册的会话
	sessions map[string]*Session
	// 组织ID到会话ID的映射
	orgSessions map[uint]map[string]bool
	// 会话计数
	sessionCount int64
	config       *Config
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
}

// Config WebSocket配置
type Config struct {
	// 最大连接数
	MaxConnections int64
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 连接超时时间
	ConnectionTimeout time.Duration
	// 写超时
	WriteTimeout time.Duration
	// 读缓冲区大小
	ReadBufferSize int
	// 写缓冲区大小
	WriteBufferSize int
	// 入站消息上限
	MaxMessageSize int
	// 是否启用压缩
	EnableCompression bool
	// 压缩等级（-2..9）
	CompressionLevel int
	// 允许的 Origin，空表示不检查
	AllowedOrigins []string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    DefaultMaxConnections,
		HeartbeatInterval: DefaultHeartbeatInterval * time.Second,
		ConnectionTimeout: DefaultConnectionTimeout * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    DefaultReadBufferSize,
		WriteBufferSize:   DefaultWriteBufferSize,
		MaxMessageSize:    DefaultMaxMessageSize,
		EnableCompression: false,
		CompressionLevel:  0,
	}
}

// NewHub 创建新的Hub实例
func NewHub(bus pubsub.Bus, config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		bus:         bus,
		sessions:    make(map[string]*Session),
		orgSessions: make(map[uint]map[string]bool),
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
	}
	go hub.run()
	return hub
}

// WithMetrics 安装会话指标
func (h *Hub) WithMetrics(m *metrics.Metrics) *Hub {
	h.metrics = m
	return h
}

// run Hub主循环
func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// reserve 占用一个连接名额
func (h *Hub) reserve() bool {
	for {
		n := atomic.LoadInt64(&h.sessionCount)
		if n >= h.config.MaxConnections {
			return false
		}
		if atomic.CompareAndSwapInt64(&h.sessionCount, n, n+1) {
			return true
		}
	}
}

func (h *Hub) release() {
	atomic.AddInt64(&h.sessionCount, -1)
}

// register 注册会话
func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[s.ID] = s
	if h.orgSessions[s.OrganizationID] == nil {
		h.orgSessions[s.OrganizationID] = make(map[string]bool)
	}
	h.orgSessions[s.OrganizationID][s.ID] = true

	if h.metrics != nil {
		h.metrics.SessionOpened(Transport)
	}
	logrus.Infof("websocket session joined: %s, user: %d, organization: %d, sessions: %d",
		s.ID, s.UserID, s.OrganizationID, atomic.LoadInt64(&h.sessionCount))
}

// unregister 注销会话并离开组织频道
func (h *Hub) unregister(s *Session) {
	s.once.Do(func() {
		s.sub.Close()
		close(s.done)
		_ = s.Conn.Close()

		h.mu.Lock()
		defer h.mu.Unlock()
		if _, exists := h.sessions[s.ID]; !exists {
			return
		}
		delete(h.sessions, s.ID)
		if members := h.orgSessions[s.OrganizationID]; members != nil {
			delete(members, s.ID)
			if len(members) == 0 {
				delete(h.orgSessions, s.OrganizationID)
			}
		}
		h.release()
		if h.metrics != nil {
			h.metrics.SessionClosed(Transport)
		}
		logrus.Infof("websocket session closed: %s, sessions: %d", s.ID, atomic.LoadInt64(&h.sessionCount))
	})
}

// checkHeartbeats 检查心跳
func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	var stale []*Session
	now := time.Now()
	for _, s := range h.sessions {
		if now.Sub(s.LastPing()) > h.config.ConnectionTimeout {
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		logrus.Warnf("websocket session %s heartbeat timeout", s.ID)
		h.unregister(s)
	}
}

// GetConnectionCount 获取当前连接数
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.sessionCount)
}

// GetOrganizationSessions 获取组织的会话数
func (h *Hub) GetOrganizationSessions(organizationID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.orgSessions[organizationID])
}

// Running reports whether the hub still accepts sessions.
func (h *Hub) Running() bool {
	return h.ctx.Err() == nil
}

// Close 关闭Hub
func (h *Hub) Close() {
	h.cancel()

	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		h.unregister(s)
	}
	logrus.Info("websocket hub closed")
}
