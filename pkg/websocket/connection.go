package websocket

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"AlertDesk/pkg/pubsub"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	ErrRejected    = errors.New("websocket: organization mismatch")
	ErrLimit       = errors.New("websocket: connection limit reached")
	ErrHubClosed   = errors.New("websocket: hub closed")
	errUpgradeFail = errors.New("websocket: upgrade failed")
)

// Caller is the authenticated principal opening a session.
type Caller struct {
	UserID         uint
	OrganizationID uint
}

// Admit is the admission rule: a caller may only join its own organization.
func Admit(caller Caller, organizationID uint) bool {
	return caller.OrganizationID != 0 && caller.OrganizationID == organizationID
}

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		EnableCompression: cfg.EnableCompression,
		CheckOrigin: func(r *http.Request) bool {
			if len(cfg.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			for _, allowed := range cfg.AllowedOrigins {
				if strings.EqualFold(allowed, u.Host) || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// Serve admits caller to organizationID and runs the session until the peer
// disconnects. A rejected caller gets 403 and no handshake.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, caller Caller, organizationID uint) (*Session, error) {
	if !Admit(caller, organizationID) {
		if h.metrics != nil {
			h.metrics.SessionRejected(Transport)
		}
		logrus.Warnf("websocket session rejected: user %d (organization %d) asked for organization %d",
			caller.UserID, caller.OrganizationID, organizationID)
		http.Error(w, ErrForeignOrganization, http.StatusForbidden)
		return nil, ErrRejected
	}
	if !h.Running() {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return nil, ErrHubClosed
	}
	if !h.reserve() {
		logrus.Warnf("websocket connection limit reached: %d", h.config.MaxConnections)
		http.Error(w, ErrConnectionLimitExceeded, http.StatusServiceUnavailable)
		return nil, ErrLimit
	}

	// 先加入组织频道再完成握手，保证握手后的事件不会丢
	sub, err := h.bus.Subscribe(pubsub.OrganizationTopic(organizationID))
	if err != nil {
		h.release()
		logrus.Errorf("websocket subscribe failed: %v", err)
		http.Error(w, ErrSubscribeFailed, http.StatusServiceUnavailable)
		return nil, err
	}

	upgrader := newUpgrader(h.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写出错误响应
		sub.Close()
		h.release()
		logrus.Errorf("websocket upgrade failed: %v", err)
		return nil, errUpgradeFail
	}

	// 压缩设置
	if h.config.EnableCompression {
		conn.EnableWriteCompression(true)
		if h.config.CompressionLevel != 0 {
			_ = conn.SetCompressionLevel(h.config.CompressionLevel)
		}
	}

	now := time.Now()
	session := &Session{
		ID:             uuid.NewString(),
		UserID:         caller.UserID,
		OrganizationID: organizationID,
		Conn:           conn,
		Hub:            h,
		JoinedAt:       now,
		sub:            sub,
		lastPing:       now,
		done:           make(chan struct{}),
	}
	h.register(session)

	go session.writePump()
	go session.readPump()
	return session, nil
}

// readPump 读取协程：入站帧全部丢弃，只用于感知 pong 与断开
func (s *Session) readPump() {
	defer s.Hub.unregister(s)

	cfg := s.Hub.config
	s.Conn.SetReadLimit(int64(cfg.MaxMessageSize))
	_ = s.Conn.SetReadDeadline(time.Now().Add(cfg.ConnectionTimeout))
	s.Conn.SetPongHandler(func(string) error {
		s.touch()
		return s.Conn.SetReadDeadline(time.Now().Add(cfg.ConnectionTimeout))
	})

	for {
		if _, _, err := s.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logrus.Debugf("websocket read error on %s: %v", s.ID, err)
			}
			return
		}
	}
}

// writePump 发送协程：每条总线消息原样写成一个文本帧
func (s *Session) writePump() {
	cfg := s.Hub.config
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		s.Hub.unregister(s)
	}()

	messages := s.sub.Messages()
	for {
		select {
		case <-s.done:
			return
		case payload, ok := <-messages:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = s.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			if s.Hub.metrics != nil {
				s.Hub.metrics.MessageSent(Transport)
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Dropped counts bus payloads this session missed because it was slow.
func (s *Session) Dropped() int64 {
	return s.sub.Dropped()
}
