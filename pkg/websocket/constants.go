package websocket

const (
	// Transport is the metrics label of websocket sessions.
	Transport = "websocket"

	// 默认配置值
	DefaultMaxConnections    = 10000
	DefaultHeartbeatInterval = 30
	DefaultConnectionTimeout = 60
	DefaultReadBufferSize    = 1024
	DefaultWriteBufferSize   = 1024
	DefaultMaxMessageSize    = 512

	// 环境变量配置键
	EnvWebSocketMaxConnections    = "WEBSOCKET_MAX_CONNECTIONS"
	EnvWebSocketHeartbeatInterval = "WEBSOCKET_HEARTBEAT_INTERVAL"
	EnvWebSocketConnectionTimeout = "WEBSOCKET_CONNECTION_TIMEOUT"
	EnvWebSocketEnableCompression = "WEBSOCKET_ENABLE_COMPRESSION"
	EnvWebSocketCompressionLevel  = "WEBSOCKET_COMPRESSION_LEVEL"
	EnvWebSocketReadBufferSize    = "WEBSOCKET_READ_BUFFER_SIZE"
	EnvWebSocketWriteBufferSize   = "WEBSOCKET_WRITE_BUFFER_SIZE"
	EnvWebSocketMaxMessageSize    = "WEBSOCKET_MAX_MESSAGE_SIZE"
	EnvWebSocketAllowedOrigins    = "WEBSOCKET_ALLOWED_ORIGINS"

	// 错误消息
	ErrConnectionLimitExceeded = "connection limit reached"
	ErrNotAuthenticated        = "authentication required"
	ErrForeignOrganization     = "organization does not match caller"
	ErrUnknownOrganization     = "unknown organization"
	ErrSubscribeFailed         = "live channel unavailable"

	// 路由路径
	RouteAlerts = "/ws/alerts/organizations/:organization_id"
	RouteStats  = "/ws/stats"
	RouteHealth = "/ws/health"
)
