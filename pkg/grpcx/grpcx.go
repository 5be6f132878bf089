// Package grpcx serves the standard gRPC health service for infrastructure probes.
package grpcx

import (
	"context"
	"net"
	"time"

	"AlertDesk/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServerConfig gRPC 服务器配置
type ServerConfig struct {
	Addr             string
	UnaryTimeout     time.Duration
	EnableReflection bool
}

// ClientConfig gRPC 客户端配置
type ClientConfig struct {
	Target         string
	UnaryTimeout   time.Duration
	WithInsecure   bool
	DefaultHeaders map[string]string
}

// NewServer 创建 gRPC Server，已内置恢复/超时拦截器
func NewServer(cfg ServerConfig, extra ...grpc.UnaryServerInterceptor) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		serverTimeoutInterceptor(cfg.UnaryTimeout),
		recoveryInterceptor(),
	}
	interceptors = append(extra, interceptors...)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	if cfg.EnableReflection {
		reflection.Register(gs)
	}
	return gs
}

// Dial 创建客户端连接，内置超时与默认Header注入拦截器
func Dial(cfg ClientConfig, extra ...grpc.UnaryClientInterceptor) (*grpc.ClientConn, error) {
	var opts []grpc.DialOption
	if cfg.WithInsecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	cis := []grpc.UnaryClientInterceptor{
		clientTimeoutInterceptor(cfg.UnaryTimeout),
		clientHeaderInterceptor(cfg.DefaultHeaders),
	}
	cis = append(cis, extra...)
	opts = append(opts, grpc.WithChainUnaryInterceptor(cis...))
	return grpc.NewClient(cfg.Target, opts...)
}

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// HealthServer publishes SERVING / NOT_SERVING from a periodic probe.
type HealthServer struct {
	*health.Server
	probe    Probe
	interval time.Duration
}

// RegisterHealth installs grpc.health.v1.Health on gs.
func RegisterHealth(gs *grpc.Server, probe Probe, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	hs := &HealthServer{Server: health.NewServer(), probe: probe, interval: interval}
	healthpb.RegisterHealthServer(gs, hs.Server)
	return hs
}

// Check runs the probe once and updates the overall status.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if h.probe != nil {
		if err := h.probe(ctx); err != nil {
			logger.Warn("health probe failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.SetServingStatus("", st)
	return st
}

// Watch re-checks until ctx is done, then marks the service as shutting down.
func (h *HealthServer) Watch(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-t.C:
			c, cancel := context.WithTimeout(ctx, h.interval/2)
			h.Check(c)
			cancel()
		}
	}
}

// Serve listens on cfg.Addr until ctx is done.
func Serve(ctx context.Context, cfg ServerConfig, probe Probe) error {
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	gs := NewServer(cfg)
	hs := RegisterHealth(gs, probe, 0)
	go hs.Watch(ctx)
	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()
	logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	return gs.Serve(lis)
}

// ---------- Interceptors ----------

func serverTimeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	if d <= 0 {
		d = 30 * time.Second
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		c, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(c, req)
	}
}

func recoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc panic", zap.String("method", info.FullMethod), zap.Any("panic", r))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func clientTimeoutInterceptor(d time.Duration) grpc.UnaryClientInterceptor {
	if d <= 0 {
		d = 30 * time.Second
	}
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		c, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return invoker(c, method, req, reply, cc, opts...)
	}
}

func clientHeaderInterceptor(headers map[string]string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if len(headers) > 0 {
			md := metadata.New(headers)
			ctx = metadata.NewOutgoingContext(ctx, md)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
