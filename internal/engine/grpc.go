package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// NewGRPCServer - gRPC-сервер шлюза с health-сервисом для оркестратора.
// Статус "" (весь сервер) сразу SERVING; при остановке переводится в NOT_SERVING через health.Shutdown.
func NewGRPCServer(logger *zap.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryTracingInterceptor(logger.Named("grpc"))))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return srv, hs
}

// UnaryTracingInterceptor переносит x-trace-id из метаданных в контекст и логирует вызов.
func UnaryTracingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		// gRPC заголовки приходят в нижнем регистре
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-trace-id"); len(ids) > 0 && ids[0] != "" {
				ctx = WithTraceID(ctx, ids[0])
			}
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call",
			zap.String("method", info.FullMethod),
			zap.String("trace_id", TraceIDFromContext(ctx)),
			zap.String("code", status.Code(err).String()),
			zap.Duration("took", time.Since(start)),
		)
		return resp, err
	}
}
