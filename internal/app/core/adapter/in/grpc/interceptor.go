package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-sls-ledger/pkg/ledgerapi"
)

// LoggingInterceptor 記錄每個 unary 呼叫的方法、耗時與結果
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start))
		return resp, err
	}
}

// NewServer 建立已註冊帳本服務與 health 服務的 gRPC server
// 訊息走 JSON codec，沒有 proto descriptor 可供 reflection 使用，因此不註冊 reflection
func NewServer(srv *GrpcServer, logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(LoggingInterceptor(logger))}, opts...)
	s := grpc.NewServer(opts...)
	ledgerapi.RegisterLedgerServiceServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ledgerapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s
}
