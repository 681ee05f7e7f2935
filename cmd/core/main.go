package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-sls-ledger/internal/app/core/adapter/in/grpc"
	http_adapter "github.com/JoeShih716/go-sls-ledger/internal/app/core/adapter/in/http"
	kafka_adapter "github.com/JoeShih716/go-sls-ledger/internal/app/core/adapter/out/kafka"
	memory_adapter "github.com/JoeShih716/go-sls-ledger/internal/app/core/adapter/out/memory"
	redis_adapter "github.com/JoeShih716/go-sls-ledger/internal/app/core/adapter/out/redis"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/adapter/out/sqlstore"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
	"github.com/JoeShih716/go-sls-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-sls-ledger/internal/config"
	"github.com/JoeShih716/go-sls-ledger/pkg/database"
	"github.com/JoeShih716/go-sls-ledger/pkg/logger"
	"github.com/JoeShih716/go-sls-ledger/pkg/wal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log, os.Stdout)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("ledger exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// closers 依相反順序在結束時關閉
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("close resource failed", "error", err)
			}
		}
	}()

	// 2. 初始化 store (Driven Adapter)
	st, closeStore, err := newStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeStore)

	// 3. 初始化 LedgerEngine 與可選的事件發佈、重播快取
	opts := []usecase.Option{
		usecase.WithLogger(log),
		usecase.WithTimeout(cfg.Engine.OpTimeout),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := kafka_adapter.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, log)
		if err != nil {
			return err
		}
		closers = append(closers, pub.Close)
		opts = append(opts, usecase.WithEventPublisher(pub))
		log.Info("kafka publisher enabled", "brokers", cfg.Kafka.Brokers, "topic_prefix", cfg.Kafka.TopicPrefix)
	}
	if cfg.Redis.Addr != "" {
		client := redis_adapter.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cache := redis_adapter.NewReplayCache(client, cfg.Redis.KeyPrefix, log)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := cache.Ping(pingCtx)
		cancel()
		if err != nil {
			// 快取只是捷徑，連不上就不啟用
			log.Warn("redis unavailable, replay cache disabled", "addr", cfg.Redis.Addr, "error", err)
			_ = client.Close()
		} else {
			closers = append(closers, client.Close)
			opts = append(opts, usecase.WithReplayCache(cache, cfg.Engine.IdempotencyTTL))
			log.Info("redis replay cache enabled", "addr", cfg.Redis.Addr)
		}
	}
	engine := usecase.NewLedgerEngine(st, opts...)

	// 4. 啟動 gRPC Server (Driving Adapter)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPC.Addr, err)
	}
	grpcServer := grpc_adapter.NewServer(grpc_adapter.NewGrpcServer(engine, log), log)

	// 5. 啟動 HTTP Server (Driving Adapter)
	app := http_adapter.NewApp(engine, log, http_adapter.Config{
		RateLimitMax:    cfg.HTTP.RateLimitMax,
		RateLimitWindow: cfg.HTTP.RateLimitWindow,
	})

	errCh := make(chan error, 2)
	go func() {
		log.Info("starting grpc server", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		log.Info("starting http server", "addr", cfg.HTTP.Addr)
		if err := app.Listen(cfg.HTTP.Addr); err != nil {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	// Graceful Shutdown
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down server...")
	case serveErr = <-errCh:
		log.Error("server failed, shutting down", "error", serveErr)
	}

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	log.Info("server exited")
	return serveErr
}

// newStore 依設定建立 TransactionalStore，回傳的 close 負責釋放 WAL 或資料庫連線
func newStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.TransactionalStore, func() error, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory, config.StoreSequenced:
		var w *wal.WAL
		closeFn := func() error { return nil }
		if cfg.Store.WALPath != "" {
			var err error
			if w, err = wal.NewWAL(cfg.Store.WALPath); err != nil {
				return nil, nil, fmt.Errorf("init wal: %w", err)
			}
			closeFn = w.Close
		}

		if cfg.Store.Driver == config.StoreSequenced {
			s, err := memory_adapter.NewSequencedStore(w, cfg.Store.SequencerBuffer)
			if err != nil {
				_ = closeFn()
				return nil, nil, fmt.Errorf("init sequenced store: %w", err)
			}
			// sequencer 的生命週期獨立於訊號，server 停止收件後才由 close 收尾
			seqCtx, stopSeq := context.WithCancel(context.Background())
			s.Start(seqCtx)
			closeWAL := closeFn
			closeFn = func() error {
				stopSeq()
				<-s.Done()
				return closeWAL()
			}
			log.Info("using sequenced memory store", "wal", cfg.Store.WALPath, "buffer", cfg.Store.SequencerBuffer)
			return s, closeFn, nil
		}

		s, err := memory_adapter.NewStore(w)
		if err != nil {
			_ = closeFn()
			return nil, nil, fmt.Errorf("init memory store: %w", err)
		}
		log.Info("using memory store", "wal", cfg.Store.WALPath)
		return s, closeFn, nil

	case config.StoreMySQL, config.StorePostgres:
		client, err := database.NewClient(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		s := sqlstore.NewStore(client.DB())
		if cfg.Store.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				_ = client.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		log.Info("using sql store", "driver", cfg.Database.Driver, "host", cfg.Database.Host, "db", cfg.Database.DBName)
		return s, client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
