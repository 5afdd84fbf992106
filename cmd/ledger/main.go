package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-ledger-service/config"
	"github.com/fekuna/omnipos-ledger-service/internal/audit"
	"github.com/fekuna/omnipos-ledger-service/pkg/broker"
	"github.com/fekuna/omnipos-ledger-service/pkg/cache"
	"github.com/fekuna/omnipos-ledger-service/pkg/database/postgres"
	"github.com/fekuna/omnipos-ledger-service/pkg/logger"

	catRepoPkg "github.com/fekuna/omnipos-ledger-service/internal/catalog/repository"

	invListenerPkg "github.com/fekuna/omnipos-ledger-service/internal/inventory/listener"
	invRepoPkg "github.com/fekuna/omnipos-ledger-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-ledger-service/internal/inventory/usecase"

	saleListenerPkg "github.com/fekuna/omnipos-ledger-service/internal/sale/listener"
	saleRepoPkg "github.com/fekuna/omnipos-ledger-service/internal/sale/repository"
	saleUCPkg "github.com/fekuna/omnipos-ledger-service/internal/sale/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "omnipos.ledger.v1.LedgerService"

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Repositories
	catalogRepo := catRepoPkg.NewPGRepository(db)
	invRepo := invRepoPkg.NewPGRepository(db)
	saleRepo := saleRepoPkg.NewPGRepository(db)

	// 5. Initialize Redis and the product lock
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	locker := cache.NewRedisLocker(redisClient, cache.LockOptions{
		Retries: cfg.Inventory.LockRetries,
		Backoff: cfg.Inventory.LockRetryBackoff,
	})

	// 6. Initialize Audit
	var sink audit.Sink = audit.NewLogSink(appLogger.With(zap.String("component", "audit")))
	if cfg.Audit.Sink == "kafka" {
		producer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.AuditTopic,
		})
		defer producer.Close()
		sink = audit.NewKafkaSink(producer)
		appLogger.Info("Publishing audit entries to Kafka", zap.String("topic", cfg.Kafka.AuditTopic))
	}
	recorder := audit.NewAsyncRecorder(sink, cfg.Audit.BufferSize, appLogger)
	defer recorder.Close()

	// 7. Initialize UseCases
	invUC := invUCPkg.NewInventoryUseCase(invRepo, catalogRepo, locker, recorder, invUCPkg.Options{
		DefaultMinStock: cfg.Inventory.DefaultMinStock,
		LockTTL:         cfg.Inventory.LockTTL,
	}, appLogger)
	saleUC := saleUCPkg.NewSaleUseCase(saleUCPkg.Deps{
		Repo:      saleRepo,
		Inventory: invUC,
		Products:  catalogRepo,
		Freight:   catalogRepo,
		Customers: catalogRepo,
		Locker:    locker,
		Audit:     recorder,
	}, saleUCPkg.Options{LockTTL: cfg.Inventory.LockTTL}, appLogger)

	// 8. Initialize Kafka Consumers and Listeners
	saleConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.SalesTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer saleConsumer.Close()
	inventoryConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.InventoryTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer inventoryConsumer.Close()
	appLogger.Info("Connected to Kafka Consumers",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.Strings("topics", []string{cfg.Kafka.SalesTopic, cfg.Kafka.InventoryTopic}),
	)

	saleListener := saleListenerPkg.NewSaleListener(saleConsumer, saleUC, appLogger)
	eventLog := cache.NewRedisEventLog(redisClient, "ledger:event:", cfg.Kafka.DedupeTTL)
	inventoryListener := invListenerPkg.NewInventoryListener(inventoryConsumer, invUC, eventLog, appLogger)

	// Deferred closes run after the listeners have returned, so no use case
	// is still writing to the recorder, the consumers or the database.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var listeners sync.WaitGroup
	listeners.Add(2)
	go func() {
		defer listeners.Done()
		saleListener.Start(ctx)
	}()
	go func() {
		defer listeners.Done()
		inventoryListener.Start(ctx)
	}()

	// 9. Start gRPC Server
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port))

	// Graceful Shutdown
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	cancel()
	listeners.Wait()
	appLogger.Info("Server stopped")
}
