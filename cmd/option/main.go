// OptionService 主程序
// 功能：托管一份担保期权合约，提供 Instantiate / Transfer / Execute / Burn 命令与只读查询
// 架构：基于 DDD + gRPC + 发件箱 + Kafka
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"github.com/wyfcoding/optionescrow/internal/option/application"
	"github.com/wyfcoding/optionescrow/internal/option/domain"
	"github.com/wyfcoding/optionescrow/internal/option/infrastructure/chain"
	"github.com/wyfcoding/optionescrow/internal/option/infrastructure/messaging"
	"github.com/wyfcoding/optionescrow/internal/option/infrastructure/persistence/memory"
	"github.com/wyfcoding/optionescrow/internal/option/infrastructure/persistence/mysql"
	redisrepo "github.com/wyfcoding/optionescrow/internal/option/infrastructure/persistence/redis"
	grpchandler "github.com/wyfcoding/optionescrow/internal/option/interfaces/grpc"
	httphandler "github.com/wyfcoding/optionescrow/internal/option/interfaces/http"
	"github.com/wyfcoding/optionescrow/pkg/cache"
	"github.com/wyfcoding/optionescrow/pkg/config"
	"github.com/wyfcoding/optionescrow/pkg/db"
	"github.com/wyfcoding/optionescrow/pkg/logger"
	"github.com/wyfcoding/optionescrow/pkg/metrics"
	"github.com/wyfcoding/optionescrow/pkg/middleware"
	"github.com/wyfcoding/optionescrow/pkg/mq"
	"github.com/wyfcoding/optionescrow/pkg/ratelimit"
	"github.com/wyfcoding/optionescrow/pkg/trace"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// optionStore 仓储与发件箱，三种存储驱动都同时实现
type optionStore interface {
	domain.OptionRepository
	domain.OutboxStore
}

func main() {
	configPath := pflag.StringP("config", "c", "configs/option/config.toml", "path to config file")
	pflag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	loggerCfg := logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}
	if err := logger.Init(loggerCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger.Info(ctx, "Starting OptionService",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
		"storage", cfg.Storage.Driver,
	)

	// 3. 初始化追踪
	if cfg.Tracing.Enabled {
		shutdown, err := trace.InitTracer(cfg.ServiceName, cfg.Tracing.CollectorEndpoint, cfg.Tracing.SamplingRate)
		if err != nil {
			logger.Error(ctx, "Failed to initialize tracer", "error", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error(ctx, "Failed to shutdown tracer", "error", err)
				}
			}()
			logger.Info(ctx, "Tracer initialized", "endpoint", cfg.Tracing.CollectorEndpoint)
		}
	}

	// 4. 初始化 Redis（redis 存储、分布式锁与限流共用）
	var redisCache *cache.RedisCache
	if cfg.Storage.Driver == "redis" || cfg.Storage.DistributedLock || cfg.RateLimit.Enabled {
		redisCache, err = cache.New(cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize Redis", "error", err)
		}
		defer redisCache.Close()
	}

	// 5. 初始化仓储
	store, closeStore := openStore(ctx, cfg, redisCache)
	defer closeStore()

	// 6. 初始化宿主环境
	validator := chain.NewAddressValidator(chain.AddressConfig{
		Prefix:    cfg.Chain.AddressPrefix,
		MinLength: cfg.Chain.AddressMinLength,
		MaxLength: cfg.Chain.AddressMaxLength,
	})
	genesis := time.Now()
	if cfg.Chain.GenesisTime != "" {
		genesis, err = time.Parse(time.RFC3339, cfg.Chain.GenesisTime)
		if err != nil {
			logger.Fatal(ctx, "Invalid genesis time", "value", cfg.Chain.GenesisTime, "error", err)
		}
	}
	clock, err := chain.NewBlockClock(cfg.Chain.GenesisHeight, genesis, time.Duration(cfg.Chain.BlockIntervalMs)*time.Millisecond)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize block clock", "error", err)
	}

	// 7. 初始化指标
	metricsInstance := metrics.New(cfg.ServiceName)
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		if err := metricsInstance.Register(nil); err != nil {
			logger.Fatal(ctx, "Failed to register metrics", "error", err)
		}
		metricsServer = metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// 8. 初始化应用服务
	opts := []application.ServiceOption{
		application.WithRecorder(metricsInstance),
		application.WithTopics(application.Topics{Transfer: cfg.Kafka.TransferTopic, Event: cfg.Kafka.EventTopic}),
	}
	if cfg.Storage.DistributedLock {
		lockKey := cfg.Storage.KeyPrefix + ":lock"
		opts = append(opts, application.WithLocker(cache.NewRedisLocker(redisCache, lockKey, time.Duration(cfg.Storage.LockTTLMs)*time.Millisecond)))
	}
	optionAppService := application.NewOptionAppService(store, validator, clock, logger.Get(), opts...)

	// 9. 启动发件箱投递
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	if cfg.Outbox.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:        cfg.Kafka.Brokers,
			GroupID:        cfg.Kafka.GroupID,
			SessionTimeout: cfg.Kafka.SessionTimeout,
			BatchTimeoutMs: cfg.Kafka.BatchTimeoutMs,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize Kafka producer", "error", err)
		}
		defer producer.Close()

		relay := messaging.NewOutboxRelay(store, producer, messaging.RelayConfig{
			PollInterval: time.Duration(cfg.Outbox.PollIntervalMs) * time.Millisecond,
			BatchSize:    cfg.Outbox.BatchSize,
			Retention:    time.Duration(cfg.Outbox.RetentionHours) * time.Hour,
		}, metricsInstance, logger.Get())
		go relay.Run(relayCtx)
	} else {
		logger.Warn(ctx, "Outbox relay disabled, transfers stay queued", "brokers", len(cfg.Kafka.Brokers))
	}

	// 10. 初始化限流器
	var rateLimiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRedisRateLimiter(redisCache.GetClient())
	}

	// 11. 创建 HTTP 服务器
	httpServer, err := createHTTPServer(cfg, optionAppService, metricsInstance, rateLimiter)
	if err != nil {
		logger.Fatal(ctx, "Failed to create HTTP server", "error", err)
	}

	// 12. 创建 gRPC 服务器
	grpcServer := createGRPCServer(cfg, optionAppService, metricsInstance, rateLimiter)

	go func() {
		logger.Info(ctx, "Starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "HTTP server error", "error", err)
		}
	}()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Fatal(ctx, "Failed to listen on gRPC address", "error", err)
		}
		logger.Info(ctx, "Starting gRPC server", "addr", addr)
		if err := grpcServer.Serve(listener); err != nil {
			logger.Fatal(ctx, "gRPC server error", "error", err)
		}
	}()

	// 13. 优雅关停
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "Shutting down OptionService")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	stopRelay()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "Metrics server shutdown error", "error", err)
		}
	}

	logger.Info(ctx, "OptionService stopped")
}

// openStore 按存储驱动创建仓储
func openStore(ctx context.Context, cfg *config.Config, redisCache *cache.RedisCache) (optionStore, func()) {
	switch cfg.Storage.Driver {
	case "mysql", "postgres", "sqlite":
		database, err := db.Init(db.Config{
			Driver:             cfg.Storage.Driver,
			DSN:                cfg.Database.DSN,
			MaxOpenConns:       cfg.Database.MaxOpenConns,
			MaxIdleConns:       cfg.Database.MaxIdleConns,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			LogEnabled:         cfg.Database.LogEnabled,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize database", "error", err)
		}
		repo := mysql.NewOptionRepo(database)
		if err := repo.Migrate(ctx); err != nil {
			logger.Fatal(ctx, "Failed to migrate database", "error", err)
		}
		return repo, func() { _ = database.Close() }
	case "redis":
		return redisrepo.NewOptionRepo(redisCache.GetClient(), cfg.Storage.KeyPrefix), func() {}
	default:
		logger.Warn(ctx, "Using in-memory storage, state is lost on restart")
		return memory.NewOptionRepo(), func() {}
	}
}

// createHTTPServer 创建 HTTP 服务器
func createHTTPServer(cfg *config.Config, svc *application.OptionAppService, m *metrics.Metrics, rateLimiter ratelimit.RateLimiter) (*http.Server, error) {
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.GinMetricsMiddleware(m))
	if rateLimiter != nil {
		router.Use(middleware.RateLimitMiddleware(rateLimiter, cfg.RateLimit))
	}

	handler, err := httphandler.NewOptionHandler(svc, logger.Get())
	if err != nil {
		return nil, err
	}
	handler.RegisterRoutes(router.Group(""))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   cfg.ServiceName,
			"timestamp": time.Now().Unix(),
		})
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}, nil
}

// createGRPCServer 创建 gRPC 服务器
func createGRPCServer(cfg *config.Config, svc *application.OptionAppService, m *metrics.Metrics, rateLimiter ratelimit.RateLimiter) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		middleware.GRPCRecoveryInterceptor(),
		middleware.GRPCLoggingInterceptor(),
		middleware.GRPCMetricsInterceptor(m),
	}
	if rateLimiter != nil {
		interceptors = append(interceptors, middleware.GRPCRateLimitInterceptor(rateLimiter, cfg.RateLimit))
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
		grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentStreams)),
	)

	grpchandler.RegisterOptionServiceServer(server, grpchandler.NewHandler(svc, logger.Get()))
	return server
}
