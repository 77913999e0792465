package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/funcbase/engine/internal/api"
	"github.com/funcbase/engine/internal/auth"
	"github.com/funcbase/engine/internal/biz/function"
	"github.com/funcbase/engine/internal/builtins"
	"github.com/funcbase/engine/internal/engine"
	"github.com/funcbase/engine/internal/infra/persistence/callrepo"
	"github.com/funcbase/engine/internal/infra/persistence/functionrepo"
	"github.com/funcbase/engine/internal/infra/persistence/schedulerepo"
	"github.com/funcbase/engine/internal/orm"
	"github.com/funcbase/engine/internal/ratelimit"
	"github.com/funcbase/engine/internal/scheduler"
	"github.com/funcbase/engine/internal/workerpool"
	"github.com/funcbase/engine/pkg/config"
	"github.com/funcbase/engine/pkg/logger"
	"github.com/yitter/idgenerator-go/idgen"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 雪花ID用于call与schedule主键
	var options = idgen.NewIdGeneratorOptions(1)
	options.BaseTime = 1755937966000
	options.WorkerIdBitLength = 6
	idgen.SetIdGenerator(options)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting function backend",
		zap.String("functions_dir", cfg.Functions.Dir))

	storageConfig := orm.Config{
		Host:                  cfg.Database.Host,
		Port:                  cfg.Database.Port,
		Database:              cfg.Database.Database,
		User:                  cfg.Database.User,
		Password:              cfg.Database.Password,
		MaxConnections:        cfg.Database.MaxConnections,
		MaxIdleConnections:    cfg.Database.MaxIdleConnections,
		ConnectionMaxLifetime: cfg.Database.ConnectionMaxLifetime,
	}

	db, err := orm.New(storageConfig)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	functionRepo := functionrepo.NewMysqlRepositoryImpl(db.DB())
	callRepo := callrepo.NewMysqlRepositoryImpl(db.DB())
	scheduleRepo := schedulerepo.NewMysqlRepositoryImpl(db.DB(), zapLogger)

	ctx := context.Background()

	// 扫描并注册函数目录
	registry := function.NewRegistry()
	loader := function.NewLoader(cfg.Functions.Dir, registry, functionRepo, zapLogger)
	if err := loader.LoadAll(ctx); err != nil {
		zapLogger.Fatal("Failed to load functions", zap.Error(err))
	}

	// 进程内声明的内置函数，schema从Go类型反射
	builtinsDir := filepath.Join(cfg.Functions.DepsCacheDir, "builtins")
	if err := builtins.Register(ctx, registry, functionRepo, builtinsDir, zapLogger); err != nil {
		zapLogger.Fatal("Failed to register builtin functions", zap.Error(err))
	}

	// worker池
	installer := workerpool.NewInstaller(cfg.Functions.DepsCacheDir, cfg.Functions.RuntimeCommand, zapLogger)
	spawner := workerpool.NewSpawner(cfg.Functions.RuntimeCommand, cfg.Functions.WorkerStartupTimeout, installer, zapLogger)
	pool := workerpool.NewPool(spawner.Spawn, registry, workerpool.Options{
		IdleTTL:           cfg.Functions.WorkerIdleTTL,
		ReapInterval:      cfg.Functions.WorkerReapInterval,
		MaxIdlePerVersion: cfg.Functions.MaxIdleWorkersPerVer,
	}, zapLogger)
	defer pool.Close()

	// 限流后端，多实例部署时切redis
	var limiter ratelimit.Backend
	switch cfg.RateLimit.Backend {
	case "redis":
		client := ProvideRedisClient(cfg)
		if client == nil {
			zapLogger.Fatal("rate_limit.backend is redis but redis is disabled")
		}
		limiter = ratelimit.NewRedisBackend(client, cfg.RateLimit.MaxConcurrentPerUser, cfg.RateLimit.LeaseTTL)
	default:
		limiter = ratelimit.NewLocalBackend(cfg.RateLimit.MaxConcurrentPerUser, cfg.RateLimit.LeaseTTL)
	}

	eng := engine.New(registry, callRepo, pool, limiter, engine.Options{
		MaxPayloadBytes: cfg.Functions.MaxFunctionPayloadBytes,
		MaxResultBytes:  cfg.Functions.MaxFunctionResultBytes,
		DefaultTimeout:  cfg.Scheduler.FunctionTimeoutSeconds,
	}, zapLogger)

	sched := scheduler.New(scheduleRepo, callRepo, eng, scheduler.Options{
		Interval:        cfg.Scheduler.IntervalSeconds,
		FunctionTimeout: cfg.Scheduler.FunctionTimeoutSeconds,
		MaxPerTick:      cfg.Scheduler.MaxSchedulesPerTick,
		MaxConcurrent:   cfg.Scheduler.MaxConcurrentExecutions,
	}, zapLogger)

	if err := sched.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	resolver := auth.NewStaticResolver(cfg.Server.AdminToken)
	apiServer := api.NewServer(registry, functionRepo, eng, scheduleRepo, callRepo, resolver, api.Options{
		MaxPayloadBytes:   cfg.Functions.MaxFunctionPayloadBytes,
		RetryAfterSeconds: 1,
	}, zapLogger)

	httpServer := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        apiServer.Router(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		zapLogger.Info("Starting API server",
			zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zapLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown API server", zap.Error(err))
	}

	sched.Stop()

	zapLogger.Info("Shutdown complete")
}
