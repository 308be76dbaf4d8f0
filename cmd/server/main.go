package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/config"
	"github.com/mamadbah2/fieldinventory/internal/lock"
	"github.com/mamadbah2/fieldinventory/internal/registry"
	"github.com/mamadbah2/fieldinventory/internal/repository"
	"github.com/mamadbah2/fieldinventory/internal/repository/memory"
	"github.com/mamadbah2/fieldinventory/internal/repository/mongodb"
	"github.com/mamadbah2/fieldinventory/internal/repository/sheets"
	"github.com/mamadbah2/fieldinventory/internal/scheduler"
	"github.com/mamadbah2/fieldinventory/internal/server/handlers"
	"github.com/mamadbah2/fieldinventory/internal/server/router"
	inventorysvc "github.com/mamadbah2/fieldinventory/internal/service/inventory"
	readingsvc "github.com/mamadbah2/fieldinventory/internal/service/readingsession"
	registryclient "github.com/mamadbah2/fieldinventory/pkg/clients/registry"
	"github.com/mamadbah2/fieldinventory/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(logger.Options{Level: cfg.Log.Level, Service: "fieldinventory"}))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, err := openStore(cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init store", zap.Error(err), zap.String("driver", cfg.Store.Driver))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close store", zap.Error(err))
		}
	}()

	reg, err := openRegistry(cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init registry", zap.Error(err), zap.String("driver", cfg.Registry.Driver))
	}

	var gate lock.Gate
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			baseLogger.Fatal("failed to reach redis", zap.Error(err))
		}
		gate = lock.NewRedisGate(rdb, cfg.Redis.LockTTL, logger.Named(baseLogger, "lock.redis"))
		baseLogger.Info("distributed sync gate enabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		gate = lock.NewLocalGate()
		baseLogger.Warn("redis address missing, sync gate is local to this process")
	}

	inventorySvc := inventorysvc.NewService(store, reg, gate, logger.Named(baseLogger, "svc.inventory"))
	readingSvc := readingsvc.NewService(store, inventorySvc, readingsvc.Options{
		DefaultTimeout: cfg.Reading.DefaultTimeout,
		MaxTimeout:     cfg.Reading.MaxTimeout,
	}, logger.Named(baseLogger, "svc.readingsession"))

	engine := router.New(
		handlers.NewSessionHandler(inventorySvc, logger.Named(baseLogger, "handlers.sessions")),
		handlers.NewReadingSessionHandler(readingSvc, cfg.Reading.DeviceLinkScheme, logger.Named(baseLogger, "handlers.readingsessions")),
		logger.Named(baseLogger, "router"),
	)

	sched := scheduler.NewScheduler(cfg.Reading.ExpirySweepSchedule, readingSvc, logger.Named(baseLogger, "scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Registry.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	if cfg.Store.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}
	repo, err := mongodb.NewMongoDBRepository(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName, logger.Named(log, "repo.mongodb"))
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func openRegistry(cfg *config.Config, log *zap.Logger) (registry.Registry, error) {
	if cfg.Registry.Driver == "sheets" {
		repo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, logger.Named(log, "repo.sheets"))
		if err != nil {
			return nil, err
		}
		return registry.NewSheetsRegistry(repo, cfg.Sheets.AssetsRange, cfg.Sheets.ResultsRange, logger.Named(log, "registry.sheets")), nil
	}
	return registryclient.NewClient(cfg.Registry), nil
}
