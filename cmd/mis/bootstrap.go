package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bitfantasy/nimo-mis/internal/config"
	"github.com/bitfantasy/nimo-mis/internal/mis/handler"
	"github.com/bitfantasy/nimo-mis/internal/mis/repository"
	"github.com/bitfantasy/nimo-mis/internal/mis/service"
	"github.com/bitfantasy/nimo-mis/internal/mis/sse"
	"github.com/bitfantasy/nimo-mis/internal/mis/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// app 运行时依赖集合
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	rdb    *redis.Client
	hub    *sse.Hub

	submissions *service.SubmissionService
	revisions   *service.RevisionService
	checks      map[string]handler.ReadinessCheck
}

func newApp(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: zapLogger,
		hub:    sse.NewHub(zapLogger),
		checks: make(map[string]handler.ReadinessCheck),
	}

	db, err := initDatabase(cfg.Database, cfg.Log.Level == "debug")
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := repository.Migrate(db); err != nil {
		a.Close()
		return nil, err
	}
	a.checks["database"] = func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}

	docs, err := initStore(ctx, cfg, zapLogger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var guard service.BatchGuard
	switch cfg.MIS.GuardBackend {
	case "redis":
		a.rdb = initRedis(cfg.Redis)
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.checks["redis"] = func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() }
		guard = service.NewRedisGuard(a.rdb, cfg.MIS.GuardTTL)
	case "", "memory":
		guard = service.NewMemoryGuard()
	default:
		a.Close()
		return nil, fmt.Errorf("unknown guard backend %q", cfg.MIS.GuardBackend)
	}

	repos := repository.NewRepositories(db)
	recordSvc := service.NewRecordService(repos.CostRecord, cfg.MIS.RecordList, zapLogger)
	attachSvc := service.NewAttachmentService(docs, cfg.MIS.AttachmentRoot, zapLogger)
	a.submissions = service.NewSubmissionService(recordSvc, attachSvc, guard, a.hub, service.SubmissionOptions{
		Workers:     cfg.MIS.Workers,
		CallTimeout: cfg.MIS.CallTimeout,
	}, zapLogger)
	a.revisions = service.NewRevisionService(repos.CostRecord, attachSvc, cfg.MIS.RecordList, zapLogger)

	return a, nil
}

// Close 释放数据库与 Redis 连接
func (a *app) Close() {
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig, logSQL bool) (*gorm.DB, error) {
	logMode := logger.Warn
	if logSQL {
		logMode = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logMode),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// initStore 配置了 MinIO 则使用对象存储，否则落本地目录
func initStore(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (service.DocumentStore, error) {
	if cfg.MinIO.Endpoint != "" {
		store, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		zapLogger.Info("Document store: minio", zap.String("endpoint", cfg.MinIO.Endpoint), zap.String("bucket", cfg.MinIO.Bucket))
		return store, nil
	}

	dir, err := filepath.Abs(cfg.Storage.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	store, err := storage.NewLocalStore(dir)
	if err != nil {
		return nil, err
	}
	zapLogger.Info("Document store: local", zap.String("dir", dir))
	return store, nil
}
