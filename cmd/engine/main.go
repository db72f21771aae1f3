package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/aihub/media-engine/internal/cluster"
	"github.com/aihub/media-engine/internal/config"
	"github.com/aihub/media-engine/internal/database"
	"github.com/aihub/media-engine/internal/dedup"
	"github.com/aihub/media-engine/internal/engine"
	"github.com/aihub/media-engine/internal/events"
	"github.com/aihub/media-engine/internal/kafka"
	"github.com/aihub/media-engine/internal/logger"
	"github.com/aihub/media-engine/internal/metrics"
	"github.com/aihub/media-engine/internal/repository"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.InitLogger(); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.AppConfig
	opts := engine.Options{
		Config: cfg.Engine,
		Logger: logger.NewZapLogger(logger.GetLogger()),
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 数据库可选，未配置时引擎以纯内存方式运行
	if cfg.Database.Enabled {
		db, err := database.InitDB()
		if err != nil {
			log.Fatalf("failed to init database: %v", err)
		}
		wrapper := database.NewWrapper(db)
		defer wrapper.Close()

		if err := wrapper.HealthCheck(); err != nil {
			log.Fatalf("database health check failed: %v", err)
		}

		if sqlDB, err := db.DB(); err != nil {
			logger.Warn("获取底层数据库连接失败", zap.Error(err))
		} else {
			if mgr, err := database.NewMigrationManager(sqlDB, "migrations", logrus.New()); err != nil {
				logger.Warn("迁移管理器初始化失败，依赖AutoMigrate建表", zap.Error(err))
			} else if err := mgr.Up(); err != nil {
				logger.Warn("执行迁移失败", zap.Error(err))
			}

			checker := database.NewHealthChecker(sqlDB, logrus.New())
			go checker.Start(rootCtx)
			defer checker.Stop()
		}

		opts.Assets = repository.NewAssetRepository(wrapper.GetDB())
		opts.Clusters = repository.NewClusterRepository(wrapper.GetDB())
	}

	if cfg.Engine.Dedup.Provider == "redis" {
		rdb, err := database.InitRedis()
		if err != nil {
			log.Fatalf("failed to init redis: %v", err)
		}
		defer database.CloseRedis()
		opts.DedupIndex = dedup.NewRedisIndex(rdb, cfg.Engine.Dedup.HammingBound)
	}

	if cfg.Kafka.Enabled {
		if err := kafka.InitProducer(cfg.Kafka.Brokers); err != nil {
			logger.Warn("Kafka生产者初始化失败，事件发布降级为跳过", zap.Error(err))
		} else {
			defer kafka.CloseProducer()
		}
	}
	opts.Events = events.NewEventService()

	if cfg.Engine.CandidateIndex.Provider == "milvus" {
		m := cfg.Engine.CandidateIndex.Milvus
		index, err := cluster.NewMilvusIndex(cluster.MilvusOptions{
			Address:    m.Address,
			Username:   m.Username,
			Password:   m.Password,
			Database:   m.Database,
			Collection: m.Collection,
			Dim:        cfg.Engine.EmbeddingDim,
			UseTLS:     m.TLS,
		})
		if err != nil {
			logger.Warn("Milvus候选索引初始化失败，回退到全量扫描", zap.Error(err))
		} else {
			opts.CandidateIndex = index
		}
	}

	svc := engine.NewService(opts)

	if err := svc.LoadState(rootCtx); err != nil {
		log.Fatalf("failed to restore engine state: %v", err)
	}

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9100"
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Warn("指标服务退出", zap.Error(err))
		}
	}()

	logger.Info("🚀 Media dedup/cluster engine started",
		zap.Int("embedding_dim", cfg.Engine.EmbeddingDim),
		zap.Float64("cluster_threshold", cfg.Engine.ClusterThreshold),
		zap.String("dedup_provider", cfg.Engine.Dedup.Provider),
		zap.String("candidate_index", cfg.Engine.CandidateIndex.Provider))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("engine shutting down")
}
