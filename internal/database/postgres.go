package database

import (
	"fmt"
	"log"

	"github.com/aihub/media-engine/internal/config"
	"github.com/aihub/media-engine/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() (*gorm.DB, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sql.DB设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := autoMigrate(db); err != nil {
		log.Printf("⚠️  Database migration warning: %v", err)
	}

	DB = db
	log.Println("✅ Database connected successfully")
	return db, nil
}

// autoMigrate 自动迁移引擎相关表
func autoMigrate(db *gorm.DB) error {
	// 先创建聚类表，资产表通过cluster_id引用它
	if err := db.AutoMigrate(&models.Cluster{}); err != nil {
		return fmt.Errorf("failed to migrate media_clusters: %w", err)
	}
	if err := db.AutoMigrate(&models.Asset{}); err != nil {
		return fmt.Errorf("failed to migrate media_assets: %w", err)
	}
	return nil
}

// Wrapper 数据库接口包装
type Wrapper struct {
	db *gorm.DB
}

func NewWrapper(db *gorm.DB) *Wrapper {
	return &Wrapper{db: db}
}

func (w *Wrapper) GetDB() *gorm.DB {
	return w.db
}

func (w *Wrapper) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (w *Wrapper) HealthCheck() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func CloseDB() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
