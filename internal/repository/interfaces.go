package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aihub/media-engine/internal/models"
)

// Repository 基础仓库接口
type Repository interface {
	GetDB() *gorm.DB
}

// AssetRepository 媒资仓库接口
type AssetRepository interface {
	Repository
	Save(ctx context.Context, asset *models.Asset) error
	GetByID(ctx context.Context, assetID string) (*models.Asset, error)
	ListByCluster(ctx context.Context, clusterID string) ([]models.Asset, error)
	UpdateCluster(ctx context.Context, assetID string, clusterID *string) error
	ReassignCluster(ctx context.Context, fromClusterID, toClusterID string) error
	ListAll(ctx context.Context) ([]models.Asset, error)
}

// ClusterRepository 聚类仓库接口
type ClusterRepository interface {
	Repository
	Save(ctx context.Context, cluster *models.Cluster) error
	GetByID(ctx context.Context, clusterID string) (*models.Cluster, error)
	Delete(ctx context.Context, clusterID string) error
	ListAll(ctx context.Context) ([]models.Cluster, error)
}
