package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aihub/media-engine/internal/models"
)

// assetRepository 媒资仓库实现
type assetRepository struct {
	db *gorm.DB
}

// NewAssetRepository 创建媒资仓库
func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{db: db}
}

// GetDB 获取数据库连接
func (r *assetRepository) GetDB() *gorm.DB {
	return r.db
}

// Save 写入或更新媒资记录
func (r *assetRepository) Save(ctx context.Context, asset *models.Asset) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cluster_id", "status", "duplicate_of", "update_time",
		}),
	}).Create(asset).Error
}

// GetByID 根据ID获取媒资
func (r *assetRepository) GetByID(ctx context.Context, assetID string) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.WithContext(ctx).Where("asset_id = ?", assetID).First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// ListByCluster 获取聚类下的全部媒资
func (r *assetRepository) ListByCluster(ctx context.Context, clusterID string) ([]models.Asset, error) {
	var assets []models.Asset
	err := r.db.WithContext(ctx).Where("cluster_id = ?", clusterID).Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// UpdateCluster 更新单个媒资的聚类归属（阈值重评估用）
func (r *assetRepository) UpdateCluster(ctx context.Context, assetID string, clusterID *string) error {
	return r.db.WithContext(ctx).Model(&models.Asset{}).
		Where("asset_id = ?", assetID).
		Update("cluster_id", clusterID).Error
}

// ReassignCluster 合并后把源聚类的媒资批量改挂到目标聚类
func (r *assetRepository) ReassignCluster(ctx context.Context, fromClusterID, toClusterID string) error {
	return r.db.WithContext(ctx).Model(&models.Asset{}).
		Where("cluster_id = ?", fromClusterID).
		Update("cluster_id", toClusterID).Error
}

// ListAll 获取全部媒资（启动恢复用）
func (r *assetRepository) ListAll(ctx context.Context) ([]models.Asset, error) {
	var assets []models.Asset
	err := r.db.WithContext(ctx).Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}
