package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aihub/media-engine/internal/models"
)

// clusterRepository 聚类仓库实现
type clusterRepository struct {
	db *gorm.DB
}

// NewClusterRepository 创建聚类仓库
func NewClusterRepository(db *gorm.DB) ClusterRepository {
	return &clusterRepository{db: db}
}

// GetDB 获取数据库连接
func (r *clusterRepository) GetDB() *gorm.DB {
	return r.db
}

// Save 写入或更新聚类记录。目录内存态为准，落库按版本覆盖。
func (r *clusterRepository) Save(ctx context.Context, cluster *models.Cluster) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cluster_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "centroid", "embedding_sum", "member_count",
			"threshold", "state", "version", "update_time",
		}),
	}).Create(cluster).Error
}

// GetByID 根据ID获取聚类
func (r *clusterRepository) GetByID(ctx context.Context, clusterID string) (*models.Cluster, error) {
	var cluster models.Cluster
	err := r.db.WithContext(ctx).Where("cluster_id = ?", clusterID).First(&cluster).Error
	if err != nil {
		return nil, err
	}
	return &cluster, nil
}

// Delete 删除聚类记录
func (r *clusterRepository) Delete(ctx context.Context, clusterID string) error {
	return r.db.WithContext(ctx).Where("cluster_id = ?", clusterID).
		Delete(&models.Cluster{}).Error
}

// ListAll 获取全部聚类（启动恢复用）
func (r *clusterRepository) ListAll(ctx context.Context) ([]models.Cluster, error) {
	var clusters []models.Cluster
	err := r.db.WithContext(ctx).Find(&clusters).Error
	if err != nil {
		return nil, err
	}
	return clusters, nil
}
