package engine

import (
	"context"
	"math"
	"sort"

	"github.com/aihub/media-engine/internal/cluster"
	apperrors "github.com/aihub/media-engine/internal/errors"
	"github.com/aihub/media-engine/internal/models"
)

// CentroidQuality 成员与质心相似度的分布统计
type CentroidQuality struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// ClusterStats 单个聚类的统计信息
type ClusterStats struct {
	ClusterID   string          `json:"cluster_id"`
	Name        string          `json:"name"`
	MemberCount int             `json:"member_count"`
	State       string          `json:"state"`
	Threshold   float64         `json:"threshold"`
	Quality     CentroidQuality `json:"centroid_quality"`
}

// MergeCandidate 一对质心相似度达标的聚类
type MergeCandidate struct {
	ClusterA   string  `json:"cluster_a"`
	ClusterB   string  `json:"cluster_b"`
	Similarity float64 `json:"similarity"`
}

// ListClusters 按条件列出聚类快照。provisionalOnly只取未确认的聚类，
// minMembers过滤成员数不足的小聚类，两者为零值时返回全部。
func (s *Service) ListClusters(ctx context.Context, provisionalOnly bool, minMembers int) []cluster.Snapshot {
	var snaps []cluster.Snapshot
	for _, snap := range s.dir.List() {
		if provisionalOnly && snap.State != cluster.StateProvisional {
			continue
		}
		if snap.MemberCount < minMembers {
			continue
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// GetClusterStats 计算聚类的质心质量统计
func (s *Service) GetClusterStats(ctx context.Context, clusterID string) (ClusterStats, error) {
	snap, ok := s.dir.Snapshot(clusterID)
	if !ok {
		return ClusterStats{}, apperrors.NewClusterNotFoundError(clusterID)
	}

	stats := ClusterStats{
		ClusterID:   snap.ID,
		Name:        snap.Name,
		MemberCount: snap.MemberCount,
		State:       string(snap.State),
		Threshold:   snap.Threshold,
	}

	members := s.members.list(clusterID)
	if len(members) == 0 {
		return stats, nil
	}

	sims := make([]float64, len(members))
	var sum float64
	stats.Quality.Min = 2
	stats.Quality.Max = -2
	for i, m := range members {
		sim := cluster.Dot(snap.Centroid, m.embedding)
		sims[i] = sim
		sum += sim
		if sim < stats.Quality.Min {
			stats.Quality.Min = sim
		}
		if sim > stats.Quality.Max {
			stats.Quality.Max = sim
		}
	}
	mean := sum / float64(len(sims))
	var variance float64
	for _, sim := range sims {
		variance += (sim - mean) * (sim - mean)
	}
	stats.Quality.Mean = mean
	stats.Quality.Std = math.Sqrt(variance / float64(len(sims)))
	return stats, nil
}

// MergeCandidates 找出质心相似度不低于配置阈值的聚类对，
// 供管理端决定是否合并。按相似度降序返回。
func (s *Service) MergeCandidates(ctx context.Context) []MergeCandidate {
	snaps := s.ListClusters(ctx, false, 0)
	var out []MergeCandidate
	for i := 0; i < len(snaps); i++ {
		for j := i + 1; j < len(snaps); j++ {
			sim := cluster.Dot(snaps[i].Centroid, snaps[j].Centroid)
			if sim >= s.cfg.MergeSimilarity {
				out = append(out, MergeCandidate{
					ClusterA:   snaps[i].ID,
					ClusterB:   snaps[j].ID,
					Similarity: sim,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

// LoadState 从数据库恢复聚类目录、去重索引和成员映射。
// 进程重启后调用一次，之后引擎以内存态运行。
func (s *Service) LoadState(ctx context.Context) error {
	if s.clusters == nil || s.assets == nil {
		return nil
	}

	rows, err := s.clusters.ListAll(ctx)
	if err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "load clusters failed").WithCause(err)
	}
	for _, row := range rows {
		centroid, err := row.GetCentroid()
		if err != nil {
			s.log.WithError(err).Error("解码质心失败", "cluster_id", row.ClusterID)
			continue
		}
		sum, err := row.GetEmbeddingSum()
		if err != nil {
			s.log.WithError(err).Error("解码向量累加和失败", "cluster_id", row.ClusterID)
			continue
		}
		snap := cluster.Snapshot{
			ID:          row.ClusterID,
			Name:        row.Name,
			Centroid:    centroid,
			Sum:         sum,
			MemberCount: row.MemberCount,
			Threshold:   row.Threshold,
			State:       cluster.State(row.State),
			Version:     uint64(row.Version),
			CreateTime:  row.CreateTime,
			UpdateTime:  row.UpdateTime,
		}
		s.dir.Restore(snap)
		s.syncIndex(ctx, snap)
	}

	assets, err := s.assets.ListAll(ctx)
	if err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "load assets failed").WithCause(err)
	}
	for _, row := range assets {
		// 重复资产当初未登记去重索引，恢复时同样跳过
		if row.Status == models.AssetStatusDuplicate {
			continue
		}
		if _, _, err := s.dedup.Register(ctx, row.ContentHash, row.GetFingerprint(), row.AssetID); err != nil {
			s.log.WithError(err).Error("恢复去重登记失败", "asset_id", row.AssetID)
			continue
		}
		if row.ClusterID == nil {
			continue
		}
		emb, err := row.GetEmbedding()
		if err != nil {
			s.log.WithError(err).Error("解码资产向量失败", "asset_id", row.AssetID)
			continue
		}
		s.members.add(*row.ClusterID, row.AssetID, emb)
	}

	s.refreshGauges()
	s.log.Info("引擎状态恢复完成", "clusters", len(rows), "assets", len(assets))
	return nil
}
