package engine

import (
	"context"

	"github.com/aihub/media-engine/internal/cluster"
	apperrors "github.com/aihub/media-engine/internal/errors"
	"github.com/aihub/media-engine/internal/events"
	"github.com/aihub/media-engine/internal/metrics"
)

// RenameCluster 重命名聚类，名称大小写不敏感唯一
func (s *Service) RenameCluster(ctx context.Context, clusterID, name, actor string) (cluster.Snapshot, error) {
	snap, err := s.dir.Rename(clusterID, name)
	if err != nil {
		return cluster.Snapshot{}, err
	}
	s.persistCluster(ctx, snap)
	s.publishAdminAction("rename", clusterID, actor, map[string]interface{}{"name": name})
	return snap, nil
}

// ConfirmCluster 手动确认聚类，对已确认的聚类幂等
func (s *Service) ConfirmCluster(ctx context.Context, clusterID, actor string) (cluster.Snapshot, error) {
	snap, err := s.dir.Confirm(clusterID)
	if err != nil {
		return cluster.Snapshot{}, err
	}
	s.persistCluster(ctx, snap)
	s.refreshGauges()
	s.publishAdminAction("confirm", clusterID, actor, nil)
	return snap, nil
}

// UpdateThreshold 更新聚类接纳阈值。reevaluate为真时对既有成员重新判定：
// 与当前质心相似度低于新阈值的成员被摘出并重新走一遍指派流程，
// 可能回到原聚类、落入其他聚类或新建聚类。
func (s *Service) UpdateThreshold(ctx context.Context, clusterID string, threshold float64, reevaluate bool, actor string) (cluster.Snapshot, error) {
	snap, err := s.dir.SetThreshold(clusterID, threshold)
	if err != nil {
		return cluster.Snapshot{}, err
	}

	if reevaluate {
		snap, err = s.reevaluateMembers(ctx, clusterID, threshold)
		if err != nil {
			return cluster.Snapshot{}, err
		}
	}

	// 重评估可能摘空并删除聚类，已删除的聚类不再回写存储和候选索引
	if _, ok := s.dir.Snapshot(clusterID); ok {
		s.persistCluster(ctx, snap)
		s.syncIndex(ctx, snap)
	}
	s.publishAdminAction("update_threshold", clusterID, actor, map[string]interface{}{
		"threshold":  threshold,
		"reevaluate": reevaluate,
	})
	return snap, nil
}

// reevaluateMembers 按新阈值重新判定聚类成员
func (s *Service) reevaluateMembers(ctx context.Context, clusterID string, threshold float64) (cluster.Snapshot, error) {
	snap, ok := s.dir.Snapshot(clusterID)
	if !ok {
		return cluster.Snapshot{}, apperrors.NewClusterNotFoundError(clusterID)
	}

	for _, m := range s.members.list(clusterID) {
		sim := cluster.Dot(snap.Centroid, m.embedding)
		if sim >= threshold {
			continue
		}

		detached, removed, err := s.dir.Detach(clusterID, m.embedding)
		if err != nil {
			return cluster.Snapshot{}, apperrors.NewClusterNotFoundError(clusterID)
		}
		s.members.remove(clusterID, m.assetID)
		if removed {
			// 最后一个成员被摘出，聚类随之消亡
			s.dropIndex(ctx, clusterID)
			s.deleteClusterRow(ctx, clusterID)
		} else {
			snap = detached
		}

		target, created, err := s.assigner.Assign(ctx, m.embedding)
		if err != nil {
			return cluster.Snapshot{}, err
		}
		s.members.add(target.ID, m.assetID, m.embedding)
		s.syncIndex(ctx, target)
		s.persistCluster(ctx, target)
		s.updateAssetCluster(ctx, m.assetID, target.ID)
		if created {
			metrics.ClustersCreatedTotal.Inc()
		}

		s.log.Info("成员按新阈值迁移",
			"asset_id", m.assetID,
			"from_cluster", clusterID,
			"to_cluster", target.ID,
			"similarity", sim)

		if removed {
			s.refreshGauges()
			return snap, nil
		}

		// 摘出改变了质心，后续成员对照最新快照判定
		if target.ID == clusterID {
			snap = target
		}
	}

	s.refreshGauges()
	return snap, nil
}

// MergeClusters 合并聚类：成员、资产归属和持久化状态一并迁移到目标
func (s *Service) MergeClusters(ctx context.Context, targetID string, sourceIDs []string, actor string) (cluster.MergeResult, error) {
	result, err := s.dir.Merge(targetID, sourceIDs)
	if err != nil {
		return cluster.MergeResult{}, err
	}

	for _, sourceID := range result.Removed {
		s.members.moveAll(sourceID, targetID)
		s.dropIndex(ctx, sourceID)
		s.deleteClusterRow(ctx, sourceID)
		if s.assets != nil {
			if err := s.assets.ReassignCluster(ctx, sourceID, targetID); err != nil {
				s.log.WithError(err).Error("迁移资产归属失败",
					"from_cluster", sourceID,
					"to_cluster", targetID)
			}
		}
		metrics.ClustersMergedTotal.Inc()
	}

	s.persistCluster(ctx, result.Target)
	s.syncIndex(ctx, result.Target)
	s.refreshGauges()

	s.publishAdminAction("merge", targetID, actor, map[string]interface{}{
		"sources":      result.Removed,
		"member_count": result.Target.MemberCount,
	})
	if err := s.events.PublishClusterEvent("merged", events.ClusterEvent{
		ClusterID:   result.Target.ID,
		Name:        result.Target.Name,
		MemberCount: result.Target.MemberCount,
		State:       string(result.Target.State),
	}); err != nil {
		s.log.WithError(err).Warn("发布合并事件失败", "cluster_id", targetID)
	}

	s.log.Info("聚类合并完成",
		"target", targetID,
		"sources", result.Removed,
		"member_count", result.Target.MemberCount)

	return result, nil
}

func (s *Service) deleteClusterRow(ctx context.Context, clusterID string) {
	if s.clusters == nil {
		return
	}
	if err := s.clusters.Delete(ctx, clusterID); err != nil {
		s.log.WithError(err).Error("删除聚类记录失败", "cluster_id", clusterID)
	}
}

func (s *Service) updateAssetCluster(ctx context.Context, assetID, clusterID string) {
	if s.assets == nil {
		return
	}
	if err := s.assets.UpdateCluster(ctx, assetID, &clusterID); err != nil {
		s.log.WithError(err).Error("更新资产聚类归属失败", "asset_id", assetID)
	}
}

func (s *Service) publishAdminAction(action, targetID, actor string, details map[string]interface{}) {
	if err := s.events.PublishAdminAction(events.AdminActionEvent{
		Action:      action,
		TargetID:    targetID,
		PerformedBy: actor,
		Details:     details,
	}); err != nil {
		s.log.WithError(err).Warn("发布审计事件失败", "action", action)
	}
}
