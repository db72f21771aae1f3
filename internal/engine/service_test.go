package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/media-engine/internal/config"
	apperrors "github.com/aihub/media-engine/internal/errors"
	"github.com/aihub/media-engine/internal/logger"
)

func newTestService() *Service {
	return NewService(Options{
		Config: config.EngineConfig{
			EmbeddingDim:     4,
			ClusterThreshold: 0.72,
			ConfirmCount:     3,
			RetryBudget:      5,
			MergeSimilarity:  0.85,
			Dedup:            config.DedupConfig{Provider: "memory", HammingBound: 5},
			CandidateIndex:   config.CandidateIndexConfig{Candidates: 16},
		},
		Logger: logger.NewNopLogger(),
	})
}

func contentHash(n int) string {
	return fmt.Sprintf("%064x", n)
}

func unit4(x, y, z, w float64) []float32 {
	norm := math.Sqrt(x*x + y*y + z*z + w*w)
	return []float32{
		float32(x / norm), float32(y / norm),
		float32(z / norm), float32(w / norm),
	}
}

func TestAssignOrDedupePipeline(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	// 首个资产新建聚类
	first, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-1",
		ContentHash: contentHash(1),
		Fingerprint: 0xff00,
		Embedding:   unit4(1, 0, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNewCluster, first.Outcome)
	assert.NotEmpty(t, first.ClusterID)
	assert.Equal(t, 1, first.MemberCount)

	// 相似向量归入同一聚类
	second, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-2",
		ContentHash: contentHash(2),
		Fingerprint: 0x00ff,
		Embedding:   unit4(0.96, 0.28, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAttached, second.Outcome)
	assert.Equal(t, first.ClusterID, second.ClusterID)
	assert.Equal(t, 2, second.MemberCount)

	// 相同内容哈希判为精确重复，不触碰聚类
	dup, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-3",
		ContentHash: contentHash(1),
		Fingerprint: 0xff00,
		Embedding:   unit4(1, 0, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, dup.Outcome)
	assert.Equal(t, "asset-1", dup.DuplicateOf)
	assert.Equal(t, first.ClusterID, dup.ClusterID)

	// 指纹距离3在界内，判为近重复
	near, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-4",
		ContentHash: contentHash(4),
		Fingerprint: 0xff00 ^ 0b111,
		Embedding:   unit4(1, 0, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNearDuplicate, near.Outcome)
	assert.Equal(t, "asset-1", near.DuplicateOf)
	assert.Equal(t, 3, near.Distance)
	assert.Equal(t, first.ClusterID, near.ClusterID)

	// 重复资产未被记入成员
	stats, err := svc.GetClusterStats(ctx, first.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MemberCount)
}

func TestAssignOrDedupeRejectsInvalidEmbedding(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	// 维度不匹配
	_, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-1",
		ContentHash: contentHash(1),
		Embedding:   []float32{1, 0, 0},
	})
	assert.True(t, apperrors.IsInvalidEmbedding(err))

	// 非单位范数
	_, err = svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-1",
		ContentHash: contentHash(1),
		Embedding:   []float32{2, 0, 0, 0},
	})
	assert.True(t, apperrors.IsInvalidEmbedding(err))

	// 缺少内容哈希
	_, err = svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:   "asset-1",
		Embedding: unit4(1, 0, 0, 0),
	})
	assert.Error(t, err)
}

func TestAssignOrDedupeConfirmsAtThreeMembers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	vectors := [][]float32{
		unit4(1, 0, 0, 0),
		unit4(0.96, 0.28, 0, 0),
		unit4(0.96, -0.28, 0, 0),
	}
	var last Result
	for i, vec := range vectors {
		var err error
		last, err = svc.AssignOrDedupe(ctx, WorkItem{
			AssetID:     fmt.Sprintf("asset-%d", i),
			ContentHash: contentHash(i),
			Fingerprint: uint64(0xff) << (8 * i),
			Embedding:   vec,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, last.MemberCount)
	assert.Equal(t, "confirmed", last.State)
}

func TestMergeClustersViaEngine(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	a, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-a",
		ContentHash: contentHash(1),
		Fingerprint: 0xff,
		Embedding:   unit4(1, 0, 0, 0),
	})
	require.NoError(t, err)
	b, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-b",
		ContentHash: contentHash(2),
		Fingerprint: 0xff0000,
		Embedding:   unit4(0, 1, 0, 0),
	})
	require.NoError(t, err)
	require.NotEqual(t, a.ClusterID, b.ClusterID)

	result, err := svc.MergeClusters(ctx, a.ClusterID, []string{b.ClusterID}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Target.MemberCount)
	assert.Equal(t, []string{b.ClusterID}, result.Removed)

	// 源聚类的成员归到目标名下
	stats, err := svc.GetClusterStats(ctx, a.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MemberCount)

	_, err = svc.GetClusterStats(ctx, b.ClusterID)
	assert.True(t, apperrors.IsClusterNotFound(err))

	// 自合并被拒
	_, err = svc.MergeClusters(ctx, a.ClusterID, []string{a.ClusterID}, "admin")
	assert.True(t, apperrors.IsSelfMerge(err))
}

func TestUpdateThresholdReevaluatesMembers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	items := []WorkItem{
		{AssetID: "core-1", ContentHash: contentHash(1), Fingerprint: 0xff, Embedding: unit4(1, 0, 0, 0)},
		{AssetID: "core-2", ContentHash: contentHash(2), Fingerprint: 0xff00, Embedding: unit4(1, 0, 0, 0)},
		{AssetID: "edge", ContentHash: contentHash(3), Fingerprint: 0xff0000, Embedding: unit4(0.8, 0.6, 0, 0)},
	}
	var clusterID string
	for _, item := range items {
		res, err := svc.AssignOrDedupe(ctx, item)
		require.NoError(t, err)
		if clusterID == "" {
			clusterID = res.ClusterID
		}
		require.Equal(t, clusterID, res.ClusterID)
	}

	// 抬高阈值并重评估，边缘成员迁出
	snap, err := svc.UpdateThreshold(ctx, clusterID, 0.95, true, "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.MemberCount)

	clusters := svc.ListClusters(ctx, false, 0)
	require.Len(t, clusters, 2)

	// 迁出的成员单独成provisional聚类
	provisional := svc.ListClusters(ctx, true, 0)
	require.Len(t, provisional, 1)
	assert.Equal(t, 1, provisional[0].MemberCount)

	established := svc.ListClusters(ctx, false, 2)
	require.Len(t, established, 1)
	assert.Equal(t, clusterID, established[0].ID)

	edgeCluster, ok := svc.members.clusterOf("edge")
	require.True(t, ok)
	assert.NotEqual(t, clusterID, edgeCluster)

	stats, err := svc.GetClusterStats(ctx, edgeCluster)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MemberCount)
}

func TestRenameAndConfirmViaEngine(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	a, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-a",
		ContentHash: contentHash(1),
		Fingerprint: 0xff,
		Embedding:   unit4(1, 0, 0, 0),
	})
	require.NoError(t, err)
	b, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-b",
		ContentHash: contentHash(2),
		Fingerprint: 0xff0000,
		Embedding:   unit4(0, 0, 1, 0),
	})
	require.NoError(t, err)

	snap, err := svc.RenameCluster(ctx, a.ClusterID, "Landscapes", "admin")
	require.NoError(t, err)
	assert.Equal(t, "Landscapes", snap.Name)

	_, err = svc.RenameCluster(ctx, b.ClusterID, "LANDSCAPES", "admin")
	assert.True(t, apperrors.IsNameCollision(err))

	confirmed, err := svc.ConfirmCluster(ctx, b.ClusterID, "admin")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", string(confirmed.State))
}

func TestGetClusterStatsQuality(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	res1, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-1",
		ContentHash: contentHash(1),
		Fingerprint: 0xff,
		Embedding:   unit4(1, 0, 0, 0),
	})
	require.NoError(t, err)
	_, err = svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-2",
		ContentHash: contentHash(2),
		Fingerprint: 0xff0000,
		Embedding:   unit4(0.8, 0.6, 0, 0),
	})
	require.NoError(t, err)

	stats, err := svc.GetClusterStats(ctx, res1.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MemberCount)
	// 对称的两个成员与质心等距
	assert.InDelta(t, stats.Quality.Min, stats.Quality.Max, 1e-6)
	assert.InDelta(t, stats.Quality.Mean, stats.Quality.Min, 1e-6)
	assert.InDelta(t, 0, stats.Quality.Std, 1e-6)
	assert.Greater(t, stats.Quality.Mean, 0.9)
}

func TestMergeCandidates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	// 直接在目录层造出两个质心相近的聚类（并发接纳竞态的产物）
	dir := svc.Directory()
	c1 := dir.Create("near-1", unit4(1, 0, 0, 0), 0)
	c2 := dir.Create("near-2", unit4(0.95, 0.3122, 0, 0), 0)
	dir.Create("far", unit4(0, 0, 1, 0), 0)

	candidates := svc.MergeCandidates(ctx)
	require.Len(t, candidates, 1)
	pair := []string{candidates[0].ClusterA, candidates[0].ClusterB}
	assert.ElementsMatch(t, []string{c1.ID, c2.ID}, pair)
	assert.GreaterOrEqual(t, candidates[0].Similarity, 0.85)
}

func TestStatsForUnknownCluster(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	_, err := svc.GetClusterStats(ctx, "no-such-cluster")
	assert.True(t, apperrors.IsClusterNotFound(err))
}

// recordingIndex 记录候选索引收到的同步与删除调用
type recordingIndex struct {
	mu  sync.Mutex
	log []string
}

func (r *recordingIndex) Sync(ctx context.Context, id string, centroid []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "sync:"+id)
	return nil
}

func (r *recordingIndex) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "remove:"+id)
	return nil
}

func (r *recordingIndex) Candidates(ctx context.Context, embedding []float32, topK int) ([]string, error) {
	return nil, nil
}

func (r *recordingIndex) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

func TestUpdateThresholdDropsEmptiedCluster(t *testing.T) {
	ctx := context.Background()
	idx := &recordingIndex{}
	svc := NewService(Options{
		Config: config.EngineConfig{
			EmbeddingDim:     4,
			ClusterThreshold: 0.72,
			ConfirmCount:     3,
			RetryBudget:      5,
			MergeSimilarity:  0.85,
			Dedup:            config.DedupConfig{Provider: "memory", HammingBound: 5},
			CandidateIndex:   config.CandidateIndexConfig{Candidates: 16},
		},
		CandidateIndex: idx,
		Logger:         logger.NewNopLogger(),
	})

	dir := svc.Directory()
	seeded := dir.Create("", unit4(1, 0, 0, 0), 0)
	// 成员向量与质心正交，重评估时必然被摘出，聚类随之清空
	svc.members.add(seeded.ID, "only-asset", unit4(0, 1, 0, 0))

	_, err := svc.UpdateThreshold(ctx, seeded.ID, 0.9, true, "admin")
	require.NoError(t, err)

	_, ok := dir.Snapshot(seeded.ID)
	assert.False(t, ok)

	// 从候选索引摘除后不得再回写已删聚类
	assert.Contains(t, idx.ops(), "remove:"+seeded.ID)
	assert.NotContains(t, idx.ops(), "sync:"+seeded.ID)

	clusters := svc.ListClusters(ctx, false, 0)
	require.Len(t, clusters, 1)
	assert.NotEqual(t, seeded.ID, clusters[0].ID)

	owner, ok := svc.members.clusterOf("only-asset")
	require.True(t, ok)
	assert.Equal(t, clusters[0].ID, owner)
}

func TestLateMemberRegistrationFollowsMerge(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	a, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-a",
		ContentHash: contentHash(1),
		Fingerprint: 0xff,
		Embedding:   unit4(1, 0, 0, 0),
	})
	require.NoError(t, err)
	b, err := svc.AssignOrDedupe(ctx, WorkItem{
		AssetID:     "asset-b",
		ContentHash: contentHash(2),
		Fingerprint: 0xff0000,
		Embedding:   unit4(0, 1, 0, 0),
	})
	require.NoError(t, err)

	_, err = svc.MergeClusters(ctx, a.ClusterID, []string{b.ClusterID}, "admin")
	require.NoError(t, err)

	// 指派提交赶在合并前、成员登记落在合并后：登记改挂到合并目标
	got := svc.members.add(b.ClusterID, "late-asset", unit4(0, 1, 0, 0))
	assert.Equal(t, a.ClusterID, got)

	owner, ok := svc.members.clusterOf("late-asset")
	require.True(t, ok)
	assert.Equal(t, a.ClusterID, owner)

	stats, err := svc.GetClusterStats(ctx, a.ClusterID)
	require.NoError(t, err)
	assert.Len(t, svc.members.list(a.ClusterID), 3)
	assert.Equal(t, 2, stats.MemberCount)
}

func TestMemberStoreForwardChain(t *testing.T) {
	m := newMemberStore()
	m.moveAll("c1", "c2")
	m.moveAll("c2", "c3")

	// 两级合并后的登记沿转发链一路落到最终目标
	got := m.add("c1", "asset-x", unit4(1, 0, 0, 0))
	assert.Equal(t, "c3", got)
	owner, ok := m.clusterOf("asset-x")
	require.True(t, ok)
	assert.Equal(t, "c3", owner)
}
