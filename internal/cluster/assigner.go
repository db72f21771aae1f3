package cluster

import (
	"context"
	"errors"

	apperrors "github.com/aihub/media-engine/internal/errors"
	"github.com/aihub/media-engine/internal/metrics"
)

// CandidateIndex 向量候选索引。可选加速层：给出最可能相似的聚类id，
// 命中判定仍以目录内实时质心为准。
type CandidateIndex interface {
	Sync(ctx context.Context, id string, centroid []float32) error
	Remove(ctx context.Context, id string) error
	Candidates(ctx context.Context, embedding []float32, topK int) ([]string, error)
}

// DefaultRetryBudget 乐观提交的默认重试上限
const DefaultRetryBudget = 5

// Assigner 把向量归入聚类。扫描-选择-提交为乐观流程：
// 提交因版本冲突或聚类被合并而失败时整体重试，预算耗尽返回
// TransientConflictError，向量不落入任何聚类。
type Assigner struct {
	dir         *Directory
	index       CandidateIndex
	retryBudget int
	candidates  int

	beforeCommit func() // 测试注入点
}

// NewAssigner 创建分配器。index可为nil，此时每次全量扫描目录。
func NewAssigner(dir *Directory, index CandidateIndex, retryBudget, candidates int) *Assigner {
	if retryBudget < 1 {
		retryBudget = DefaultRetryBudget
	}
	if candidates < 1 {
		candidates = 16
	}
	return &Assigner{dir: dir, index: index, retryBudget: retryBudget, candidates: candidates}
}

// Assign 为向量选定聚类并提交成员。返回提交后的聚类快照，
// created指示是否新建了聚类。
func (a *Assigner) Assign(ctx context.Context, embedding []float32) (Snapshot, bool, error) {
	for attempt := 0; attempt < a.retryBudget; attempt++ {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, false, err
		}

		candidates, err := a.scan(ctx, embedding)
		if err != nil {
			return Snapshot{}, false, err
		}
		metrics.SimilarityScanClusters.Observe(float64(len(candidates)))

		best, sim, ok := pickBest(candidates, embedding)
		if !ok || sim < best.Threshold {
			snap := a.dir.Create("", embedding, 0)
			return snap, true, nil
		}

		if a.beforeCommit != nil {
			a.beforeCommit()
		}

		snap, err := a.dir.Fold(best.ID, best.Version, embedding)
		if err == nil {
			return snap, false, nil
		}
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNotFound) {
			// 目标在扫描和提交之间被修改或合并掉了，重扫
			metrics.CentroidConflictsTotal.Inc()
			continue
		}
		return Snapshot{}, false, err
	}
	return Snapshot{}, false, apperrors.NewTransientConflictError("assign", a.retryBudget)
}

// scan 取参与相似度比较的聚类快照
func (a *Assigner) scan(ctx context.Context, embedding []float32) ([]Snapshot, error) {
	if a.index == nil {
		return a.dir.List(), nil
	}

	ids, err := a.index.Candidates(ctx, embedding, a.candidates)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		// 候选索引异步滞后，已合并的id直接跳过
		if snap, ok := a.dir.Snapshot(id); ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

// pickBest 选出相似度最高的聚类。相似度在容差内并列时，
// 成员多者优先，再按id字典序取小。
func pickBest(candidates []Snapshot, embedding []float32) (Snapshot, float64, bool) {
	var best Snapshot
	bestSim := -2.0
	found := false

	for _, c := range candidates {
		sim := Dot(c.Centroid, embedding)
		if !found || betterThan(c, sim, best, bestSim) {
			best, bestSim, found = c, sim, true
		}
	}
	return best, bestSim, found
}

func betterThan(c Snapshot, sim float64, best Snapshot, bestSim float64) bool {
	if sim > bestSim+SimilarityEpsilon {
		return true
	}
	if sim < bestSim-SimilarityEpsilon {
		return false
	}
	if c.MemberCount != best.MemberCount {
		return c.MemberCount > best.MemberCount
	}
	return c.ID < best.ID
}
