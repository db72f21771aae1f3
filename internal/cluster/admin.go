package cluster

import (
	"strings"
	"time"

	apperrors "github.com/aihub/media-engine/internal/errors"
)

// Rename 重命名聚类。名称大小写不敏感唯一，冲突返回NameCollisionError。
// 改回自身当前名称（含大小写调整）视为合法。
func (d *Directory) Rename(id, name string) (Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Snapshot{}, apperrors.NewValidationError("cluster name must not be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return Snapshot{}, apperrors.NewClusterNotFoundError(id)
	}

	lower := strings.ToLower(name)
	if owner, taken := d.names[lower]; taken && owner != id {
		return Snapshot{}, apperrors.NewNameCollisionError(name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return Snapshot{}, apperrors.NewClusterNotFoundError(id)
	}

	delete(d.names, strings.ToLower(e.snap.Name))
	d.names[lower] = id
	e.snap.Name = name
	e.snap.Version++
	e.snap.UpdateTime = time.Now()
	return e.snap.clone(), nil
}

// SetThreshold 更新聚类自身的接纳阈值。只影响后续判定，
// 既有成员的重评估由上层编排。
func (d *Directory) SetThreshold(id string, threshold float64) (Snapshot, error) {
	if threshold <= 0 || threshold > 1 {
		return Snapshot{}, apperrors.NewValidationError("threshold must be in (0, 1]")
	}
	snap, err := d.mutate(id, func(s *Snapshot) {
		s.Threshold = threshold
	})
	if err != nil {
		return Snapshot{}, apperrors.NewClusterNotFoundError(id)
	}
	return snap, nil
}

// Confirm 把聚类置为confirmed。对已confirmed的聚类幂等，不递增版本。
func (d *Directory) Confirm(id string) (Snapshot, error) {
	e, ok := d.lookup(id)
	if !ok {
		return Snapshot{}, apperrors.NewClusterNotFoundError(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return Snapshot{}, apperrors.NewClusterNotFoundError(id)
	}

	if e.snap.State != StateConfirmed {
		e.snap.State = StateConfirmed
		e.snap.Version++
		e.snap.UpdateTime = time.Now()
	}
	return e.snap.clone(), nil
}

// Merge 把sources并入target：运行和相加后重算质心，成员数相加，
// 源聚类删除。目标与源按id排序后一次性锁定，避免交叠合并互相等待。
// 任一id缺失则整个操作不生效。
func (d *Directory) Merge(targetID string, sourceIDs []string) (MergeResult, error) {
	seen := map[string]bool{targetID: true}
	for _, id := range sourceIDs {
		if id == targetID {
			return MergeResult{}, apperrors.NewSelfMergeError(id)
		}
		if seen[id] {
			return MergeResult{}, apperrors.NewValidationError("duplicate source cluster id: " + id)
		}
		seen[id] = true
	}
	if len(sourceIDs) == 0 {
		return MergeResult{}, apperrors.NewValidationError("merge requires at least one source cluster")
	}

	// 第一阶段：只读取条目指针，不持锁做合并
	d.mu.RLock()
	locked := make(map[string]*entry, len(sourceIDs)+1)
	for id := range seen {
		e, ok := d.entries[id]
		if !ok {
			d.mu.RUnlock()
			return MergeResult{}, apperrors.NewClusterNotFoundError(id)
		}
		locked[id] = e
	}
	d.mu.RUnlock()

	// 第二阶段：按id序锁定全部参与者，复查存活后应用合并
	ids := lockOrdered(locked)
	for _, id := range ids {
		if locked[id].deleted {
			unlockOrdered(locked, ids)
			return MergeResult{}, apperrors.NewClusterNotFoundError(id)
		}
	}

	target := locked[targetID]
	removed := make([]string, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		src := locked[id]
		target.snap.Sum = AddSums(target.snap.Sum, src.snap.Sum)
		target.snap.MemberCount += src.snap.MemberCount
		src.deleted = true
		removed = append(removed, id)
	}
	target.snap.Centroid = Normalize(target.snap.Sum)
	if target.snap.State == StateProvisional && target.snap.MemberCount >= d.confirmCount {
		target.snap.State = StateConfirmed
	}
	target.snap.Version++
	target.snap.UpdateTime = time.Now()
	result := MergeResult{Target: target.snap.clone(), Removed: removed}

	names := make(map[string]string, len(sourceIDs))
	for _, id := range sourceIDs {
		names[id] = locked[id].snap.Name
	}
	unlockOrdered(locked, ids)

	// 第三阶段：从目录映射中摘除已标记删除的源
	for id, name := range names {
		d.removeFromMaps(id, name)
	}

	return result, nil
}
