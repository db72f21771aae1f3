package cluster

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	mu      sync.Mutex
	snap    Snapshot
	deleted bool
}

// Directory 聚类目录。唯一的共享可变结构：map由读写锁保护，
// 每个聚类由自身的锁和版本号保护，相似度扫描不持全局锁。
type Directory struct {
	mu               sync.RWMutex
	entries          map[string]*entry
	names            map[string]string // lower(name) -> cluster id
	defaultThreshold float64
	confirmCount     int
}

// NewDirectory 创建聚类目录
func NewDirectory(defaultThreshold float64, confirmCount int) *Directory {
	if defaultThreshold <= 0 || defaultThreshold > 1 {
		defaultThreshold = 0.72
	}
	if confirmCount < 1 {
		confirmCount = 3
	}
	return &Directory{
		entries:          make(map[string]*entry),
		names:            make(map[string]string),
		defaultThreshold: defaultThreshold,
		confirmCount:     confirmCount,
	}
}

// DefaultThreshold 默认接纳阈值
func (d *Directory) DefaultThreshold() float64 {
	return d.defaultThreshold
}

// ConfirmCount provisional转confirmed所需成员数
func (d *Directory) ConfirmCount() int {
	return d.confirmCount
}

func (d *Directory) lookup(id string) (*entry, bool) {
	d.mu.RLock()
	e, ok := d.entries[id]
	d.mu.RUnlock()
	return e, ok
}

// Snapshot 读取单个聚类的一致性快照
func (d *Directory) Snapshot(id string) (Snapshot, bool) {
	e, ok := d.lookup(id)
	if !ok {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return Snapshot{}, false
	}
	return e.snap.clone(), true
}

// List 读取全部聚类快照。每个快照各自一致，整体非原子。
func (d *Directory) List() []Snapshot {
	d.mu.RLock()
	refs := make([]*entry, 0, len(d.entries))
	for _, e := range d.entries {
		refs = append(refs, e)
	}
	d.mu.RUnlock()

	out := make([]Snapshot, 0, len(refs))
	for _, e := range refs {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, e.snap.clone())
		}
		e.mu.Unlock()
	}
	return out
}

// Counts 返回(总数, provisional数)
func (d *Directory) Counts() (int, int) {
	total, provisional := 0, 0
	for _, snap := range d.List() {
		total++
		if snap.State == StateProvisional {
			provisional++
		}
	}
	return total, provisional
}

// Create 以给定向量为种子创建provisional聚类。创建在目录写锁下串行，
// 但不在锁下重跑相似度扫描：两个互相相似的向量并发走到这里仍可能各建
// 一个聚类，该竞态被接受，由后续merge收敛。
func (d *Directory) Create(name string, embedding []float32, threshold float64) Snapshot {
	if threshold <= 0 || threshold > 1 {
		threshold = d.defaultThreshold
	}

	id := uuid.NewString()
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	name = d.uniqueNameLocked(name, id)

	snap := Snapshot{
		ID:          id,
		Name:        name,
		Centroid:    Normalize(SumOf(embedding)),
		Sum:         SumOf(embedding),
		MemberCount: 1,
		Threshold:   threshold,
		State:       StateProvisional,
		Version:     0,
		CreateTime:  now,
		UpdateTime:  now,
	}

	d.entries[id] = &entry{snap: snap}
	d.names[strings.ToLower(name)] = id
	return snap.clone()
}

// uniqueNameLocked 生成或去重名称，需持目录写锁
func (d *Directory) uniqueNameLocked(name, id string) string {
	if name == "" {
		name = fmt.Sprintf("Cluster %s", strings.ReplaceAll(id, "-", "")[:8])
	}
	base := name
	for n := 1; ; n++ {
		if _, taken := d.names[strings.ToLower(name)]; !taken {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
}

// Restore 回放持久化的聚类快照（启动恢复用）
func (d *Directory) Restore(snap Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[snap.ID] = &entry{snap: snap.clone()}
	d.names[strings.ToLower(snap.Name)] = snap.ID
}

// Update 乐观提交：版本与expected一致时应用apply并递增版本。
// apply在持聚类锁的情况下执行，必须只修改快照字段。
func (d *Directory) Update(id string, expected uint64, apply func(s *Snapshot)) (Snapshot, error) {
	e, ok := d.lookup(id)
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return Snapshot{}, ErrNotFound
	}
	if e.snap.Version != expected {
		return Snapshot{}, ErrVersionConflict
	}

	apply(&e.snap)
	e.snap.Version++
	e.snap.UpdateTime = time.Now()
	return e.snap.clone(), nil
}

// mutate 无条件提交：持聚类锁应用apply并递增版本
func (d *Directory) mutate(id string, apply func(s *Snapshot)) (Snapshot, error) {
	e, ok := d.lookup(id)
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return Snapshot{}, ErrNotFound
	}

	apply(&e.snap)
	e.snap.Version++
	e.snap.UpdateTime = time.Now()
	return e.snap.clone(), nil
}

// Fold 把一个成员向量并入聚类：sum/centroid/member_count/state/version
// 作为单次原子提交。expected版本不符时返回ErrVersionConflict。
func (d *Directory) Fold(id string, expected uint64, embedding []float32) (Snapshot, error) {
	return d.Update(id, expected, func(s *Snapshot) {
		s.Sum = FoldSum(s.Sum, embedding)
		s.Centroid = Normalize(s.Sum)
		s.MemberCount++
		if s.State == StateProvisional && s.MemberCount >= d.confirmCount {
			s.State = StateConfirmed
		}
	})
}

// Detach 从聚类中扣除一个成员向量（阈值重评估用）。
// 扣除后成员数为0的聚类被删除，返回true。
func (d *Directory) Detach(id string, embedding []float32) (Snapshot, bool, error) {
	e, ok := d.lookup(id)
	if !ok {
		return Snapshot{}, false, ErrNotFound
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return Snapshot{}, false, ErrNotFound
	}

	e.snap.Sum = UnfoldSum(e.snap.Sum, embedding)
	e.snap.MemberCount--
	e.snap.Version++
	e.snap.UpdateTime = time.Now()

	if e.snap.MemberCount <= 0 {
		e.deleted = true
		snap := e.snap.clone()
		e.mu.Unlock()
		d.removeFromMaps(snap.ID, snap.Name)
		return snap, true, nil
	}

	e.snap.Centroid = Normalize(e.snap.Sum)
	snap := e.snap.clone()
	e.mu.Unlock()
	return snap, false, nil
}

// removeFromMaps 从目录映射中移除已标记删除的条目。
// 条目先在自身锁下标记deleted，因此这里可以在释放条目锁后安全执行。
func (d *Directory) removeFromMaps(id, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, id)
	if owner, ok := d.names[strings.ToLower(name)]; ok && owner == id {
		delete(d.names, strings.ToLower(name))
	}
}

// lockOrdered 按id升序锁定一组条目，防止与交叠的并发合并互相死锁
func lockOrdered(entries map[string]*entry) []string {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entries[id].mu.Lock()
	}
	return ids
}

func unlockOrdered(entries map[string]*entry, ids []string) {
	// 释放顺序不影响正确性，保持与加锁相反
	for i := len(ids) - 1; i >= 0; i-- {
		entries[ids[i]].mu.Unlock()
	}
}
