package dedup

import (
	"context"
	"sync"
)

type fpEntry struct {
	fingerprint uint64
	assetID     string
}

// MemoryIndex 进程内去重索引
type MemoryIndex struct {
	mu      sync.RWMutex
	byHash  map[string]string
	buckets map[uint16][]fpEntry
	bound   int
}

// NewMemoryIndex 创建内存去重索引
func NewMemoryIndex(hammingBound int) *MemoryIndex {
	if hammingBound <= 0 {
		hammingBound = DefaultHammingBound
	}
	return &MemoryIndex{
		byHash:  make(map[string]string),
		buckets: make(map[uint16][]fpEntry),
		bound:   hammingBound,
	}
}

func (idx *MemoryIndex) Check(ctx context.Context, contentHash string, fingerprint uint64) (CheckResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if assetID, ok := idx.byHash[contentHash]; ok {
		return CheckResult{Decision: DecisionDuplicate, AssetID: assetID}, nil
	}

	if assetID, distance, ok := idx.scanNear(fingerprint); ok {
		return CheckResult{Decision: DecisionNearDuplicate, AssetID: assetID, Distance: distance}, nil
	}

	return CheckResult{Decision: DecisionUnique}, nil
}

// scanNear 在键距界内的桶中精确计算汉明距离，接受第一个界内命中
func (idx *MemoryIndex) scanNear(fingerprint uint64) (string, int, bool) {
	probe := bucketKey(fingerprint)
	for key, entries := range idx.buckets {
		if bucketDistance(key, probe) > idx.bound {
			continue
		}
		for _, e := range entries {
			if d := HammingDistance(e.fingerprint, fingerprint); d < idx.bound {
				return e.assetID, d, true
			}
		}
	}
	return "", 0, false
}

func (idx *MemoryIndex) Register(ctx context.Context, contentHash string, fingerprint uint64, assetID string) (bool, string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	// 写锁下复查，关闭check-then-register窗口
	if owner, ok := idx.byHash[contentHash]; ok {
		return false, owner, nil
	}

	idx.byHash[contentHash] = assetID
	key := bucketKey(fingerprint)
	idx.buckets[key] = append(idx.buckets[key], fpEntry{fingerprint: fingerprint, assetID: assetID})
	return true, "", nil
}

func (idx *MemoryIndex) Remove(ctx context.Context, contentHash string, fingerprint uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.byHash, contentHash)

	key := bucketKey(fingerprint)
	entries := idx.buckets[key]
	for i, e := range entries {
		if e.fingerprint == fingerprint {
			idx.buckets[key] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(idx.buckets[key]) == 0 {
		delete(idx.buckets, key)
	}
	return nil
}

// Len 已注册的内容哈希数
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byHash)
}
