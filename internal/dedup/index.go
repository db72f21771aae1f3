package dedup

import (
	"context"
	"math/bits"
)

// DefaultHammingBound 近重复的默认汉明距离上界（64位指纹）
const DefaultHammingBound = 5

// Decision 去重判定
type Decision int

const (
	DecisionUnique Decision = iota
	DecisionDuplicate
	DecisionNearDuplicate
)

// CheckResult 去重检查结果
type CheckResult struct {
	Decision Decision
	AssetID  string // 命中的已有资产
	Distance int    // 近重复时的汉明距离
}

// Index 去重索引。精确匹配用内容哈希，近重复用感知指纹的汉明距离。
type Index interface {
	// Check 先查精确哈希，未命中再做指纹扫描
	Check(ctx context.Context, contentHash string, fingerprint uint64) (CheckResult, error)
	// Register 注册哈希与指纹。内容哈希已被占用时返回false和占用者，
	// 保证同一内容的并发提交只有一个被判定为Unique。
	Register(ctx context.Context, contentHash string, fingerprint uint64, assetID string) (bool, string, error)
	// Remove 移除一条注册记录
	Remove(ctx context.Context, contentHash string, fingerprint uint64) error
}

// HammingDistance 64位指纹的汉明距离
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// bucketKey 指纹分桶键：取高16位。两个指纹若整体距离不超过bound，
// 其桶键的距离也不会超过bound，因此只扫描键距在界内的桶不会漏报。
func bucketKey(fp uint64) uint16 {
	return uint16(fp >> 48)
}

func bucketDistance(a, b uint16) int {
	return bits.OnesCount16(a ^ b)
}
