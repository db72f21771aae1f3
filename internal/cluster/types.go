package cluster

import (
	"errors"
	"time"
)

// State 聚类生命周期状态
type State string

const (
	StateProvisional State = "provisional"
	StateConfirmed   State = "confirmed"
)

// 目录内部并发控制哨兵，由上层翻译为AppError
var (
	// ErrVersionConflict 乐观并发版本冲突，调用方应重读重试
	ErrVersionConflict = errors.New("cluster version conflict")
	// ErrNotFound 聚类不存在或已被合并删除
	ErrNotFound = errors.New("cluster not found")
)

// Snapshot 聚类的一致性快照。Centroid始终为单位向量；
// Sum保留成员向量的未归一化累加和，供合并时重算质心。
type Snapshot struct {
	ID          string
	Name        string
	Centroid    []float32
	Sum         []float64
	MemberCount int
	Threshold   float64
	State       State
	Version     uint64
	CreateTime  time.Time
	UpdateTime  time.Time
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Centroid = append([]float32(nil), s.Centroid...)
	out.Sum = append([]float64(nil), s.Sum...)
	return out
}

// MergeResult 合并结果
type MergeResult struct {
	Target  Snapshot
	Removed []string
}
