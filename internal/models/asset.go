package models

import (
	"encoding/json"
	"time"
)

// 资产处理状态
const (
	AssetStatusDone      = "done"
	AssetStatusDuplicate = "duplicate"
)

// Asset 媒体资产表
type Asset struct {
	AssetID     string    `gorm:"primaryKey;column:asset_id;size:36" json:"asset_id"`
	ContentHash string    `gorm:"column:content_hash;size:64;uniqueIndex;not null" json:"content_hash"`
	Fingerprint int64     `gorm:"column:fingerprint;not null" json:"fingerprint"`
	Embedding   string    `gorm:"type:json" json:"embedding,omitempty"`
	ClusterID   *string   `gorm:"column:cluster_id;size:36;index" json:"cluster_id"`
	Status      string    `gorm:"size:20;default:done" json:"status"` // done/duplicate
	DuplicateOf *string   `gorm:"column:duplicate_of;size:36" json:"duplicate_of,omitempty"`
	CreateTime  time.Time `gorm:"column:create_time;not null" json:"create_time"`
	UpdateTime  time.Time `gorm:"column:update_time" json:"update_time"`
}

func (Asset) TableName() string {
	return "media_assets"
}

// SetEmbedding 将向量编码为JSON存储
func (a *Asset) SetEmbedding(vec []float32) error {
	if len(vec) == 0 {
		a.Embedding = ""
		return nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	a.Embedding = string(data)
	return nil
}

// GetEmbedding 从JSON还原向量
func (a *Asset) GetEmbedding() ([]float32, error) {
	if a.Embedding == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(a.Embedding), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// SetFingerprint 存储64位感知哈希（数据库列为有符号整数）
func (a *Asset) SetFingerprint(fp uint64) {
	a.Fingerprint = int64(fp)
}

// GetFingerprint 读取64位感知哈希
func (a *Asset) GetFingerprint() uint64 {
	return uint64(a.Fingerprint)
}
