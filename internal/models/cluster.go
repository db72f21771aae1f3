package models

import (
	"encoding/json"
	"time"
)

// 聚类状态
const (
	ClusterStateProvisional = "provisional"
	ClusterStateConfirmed   = "confirmed"
)

// Cluster 媒体聚类表
type Cluster struct {
	ClusterID    string    `gorm:"primaryKey;column:cluster_id;size:36" json:"cluster_id"`
	Name         string    `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Centroid     string    `gorm:"type:json" json:"centroid,omitempty"`
	EmbeddingSum string    `gorm:"type:json;column:embedding_sum" json:"embedding_sum,omitempty"`
	MemberCount  int       `gorm:"column:member_count;not null;default:1" json:"member_count"`
	Threshold    float64   `gorm:"not null" json:"threshold"`
	State        string    `gorm:"size:20;not null;default:provisional" json:"state"`
	Version      int64     `gorm:"not null;default:0" json:"version"`
	CreateTime   time.Time `gorm:"column:create_time;not null" json:"create_time"`
	UpdateTime   time.Time `gorm:"column:update_time" json:"update_time"`
}

func (Cluster) TableName() string {
	return "media_clusters"
}

// SetCentroid 将质心向量编码为JSON存储
func (c *Cluster) SetCentroid(vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	c.Centroid = string(data)
	return nil
}

// GetCentroid 从JSON还原质心向量
func (c *Cluster) GetCentroid() ([]float32, error) {
	if c.Centroid == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(c.Centroid), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// SetEmbeddingSum 存储成员向量的未归一化累加和（合并时重算质心用）
func (c *Cluster) SetEmbeddingSum(sum []float64) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	c.EmbeddingSum = string(data)
	return nil
}

// GetEmbeddingSum 读取成员向量累加和
func (c *Cluster) GetEmbeddingSum() ([]float64, error) {
	if c.EmbeddingSum == "" {
		return nil, nil
	}
	var sum []float64
	if err := json.Unmarshal([]byte(c.EmbeddingSum), &sum); err != nil {
		return nil, err
	}
	return sum, nil
}
