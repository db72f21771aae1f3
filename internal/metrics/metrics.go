package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 全局指标注册表
var Registry = prometheus.NewRegistry()

// Handler 返回Prometheus指标的HTTP处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

var (
	// AssetsProcessedTotal 处理的资产总数
	AssetsProcessedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assets_processed_total",
			Help: "Total number of assets processed by the dedup/cluster engine",
		},
		[]string{"outcome"}, // duplicate/near_duplicate/attached/new_cluster/error
	)

	// DedupHitsTotal 去重命中次数
	DedupHitsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_dedup_hits_total",
			Help: "Total number of duplicate detections",
		},
		[]string{"kind"}, // exact/near
	)

	// ClustersCreatedTotal 创建的聚类总数
	ClustersCreatedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "media_clusters_created_total",
			Help: "Total number of media clusters created",
		},
	)

	// ClustersMergedTotal 合并掉的聚类总数
	ClustersMergedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "media_clusters_merged_total",
			Help: "Total number of source clusters merged away",
		},
	)

	// CentroidConflictsTotal 质心乐观并发冲突次数
	CentroidConflictsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "media_centroid_conflicts_total",
			Help: "Total number of optimistic centroid update conflicts",
		},
	)

	// AssignmentDuration 聚类指派耗时
	AssignmentDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_assignment_duration_seconds",
			Help:    "Time spent in cluster assignment",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SimilarityScanClusters 单次指派扫描的聚类数
	SimilarityScanClusters = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_similarity_scan_clusters",
			Help:    "Number of clusters scored per assignment",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// ClustersActive 当前聚类总数
	ClustersActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "media_clusters_active",
			Help: "Current number of clusters",
		},
	)

	// ClustersProvisional 当前provisional聚类数
	ClustersProvisional = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "media_clusters_provisional",
			Help: "Current number of provisional clusters",
		},
	)
)
