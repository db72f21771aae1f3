package engine

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aihub/media-engine/internal/cluster"
	"github.com/aihub/media-engine/internal/config"
	"github.com/aihub/media-engine/internal/dedup"
	"github.com/aihub/media-engine/internal/embedding"
	apperrors "github.com/aihub/media-engine/internal/errors"
	"github.com/aihub/media-engine/internal/events"
	"github.com/aihub/media-engine/internal/interfaces"
	"github.com/aihub/media-engine/internal/logger"
	"github.com/aihub/media-engine/internal/metrics"
	"github.com/aihub/media-engine/internal/models"
	"github.com/aihub/media-engine/internal/repository"
)

// Outcome 单个资产的处理结果类型
type Outcome string

const (
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeNearDuplicate Outcome = "near_duplicate"
	OutcomeAttached      Outcome = "attached"
	OutcomeNewCluster    Outcome = "new_cluster"
)

// WorkItem 提交给引擎的单个媒体资产
type WorkItem struct {
	AssetID     string    `json:"asset_id" validate:"required"`
	ContentHash string    `json:"content_hash" validate:"required,len=64,hexadecimal"`
	Fingerprint uint64    `json:"fingerprint"`
	Embedding   []float32 `json:"embedding" validate:"required"`
}

// Result 处理结果
type Result struct {
	AssetID     string  `json:"asset_id"`
	Outcome     Outcome `json:"outcome"`
	DuplicateOf string  `json:"duplicate_of,omitempty"`
	Distance    int     `json:"distance,omitempty"`
	ClusterID   string  `json:"cluster_id,omitempty"`
	ClusterName string  `json:"cluster_name,omitempty"`
	MemberCount int     `json:"member_count,omitempty"`
	State       string  `json:"state,omitempty"`
}

// Service 去重与聚类引擎。去重判定在前，只有未命中的资产进入
// 向量指派。仓库与事件服务均可为nil，此时引擎以纯内存方式运行。
type Service struct {
	cfg      config.EngineConfig
	dedup    dedup.Index
	dir      *cluster.Directory
	assigner *cluster.Assigner
	index    cluster.CandidateIndex
	events   *events.EventService
	assets   repository.AssetRepository
	clusters repository.ClusterRepository
	members  *memberStore
	validate *validator.Validate
	log      interfaces.LoggerInterface
}

// Options 引擎装配参数
type Options struct {
	Config         config.EngineConfig
	DedupIndex     dedup.Index
	CandidateIndex cluster.CandidateIndex
	Events         *events.EventService
	Assets         repository.AssetRepository
	Clusters       repository.ClusterRepository
	Logger         interfaces.LoggerInterface
}

// NewService 装配引擎
func NewService(opts Options) *Service {
	if opts.DedupIndex == nil {
		opts.DedupIndex = dedup.NewMemoryIndex(opts.Config.Dedup.HammingBound)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewZapLogger(nil)
	}
	dir := cluster.NewDirectory(opts.Config.ClusterThreshold, opts.Config.ConfirmCount)
	return &Service{
		cfg:      opts.Config,
		dedup:    opts.DedupIndex,
		dir:      dir,
		assigner: cluster.NewAssigner(dir, opts.CandidateIndex, opts.Config.RetryBudget, opts.Config.CandidateIndex.Candidates),
		index:    opts.CandidateIndex,
		events:   opts.Events,
		assets:   opts.Assets,
		clusters: opts.Clusters,
		members:  newMemberStore(),
		validate: validator.New(),
		log:      opts.Logger,
	}
}

// Directory 暴露聚类目录（管理操作与统计用）
func (s *Service) Directory() *cluster.Directory {
	return s.dir
}

// AssignOrDedupe 处理单个资产：先查重，未命中再做向量指派。
// 指派因持续冲突失败时回滚去重登记，整个资产可安全重交。
func (s *Service) AssignOrDedupe(ctx context.Context, item WorkItem) (Result, error) {
	start := time.Now()

	if err := s.validate.Struct(item); err != nil {
		metrics.AssetsProcessedTotal.WithLabelValues("error").Inc()
		return Result{}, apperrors.NewValidationError("invalid work item").WithCause(err)
	}
	if err := embedding.ValidateUnit(item.Embedding, s.cfg.EmbeddingDim); err != nil {
		metrics.AssetsProcessedTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}

	check, err := s.dedup.Check(ctx, item.ContentHash, item.Fingerprint)
	if err != nil {
		metrics.AssetsProcessedTotal.WithLabelValues("error").Inc()
		return Result{}, apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "dedup check failed").WithCause(err)
	}
	if check.Decision != dedup.DecisionUnique {
		return s.recordDuplicate(ctx, item, check)
	}

	claimed, owner, err := s.dedup.Register(ctx, item.ContentHash, item.Fingerprint, item.AssetID)
	if err != nil {
		metrics.AssetsProcessedTotal.WithLabelValues("error").Inc()
		return Result{}, apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "dedup register failed").WithCause(err)
	}
	if !claimed {
		// 并发提交相同内容，登记被对方抢先
		return s.recordDuplicate(ctx, item, dedup.CheckResult{
			Decision: dedup.DecisionDuplicate,
			AssetID:  owner,
		})
	}

	snap, created, err := s.assigner.Assign(ctx, item.Embedding)
	if err != nil {
		if rmErr := s.dedup.Remove(ctx, item.ContentHash, item.Fingerprint); rmErr != nil {
			s.log.WithError(rmErr).Warn("回滚去重登记失败", "asset_id", item.AssetID)
		}
		metrics.AssetsProcessedTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}

	// 提交和登记之间目标可能被合并掉，成员登记跟随合并转发。
	// 已合并的聚类不再回写快照，资产行直接挂到合并目标。
	ownerID := s.members.add(snap.ID, item.AssetID, item.Embedding)
	if ownerID == snap.ID {
		s.syncIndex(ctx, snap)
		s.persistCluster(ctx, snap)
	}
	s.persistAsset(ctx, item, ownerID, "", models.AssetStatusDone)
	s.refreshGauges()

	outcome := OutcomeAttached
	action := "member_added"
	if created {
		outcome = OutcomeNewCluster
		action = "created"
		metrics.ClustersCreatedTotal.Inc()
	}
	metrics.AssetsProcessedTotal.WithLabelValues(string(outcome)).Inc()
	metrics.AssignmentDuration.Observe(time.Since(start).Seconds())

	if err := s.events.PublishClusterEvent(action, events.ClusterEvent{
		ClusterID:   snap.ID,
		AssetID:     item.AssetID,
		Name:        snap.Name,
		MemberCount: snap.MemberCount,
		State:       string(snap.State),
	}); err != nil {
		s.log.WithError(err).Warn("发布聚类事件失败", "cluster_id", snap.ID)
	}

	s.log.Info("资产已归入聚类",
		"asset_id", item.AssetID,
		"cluster_id", snap.ID,
		"created", created,
		"member_count", snap.MemberCount)

	return Result{
		AssetID:     item.AssetID,
		Outcome:     outcome,
		ClusterID:   snap.ID,
		ClusterName: snap.Name,
		MemberCount: snap.MemberCount,
		State:       string(snap.State),
	}, nil
}

// recordDuplicate 记录精确或近似重复，不触碰任何聚类质心
func (s *Service) recordDuplicate(ctx context.Context, item WorkItem, check dedup.CheckResult) (Result, error) {
	outcome := OutcomeDuplicate
	kind := "exact"
	if check.Decision == dedup.DecisionNearDuplicate {
		outcome = OutcomeNearDuplicate
		kind = "near"
	}
	metrics.DedupHitsTotal.WithLabelValues(kind).Inc()
	metrics.AssetsProcessedTotal.WithLabelValues(string(outcome)).Inc()

	// 重复资产继承原件的聚类归属，仅做记录
	clusterID, _ := s.members.clusterOf(check.AssetID)

	s.persistAsset(ctx, item, clusterID, check.AssetID, models.AssetStatusDuplicate)

	if err := s.events.PublishDedupEvent(events.DedupEvent{
		AssetID:     item.AssetID,
		DuplicateOf: check.AssetID,
		Exact:       check.Decision == dedup.DecisionDuplicate,
		Distance:    check.Distance,
		ClusterID:   clusterID,
	}); err != nil {
		s.log.WithError(err).Warn("发布去重事件失败", "asset_id", item.AssetID)
	}

	s.log.Info("检测到重复资产",
		"asset_id", item.AssetID,
		"duplicate_of", check.AssetID,
		"kind", kind,
		"distance", check.Distance)

	return Result{
		AssetID:     item.AssetID,
		Outcome:     outcome,
		DuplicateOf: check.AssetID,
		Distance:    check.Distance,
		ClusterID:   clusterID,
	}, nil
}

// syncIndex 推送最新质心到候选索引。索引只是加速层，失败仅告警。
func (s *Service) syncIndex(ctx context.Context, snap cluster.Snapshot) {
	if s.index == nil {
		return
	}
	if err := s.index.Sync(ctx, snap.ID, snap.Centroid); err != nil {
		s.log.WithError(err).Warn("同步候选索引失败", "cluster_id", snap.ID)
	}
}

func (s *Service) dropIndex(ctx context.Context, clusterID string) {
	if s.index == nil {
		return
	}
	if err := s.index.Remove(ctx, clusterID); err != nil {
		s.log.WithError(err).Warn("移除候选索引条目失败", "cluster_id", clusterID)
	}
}

// persistCluster 落库聚类快照。未配置仓库时跳过。
func (s *Service) persistCluster(ctx context.Context, snap cluster.Snapshot) {
	if s.clusters == nil {
		return
	}
	row := &models.Cluster{
		ClusterID:   snap.ID,
		Name:        snap.Name,
		MemberCount: snap.MemberCount,
		Threshold:   snap.Threshold,
		State:       string(snap.State),
		Version:     int64(snap.Version),
		CreateTime:  snap.CreateTime,
		UpdateTime:  snap.UpdateTime,
	}
	if err := row.SetCentroid(snap.Centroid); err != nil {
		s.log.WithError(err).Error("编码质心失败", "cluster_id", snap.ID)
		return
	}
	if err := row.SetEmbeddingSum(snap.Sum); err != nil {
		s.log.WithError(err).Error("编码向量累加和失败", "cluster_id", snap.ID)
		return
	}
	if err := s.clusters.Save(ctx, row); err != nil {
		s.log.WithError(err).Error("落库聚类失败", "cluster_id", snap.ID)
	}
}

// persistAsset 落库资产记录。未配置仓库时跳过。
func (s *Service) persistAsset(ctx context.Context, item WorkItem, clusterID, duplicateOf, status string) {
	if s.assets == nil {
		return
	}
	now := time.Now()
	row := &models.Asset{
		AssetID:     item.AssetID,
		ContentHash: item.ContentHash,
		Status:      status,
		CreateTime:  now,
		UpdateTime:  now,
	}
	row.SetFingerprint(item.Fingerprint)
	if clusterID != "" {
		row.ClusterID = &clusterID
	}
	if duplicateOf != "" {
		row.DuplicateOf = &duplicateOf
	}
	if err := row.SetEmbedding(item.Embedding); err != nil {
		s.log.WithError(err).Error("编码资产向量失败", "asset_id", item.AssetID)
		return
	}
	if err := s.assets.Save(ctx, row); err != nil {
		s.log.WithError(err).Error("落库资产失败", "asset_id", item.AssetID)
	}
}

func (s *Service) refreshGauges() {
	total, provisional := s.dir.Counts()
	metrics.ClustersActive.Set(float64(total))
	metrics.ClustersProvisional.Set(float64(provisional))
}
