package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/aihub/media-engine/internal/logger"
)

// MilvusOptions Milvus候选索引配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Dim        int
	UseTLS     bool
	Timeout    time.Duration
}

// milvusIndex 基于Milvus的聚类质心候选索引。单位向量下内积即余弦，
// 固定用IP度量。索引只提供候选id，滞后不影响判定正确性。
type milvusIndex struct {
	milvusClient client.Client
	collection   string
	dim          int
}

var _ CandidateIndex = (*milvusIndex)(nil)

// NewMilvusIndex 创建Milvus候选索引
func NewMilvusIndex(opts MilvusOptions) (CandidateIndex, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "media_centroids"
	}
	if opts.Dim == 0 {
		opts.Dim = 512
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	idx := &milvusIndex{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		dim:          opts.Dim,
	}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *milvusIndex) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return s.loadCollection(ctx)
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "media cluster centroids",
		Fields: []*entity.Field{
			{
				Name:       "cluster_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "centroid",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.dim),
				},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	var index entity.Index
	index, indexErr := entity.NewIndexHNSW(entity.IP, 8, 64)
	if indexErr != nil {
		index, indexErr = entity.NewIndexIvfFlat(entity.IP, 128)
		if indexErr != nil {
			return fmt.Errorf("failed to create index: %w", indexErr)
		}
	}
	if err := s.milvusClient.CreateIndex(ctx, s.collection, "centroid", index, false); err != nil {
		// 索引创建失败不影响使用，只记录警告
		logger.Warn(fmt.Sprintf("failed to create index for collection %s: %v", s.collection, err))
	}

	return s.loadCollection(ctx)
}

func (s *milvusIndex) loadCollection(ctx context.Context) error {
	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// Sync 写入聚类的最新质心。主键冲突走删后插，等价于upsert。
func (s *milvusIndex) Sync(ctx context.Context, id string, centroid []float32) error {
	if len(centroid) != s.dim {
		return fmt.Errorf("centroid dim %d does not match collection dim %d", len(centroid), s.dim)
	}

	expr := fmt.Sprintf(`cluster_id == "%s"`, id)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}

	idColumn := entity.NewColumnVarChar("cluster_id", []string{id})
	vectorColumn := entity.NewColumnFloatVector("centroid", s.dim, [][]float32{centroid})
	if _, err := s.milvusClient.Insert(ctx, s.collection, "", idColumn, vectorColumn); err != nil {
		return fmt.Errorf("milvus insert failed: %w", err)
	}
	return nil
}

// Remove 删除聚类的质心记录
func (s *milvusIndex) Remove(ctx context.Context, id string) error {
	expr := fmt.Sprintf(`cluster_id == "%s"`, id)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	return nil
}

// Candidates 按内积召回topK个最近质心的聚类id
func (s *milvusIndex) Candidates(ctx context.Context, embedding []float32, topK int) ([]string, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 16
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	queryVector := entity.FloatVector(embedding)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{"cluster_id"},
		[]entity.Vector{queryVector},
		"centroid",
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return nil, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	ids := make([]string, 0, result.ResultCount)
	if idCol, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = append(ids, idCol.Data()...)
	}
	return ids, nil
}
