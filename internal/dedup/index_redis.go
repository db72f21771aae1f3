package dedup

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	redisHashPrefix   = "media:dedup:hash:"
	redisBucketPrefix = "media:dedup:fp:"
	redisBucketSet    = "media:dedup:buckets"
)

// RedisIndex 基于Redis的去重索引，跨进程共享。
// 内容哈希用SETNX占位，保证并发提交同一内容时只有一个写入者胜出。
// 指纹按高16位分桶存为hash，近重复扫描只拉取键距界内的桶。
type RedisIndex struct {
	client *redis.Client
	bound  int
}

// NewRedisIndex 创建Redis去重索引
func NewRedisIndex(client *redis.Client, hammingBound int) *RedisIndex {
	if hammingBound <= 0 {
		hammingBound = DefaultHammingBound
	}
	return &RedisIndex{client: client, bound: hammingBound}
}

func (idx *RedisIndex) Check(ctx context.Context, contentHash string, fingerprint uint64) (CheckResult, error) {
	assetID, err := idx.client.Get(ctx, redisHashPrefix+contentHash).Result()
	if err == nil {
		return CheckResult{Decision: DecisionDuplicate, AssetID: assetID}, nil
	}
	if err != redis.Nil {
		return CheckResult{}, fmt.Errorf("dedup exact check failed: %w", err)
	}

	keys, err := idx.client.SMembers(ctx, redisBucketSet).Result()
	if err != nil {
		return CheckResult{}, fmt.Errorf("dedup bucket list failed: %w", err)
	}

	probe := bucketKey(fingerprint)
	for _, raw := range keys {
		key, err := strconv.ParseUint(raw, 16, 16)
		if err != nil {
			continue
		}
		if bucketDistance(uint16(key), probe) > idx.bound {
			continue
		}

		members, err := idx.client.HGetAll(ctx, redisBucketPrefix+raw).Result()
		if err != nil {
			return CheckResult{}, fmt.Errorf("dedup bucket scan failed: %w", err)
		}
		for fpHex, owner := range members {
			fp, err := strconv.ParseUint(fpHex, 16, 64)
			if err != nil {
				continue
			}
			if d := HammingDistance(fp, fingerprint); d < idx.bound {
				return CheckResult{Decision: DecisionNearDuplicate, AssetID: owner, Distance: d}, nil
			}
		}
	}

	return CheckResult{Decision: DecisionUnique}, nil
}

func (idx *RedisIndex) Register(ctx context.Context, contentHash string, fingerprint uint64, assetID string) (bool, string, error) {
	claimed, err := idx.client.SetNX(ctx, redisHashPrefix+contentHash, assetID, 0).Result()
	if err != nil {
		return false, "", fmt.Errorf("dedup register failed: %w", err)
	}
	if !claimed {
		owner, err := idx.client.Get(ctx, redisHashPrefix+contentHash).Result()
		if err != nil {
			return false, "", fmt.Errorf("dedup owner lookup failed: %w", err)
		}
		return false, owner, nil
	}

	bucket := fmt.Sprintf("%04x", bucketKey(fingerprint))
	pipe := idx.client.TxPipeline()
	pipe.HSet(ctx, redisBucketPrefix+bucket, fmt.Sprintf("%016x", fingerprint), assetID)
	pipe.SAdd(ctx, redisBucketSet, bucket)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, "", fmt.Errorf("dedup fingerprint register failed: %w", err)
	}

	return true, "", nil
}

func (idx *RedisIndex) Remove(ctx context.Context, contentHash string, fingerprint uint64) error {
	bucket := fmt.Sprintf("%04x", bucketKey(fingerprint))
	pipe := idx.client.TxPipeline()
	pipe.Del(ctx, redisHashPrefix+contentHash)
	pipe.HDel(ctx, redisBucketPrefix+bucket, fmt.Sprintf("%016x", fingerprint))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dedup remove failed: %w", err)
	}
	return nil
}
