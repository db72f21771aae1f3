package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, HammingDistance(0xffff, 0xffff))
	assert.Equal(t, 64, HammingDistance(0, ^uint64(0)))
	assert.Equal(t, 4, HammingDistance(0b1111, 0))
}

func TestMemoryIndexExactDuplicate(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(5)

	claimed, _, err := idx.Register(ctx, "hash-a", 0x1234, "asset-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	res, err := idx.Check(ctx, "hash-a", 0x1234)
	require.NoError(t, err)
	assert.Equal(t, DecisionDuplicate, res.Decision)
	assert.Equal(t, "asset-1", res.AssetID)
}

func TestMemoryIndexNearDuplicateBound(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(5)

	base := uint64(0xabcdef0123456789)
	_, _, err := idx.Register(ctx, "hash-a", base, "asset-1")
	require.NoError(t, err)

	// 翻转4位，距离4在界内
	near := base ^ 0b1111
	res, err := idx.Check(ctx, "hash-near", near)
	require.NoError(t, err)
	assert.Equal(t, DecisionNearDuplicate, res.Decision)
	assert.Equal(t, "asset-1", res.AssetID)
	assert.Equal(t, 4, res.Distance)

	// 翻转5位，距离等于界，严格小于判定下不算近重复
	atBound := base ^ 0b11111
	res, err = idx.Check(ctx, "hash-bound", atBound)
	require.NoError(t, err)
	assert.Equal(t, DecisionUnique, res.Decision)

	// 翻转6位，远超界
	far := base ^ 0b111111
	res, err = idx.Check(ctx, "hash-far", far)
	require.NoError(t, err)
	assert.Equal(t, DecisionUnique, res.Decision)
}

func TestMemoryIndexCrossBucketNeighbor(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(5)

	// 高16位里翻转2位，指纹落入不同的桶，但总距离仍在界内
	base := uint64(0x0000aaaabbbbcccc)
	neighbor := base ^ (uint64(0b11) << 48)
	require.NotEqual(t, bucketKey(base), bucketKey(neighbor))

	_, _, err := idx.Register(ctx, "hash-a", base, "asset-1")
	require.NoError(t, err)

	res, err := idx.Check(ctx, "hash-b", neighbor)
	require.NoError(t, err)
	assert.Equal(t, DecisionNearDuplicate, res.Decision)
	assert.Equal(t, 2, res.Distance)
}

func TestMemoryIndexRegisterRace(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(5)

	const goroutines = 16
	var wg sync.WaitGroup
	winners := make(chan string, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assetID := fmt.Sprintf("asset-%d", n)
			claimed, _, err := idx.Register(ctx, "same-hash", 0x42, assetID)
			if !assert.NoError(t, err) {
				return
			}
			if claimed {
				winners <- assetID
			}
		}(i)
	}
	wg.Wait()
	close(winners)

	var won []string
	for id := range winners {
		won = append(won, id)
	}
	// 相同内容并发登记只能有一个胜出
	require.Len(t, won, 1)

	res, err := idx.Check(ctx, "same-hash", 0x42)
	require.NoError(t, err)
	assert.Equal(t, DecisionDuplicate, res.Decision)
	assert.Equal(t, won[0], res.AssetID)
}

func TestMemoryIndexRemove(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(5)

	_, _, err := idx.Register(ctx, "hash-a", 0x1234, "asset-1")
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())

	require.NoError(t, idx.Remove(ctx, "hash-a", 0x1234))
	assert.Equal(t, 0, idx.Len())

	res, err := idx.Check(ctx, "hash-a", 0x1234)
	require.NoError(t, err)
	assert.Equal(t, DecisionUnique, res.Decision)
}
