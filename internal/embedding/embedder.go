package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/aihub/media-engine/internal/errors"
)

// NormEpsilon 单位向量范数允许偏差
const NormEpsilon = 1e-3

// Embedder 向量化边界接口。上游模型保证输出定长、已归一化的向量。
type Embedder interface {
	Embed(ctx context.Context, data []byte) ([]float32, error)
}

// Norm 计算L2范数
func Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// ValidateUnit 校验向量维度与单位范数，违反契约返回InvalidEmbeddingError
func ValidateUnit(vec []float32, dim int) error {
	if len(vec) != dim {
		return errors.NewInvalidEmbeddingError(
			fmt.Sprintf("expected dimension %d, got %d", dim, len(vec)))
	}
	norm := Norm(vec)
	if math.Abs(norm-1.0) > NormEpsilon {
		return errors.NewInvalidEmbeddingError(
			fmt.Sprintf("expected unit norm, got %.6f", norm))
	}
	return nil
}
