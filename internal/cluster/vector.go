package cluster

import "math"

// SimilarityEpsilon 相似度并列判定的浮点容差
const SimilarityEpsilon = 1e-9

// Dot 单位向量的点积即余弦相似度
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// FoldSum 把新成员向量累加进运行和，返回新切片
func FoldSum(sum []float64, emb []float32) []float64 {
	out := make([]float64, len(emb))
	for i := range emb {
		out[i] = float64(emb[i])
		if i < len(sum) {
			out[i] += sum[i]
		}
	}
	return out
}

// UnfoldSum 从运行和中扣除一个成员向量，返回新切片
func UnfoldSum(sum []float64, emb []float32) []float64 {
	out := make([]float64, len(sum))
	copy(out, sum)
	for i := range emb {
		if i < len(out) {
			out[i] -= float64(emb[i])
		}
	}
	return out
}

// AddSums 两个运行和相加，返回新切片
func AddSums(a, b []float64) []float64 {
	out := make([]float64, len(a))
	copy(out, a)
	for i := range b {
		if i < len(out) {
			out[i] += b[i]
		}
	}
	return out
}

// Normalize 归一化运行和得到单位质心
func Normalize(sum []float64) []float32 {
	var norm float64
	for _, v := range sum {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(sum))
	if norm == 0 {
		return out
	}
	for i, v := range sum {
		out[i] = float32(v / norm)
	}
	return out
}

// SumOf 单个向量的运行和形式
func SumOf(emb []float32) []float64 {
	out := make([]float64, len(emb))
	for i, v := range emb {
		out[i] = float64(v)
	}
	return out
}
