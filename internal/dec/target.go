package dec

import (
	"github.com/packagewjx/deepcluster/pkg/core"
	"gonum.org/v1/gonum/floats"
)

// TargetDistribution 根据软分配q计算目标分布p，见Xie/Girshick/Farhadi论文3.1.3节公式3：
//
//	p_ij = (q_ij^2 / f_j) / sum_j'(q_ij'^2 / f_j')，f_j = sum_i q_ij
//
// 若某个类在整个批次中的频率f_j为0，该类的权重视为0。若一行的权重全部为0，该行保持全0。
func TargetDistribution(q *core.Matrix) *core.Matrix {
	n, k := q.Dims()
	freq := make([]float64, k)
	for i := 0; i < n; i++ {
		floats.Add(freq, q.RawRow(i))
	}

	result := core.NewMatrix(n, k, nil)
	for i := 0; i < n; i++ {
		src := q.RawRow(i)
		row := result.RawRow(i)
		for j, v := range src {
			if freq[j] == 0 {
				continue
			}
			row[j] = v * v / freq[j]
		}
		sum := floats.Sum(row)
		if sum == 0 {
			continue
		}
		floats.Scale(1/sum, row)
	}
	return result
}

// CollapsedClusters 返回在批次中没有任何概率质量的类别，这些类别在目标分布中权重为0。
func CollapsedClusters(q *core.Matrix) []int {
	n, k := q.Dims()
	freq := make([]float64, k)
	for i := 0; i < n; i++ {
		floats.Add(freq, q.RawRow(i))
	}

	collapsed := make([]int, 0)
	for j, f := range freq {
		if f == 0 {
			collapsed = append(collapsed, j)
		}
	}
	return collapsed
}
