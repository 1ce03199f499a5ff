package dec

import (
	"math"

	"github.com/packagewjx/deepcluster/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// KLDivergence 计算KL(P||Q)，按批次大小取平均。p为0的项贡献为0。
func KLDivergence(p, q *core.Matrix) (float64, error) {
	if err := sameShape(p, q); err != nil {
		return 0, err
	}
	n, _ := p.Dims()
	if n == 0 {
		return 0, nil
	}

	qData := q.RawData()
	loss := 0.0
	for i, pv := range p.RawData() {
		if pv == 0 {
			continue
		}
		loss += pv * math.Log(pv/qData[i])
	}
	return loss / float64(n), nil
}

// CentroidGradient 计算KL(P||Q)对聚类中心的梯度，见论文公式5：
//
//	dL/du_j = -(a+1)/a * sum_i (1 + |z_i - u_j|^2 / a)^-1 * (p_ij - q_ij) * (z_i - u_j)
//
// 结果按批次大小取平均，与KLDivergence一致。
func (a *ClusterAssignment) CentroidGradient(z, p, q *core.Matrix) (*mat.Dense, error) {
	if err := sameShape(p, q); err != nil {
		return nil, err
	}
	dist, err := a.CentroidDistances(z)
	if err != nil {
		return nil, err
	}
	if err := sameShape(dist, p); err != nil {
		return nil, err
	}

	grad := mat.NewDense(a.k, a.dim, nil)
	n, _ := z.Dims()
	if n == 0 {
		return grad, nil
	}

	scale := -(a.alpha + 1) / a.alpha / float64(n)
	for j := 0; j < a.k; j++ {
		center := a.centers.RawRowView(j)
		g := grad.RawRowView(j)
		for i := 0; i < n; i++ {
			coef := (p.At(i, j) - q.At(i, j)) / (1 + dist.At(i, j)/a.alpha)
			if coef == 0 {
				continue
			}
			x := z.RawRow(i)
			for d := range g {
				g[d] += scale * coef * (x[d] - center[d])
			}
		}
	}
	return grad, nil
}

func sameShape(a, b *core.Matrix) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br {
		return &ErrDimensionMismatch{What: "批次大小", Expected: ar, Actual: br}
	}
	if ac != bc {
		return &ErrDimensionMismatch{What: "类别数量", Expected: ac, Actual: bc}
	}
	return nil
}
