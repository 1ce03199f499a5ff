package dec

import (
	"math"
	"math/rand"

	"github.com/packagewjx/deepcluster/pkg/core"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const DefaultAlpha = 1.0

// ClusterAssignment 保存K个可学习的聚类中心，使用Student's t分布计算样本到各中心的软分配概率，
// 见Xie/Girshick/Farhadi论文3.1.1节。
type ClusterAssignment struct {
	k       int
	dim     int
	alpha   float64
	centers *mat.Dense
}

// NewClusterAssignment 创建软分配模块。centers为nil时使用xavier均匀分布初始化，随机数由rnd提供；
// 否则centers必须是k*dim的矩阵，并原样作为初始中心。
func NewClusterAssignment(k, dim int, alpha float64, centers mat.Matrix, rnd *rand.Rand) (*ClusterAssignment, error) {
	if k <= 0 {
		return nil, ErrInvalidClusterNumber
	}
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	if !(alpha > 0) || math.IsInf(alpha, 0) {
		return nil, ErrInvalidAlpha
	}

	var initial *mat.Dense
	if centers == nil {
		if rnd == nil {
			rnd = rand.New(rand.NewSource(rand.Int63()))
		}
		initial = XavierUniform(k, dim, rnd)
	} else {
		if err := checkCenterShape(centers, k, dim); err != nil {
			return nil, err
		}
		initial = mat.DenseCopyOf(centers)
	}

	return &ClusterAssignment{
		k:       k,
		dim:     dim,
		alpha:   alpha,
		centers: initial,
	}, nil
}

// XavierUniform 生成rows*cols的矩阵，元素服从U(-b, b)，b = sqrt(6 / (rows + cols))。
func XavierUniform(rows, cols int, rnd *rand.Rand) *mat.Dense {
	bound := math.Sqrt(6.0 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (rnd.Float64()*2 - 1) * bound
	}
	return mat.NewDense(rows, cols, data)
}

func checkCenterShape(centers mat.Matrix, k, dim int) error {
	r, c := centers.Dims()
	if r != k {
		return &ErrDimensionMismatch{What: "聚类中心数量", Expected: k, Actual: r}
	}
	if c != dim {
		return &ErrDimensionMismatch{What: "聚类中心", Expected: dim, Actual: c}
	}
	return nil
}

func (a *ClusterAssignment) K() int {
	return a.k
}

func (a *ClusterAssignment) Dim() int {
	return a.dim
}

func (a *ClusterAssignment) Alpha() float64 {
	return a.alpha
}

// Centers 返回聚类中心的副本
func (a *ClusterAssignment) Centers() *mat.Dense {
	return mat.DenseCopyOf(a.centers)
}

// SetCenters 替换聚类中心
func (a *ClusterAssignment) SetCenters(centers mat.Matrix) error {
	if err := checkCenterShape(centers, a.k, a.dim); err != nil {
		return err
	}
	a.centers.Copy(centers)
	return nil
}

// Parameters 返回聚类中心本身。外部优化器直接原地修改它。
func (a *ClusterAssignment) Parameters() *mat.Dense {
	return a.centers
}

// Assign 计算批次中每个样本对各个类的软分配，结果为N*K矩阵，每行和为1。
func (a *ClusterAssignment) Assign(batch *core.Matrix) (*core.Matrix, error) {
	logDist, err := a.logDistances(batch)
	if err != nil {
		return nil, err
	}
	return a.kernel(logDist), nil
}

// CentroidDistances 计算批次中每个样本到各个中心的欧氏距离平方，结果为N*K矩阵。
func (a *ClusterAssignment) CentroidDistances(batch *core.Matrix) (*core.Matrix, error) {
	n, d := batch.Dims()
	if d != a.dim {
		return nil, &ErrDimensionMismatch{What: "嵌入向量", Expected: a.dim, Actual: d}
	}

	result := core.NewMatrix(n, a.k, nil)
	diff := make([]float64, a.dim)
	for i := 0; i < n; i++ {
		x := batch.RawRow(i)
		row := result.RawRow(i)
		for j := 0; j < a.k; j++ {
			floats.SubTo(diff, x, a.centers.RawRowView(j))
			row[j] = floats.Dot(diff, diff)
		}
	}
	return result, nil
}

// logDistances 计算欧氏距离平方的对数，结果为N*K矩阵。
func (a *ClusterAssignment) logDistances(batch *core.Matrix) (*core.Matrix, error) {
	n, d := batch.Dims()
	if d != a.dim {
		return nil, &ErrDimensionMismatch{What: "嵌入向量", Expected: a.dim, Actual: d}
	}

	result := core.NewMatrix(n, a.k, nil)
	for i := 0; i < n; i++ {
		x := batch.RawRow(i)
		row := result.RawRow(i)
		for j := 0; j < a.k; j++ {
			row[j] = logSquaredDistance(x, a.centers.RawRowView(j))
		}
	}
	return result, nil
}

// logSquaredDistance 先用两个向量中绝对值最大的分量缩放再求和，坐标很大时距离平方也不会溢出。
// 距离为0时返回-Inf。
func logSquaredDistance(x, y []float64) float64 {
	scale := 0.0
	for i := range x {
		scale = math.Max(scale, math.Max(math.Abs(x[i]), math.Abs(y[i])))
	}
	if scale == 0 {
		return math.Inf(-1)
	}
	sum := 0.0
	for i := range x {
		u := x[i]/scale - y[i]/scale
		sum += u * u
	}
	return 2*math.Log(scale) + math.Log(sum)
}

// kernel 将距离平方的对数转换为Student's t核的相对亲和度并按行归一化。
// log(1 + d/a)在对数空间计算，距离很大时亲和度不会下溢，距离平方本身也不会溢出。
func (a *ClusterAssignment) kernel(logDist *core.Matrix) *core.Matrix {
	n, k := logDist.Dims()
	result := core.NewMatrix(n, k, nil)
	power := (a.alpha + 1) / 2
	logAlpha := math.Log(a.alpha)
	for i := 0; i < n; i++ {
		row := result.RawRow(i)
		for j, ld := range logDist.RawRow(i) {
			row[j] = -power * log1pExp(ld-logAlpha)
		}
		max := floats.Max(row)
		for j := range row {
			row[j] = math.Exp(row[j] - max)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
	return result
}

// log1pExp 计算log(1 + e^t)
func log1pExp(t float64) float64 {
	if t > 0 {
		return t + math.Log1p(math.Exp(-t))
	}
	return math.Log1p(math.Exp(t))
}
