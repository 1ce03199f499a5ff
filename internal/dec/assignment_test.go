package dec

import (
	"math"
	"math/rand"
	"testing"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randomBatch(rnd *rand.Rand, n, d int, scale float64) *core.Matrix {
	m := core.NewMatrix(n, d, nil)
	data := m.RawData()
	for i := range data {
		data[i] = rnd.NormFloat64() * scale
	}
	return m
}

func TestNewClusterAssignment(t *testing.T) {
	_, err := NewClusterAssignment(3, 4, 0, nil, nil)
	assert.Equal(t, ErrInvalidAlpha, err)
	_, err = NewClusterAssignment(3, 4, -1, nil, nil)
	assert.Equal(t, ErrInvalidAlpha, err)
	_, err = NewClusterAssignment(3, 4, math.NaN(), nil, nil)
	assert.Equal(t, ErrInvalidAlpha, err)
	_, err = NewClusterAssignment(0, 4, 1, nil, nil)
	assert.Equal(t, ErrInvalidClusterNumber, err)
	_, err = NewClusterAssignment(3, 0, 1, nil, nil)
	assert.Equal(t, ErrInvalidDimension, err)

	/*
		中心维度不匹配
	*/
	_, err = NewClusterAssignment(3, 4, 1, mat.NewDense(3, 5, nil), nil)
	var mismatch *ErrDimensionMismatch
	if assert.ErrorAs(t, err, &mismatch) {
		assert.Equal(t, 4, mismatch.Expected)
		assert.Equal(t, 5, mismatch.Actual)
	}
	_, err = NewClusterAssignment(3, 4, 1, mat.NewDense(2, 4, nil), nil)
	assert.Error(t, err)
}

func TestClusterAssignmentExplicitCenters(t *testing.T) {
	data := []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		-1, -2, -3, -4,
	}
	centers := mat.NewDense(3, 4, data)
	a, err := NewClusterAssignment(3, 4, 1, centers, nil)
	require.NoError(t, err)
	assert.True(t, mat.Equal(centers, a.Centers()))

	// 修改传入的矩阵不影响已有中心
	centers.Set(0, 0, 100)
	assert.Equal(t, 1.0, a.Centers().At(0, 0))

	// Centers返回副本
	a.Centers().Set(1, 1, 100)
	assert.Equal(t, 6.0, a.Centers().At(1, 1))
}

func TestClusterAssignmentXavierInit(t *testing.T) {
	a, err := NewClusterAssignment(10, 32, 1, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	bound := math.Sqrt(6.0 / 42)
	for _, v := range a.Parameters().RawMatrix().Data {
		assert.True(t, math.Abs(v) <= bound)
	}

	b, err := NewClusterAssignment(10, 32, 1, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.True(t, mat.Equal(a.Centers(), b.Centers()))
}

func TestClusterAssignmentAssign(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for _, alpha := range []float64{0.5, 1, 2, 10} {
		a, err := NewClusterAssignment(5, 8, alpha, nil, rnd)
		require.NoError(t, err)
		batch := randomBatch(rnd, 20, 8, 3)

		q, err := a.Assign(batch)
		require.NoError(t, err)
		r, c := q.Dims()
		assert.Equal(t, 20, r)
		assert.Equal(t, 5, c)
		for i := 0; i < r; i++ {
			row := q.RawRow(i)
			assert.InDelta(t, 1.0, floats.Sum(row), 1e-9)
			for _, v := range row {
				assert.True(t, v >= 0)
			}
		}
	}
}

func TestClusterAssignmentKernel(t *testing.T) {
	centers := mat.NewDense(2, 2, []float64{
		0, 0,
		3, 4,
	})
	a, err := NewClusterAssignment(2, 2, 1, centers, nil)
	require.NoError(t, err)

	batch := core.NewMatrix(1, 2, []float64{0, 0})
	dist, err := a.CentroidDistances(batch)
	require.NoError(t, err)
	assert.Equal(t, 0.0, dist.At(0, 0))
	assert.Equal(t, 25.0, dist.At(0, 1))

	// alpha=1时亲和度为1/(1+d)：1和1/26
	q, err := a.Assign(batch)
	require.NoError(t, err)
	assert.InDelta(t, 26.0/27, q.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0/27, q.At(0, 1), 1e-12)
}

func TestClusterAssignmentFarAway(t *testing.T) {
	// 直接计算(1+d/a)^(-(a+1)/2)会下溢为0
	a, err := NewClusterAssignment(3, 2, 100, mat.NewDense(3, 2, []float64{0, 0, 1, 0, 2, 0}), nil)
	require.NoError(t, err)

	q, err := a.Assign(core.NewMatrix(1, 2, []float64{1e150, 0}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, floats.Sum(q.RawRow(0)), 1e-9)
	for _, v := range q.RawRow(0) {
		assert.False(t, math.IsNaN(v))
	}
}

func TestClusterAssignmentOverflowDistance(t *testing.T) {
	// 距离平方超过float64的范围
	a, err := NewClusterAssignment(3, 2, 1, mat.NewDense(3, 2, []float64{0, 0, 1, 0, 2, 0}), nil)
	require.NoError(t, err)

	q, err := a.Assign(core.NewMatrix(2, 2, []float64{
		1e200, 0,
		-1e300, 1e300,
	}))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		assert.InDelta(t, 1.0, floats.Sum(q.RawRow(i)), 1e-9)
		for _, v := range q.RawRow(i) {
			assert.False(t, math.IsNaN(v))
		}
	}
	// 各中心之间的差别相对样本坐标可以忽略，软分配接近均匀
	for _, v := range q.RawRow(0) {
		assert.InDelta(t, 1.0/3, v, 1e-9)
	}
}

func TestLogSquaredDistance(t *testing.T) {
	assert.True(t, math.IsInf(logSquaredDistance([]float64{1, 2}, []float64{1, 2}), -1))
	assert.True(t, math.IsInf(logSquaredDistance([]float64{0, 0}, []float64{0, 0}), -1))
	assert.InDelta(t, math.Log(25), logSquaredDistance([]float64{0, 0}, []float64{3, 4}), 1e-12)
	assert.InDelta(t, 2*math.Log(1e200), logSquaredDistance([]float64{1e200, 0}, []float64{0, 0}), 1e-9)
}

func TestClusterAssignmentDistances(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	a, err := NewClusterAssignment(4, 3, 1, nil, rnd)
	require.NoError(t, err)
	batch := randomBatch(rnd, 10, 3, 1)

	dist, err := a.CentroidDistances(batch)
	require.NoError(t, err)
	centers := a.Centers()
	for i := 0; i < 10; i++ {
		for j := 0; j < 4; j++ {
			d := dist.At(i, j)
			assert.True(t, d >= 0)
			expected := math.Pow(floats.Distance(batch.RawRow(i), centers.RawRowView(j), 2), 2)
			assert.InDelta(t, expected, d, 1e-9)
		}
	}
}

func TestClusterAssignmentEmptyBatch(t *testing.T) {
	a, err := NewClusterAssignment(3, 4, 1, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	q, err := a.Assign(core.NewMatrix(0, 4, nil))
	require.NoError(t, err)
	r, c := q.Dims()
	assert.Equal(t, 0, r)
	assert.Equal(t, 3, c)

	dist, err := a.CentroidDistances(core.NewMatrix(0, 4, nil))
	require.NoError(t, err)
	r, c = dist.Dims()
	assert.Equal(t, 0, r)
	assert.Equal(t, 3, c)
}

func TestClusterAssignmentDimensionMismatch(t *testing.T) {
	a, err := NewClusterAssignment(3, 4, 1, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	_, err = a.Assign(core.NewMatrix(2, 5, nil))
	var mismatch *ErrDimensionMismatch
	assert.ErrorAs(t, err, &mismatch)
	_, err = a.CentroidDistances(core.NewMatrix(2, 3, nil))
	assert.ErrorAs(t, err, &mismatch)

	assert.Error(t, a.SetCenters(mat.NewDense(3, 3, nil)))
	assert.NoError(t, a.SetCenters(mat.NewDense(3, 4, nil)))
	assert.Equal(t, 0.0, mat.Sum(a.Centers()))
}
