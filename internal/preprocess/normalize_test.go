package preprocess

import (
	"math"
	"strings"
	"testing"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestStandardize(t *testing.T) {
	data := core.NewMatrix(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	Standardize().Preprocess(data)

	col := []float64{data.At(0, 0), data.At(1, 0), data.At(2, 0), data.At(3, 0)}
	assert.InDelta(t, 0, floats.Sum(col), 1e-12)
	sq := 0.0
	for _, v := range col {
		sq += v * v
	}
	assert.InDelta(t, 1, sq/4, 1e-12)

	// 方差为0的列只减去均值
	for i := 0; i < 4; i++ {
		assert.Equal(t, 0.0, data.At(i, 1))
	}

	empty := core.NewMatrix(0, 3, nil)
	Standardize().Preprocess(empty)
	assert.True(t, empty.IsEmpty())
}

func TestL2Normalize(t *testing.T) {
	data := core.NewMatrix(2, 2, []float64{
		3, 4,
		0, 0,
	})
	L2Normalize().Preprocess(data)
	assert.InDelta(t, 0.6, data.At(0, 0), 1e-12)
	assert.InDelta(t, 0.8, data.At(0, 1), 1e-12)
	assert.Equal(t, []float64{0, 0}, data.RawRow(1))
}

func TestDefaultChain(t *testing.T) {
	data := core.NewMatrix(3, 2, []float64{
		1, 10,
		2, 30,
		3, 20,
	})
	Default().Preprocess(data)
	for i := 0; i < 3; i++ {
		norm := floats.Norm(data.RawRow(i), 2)
		assert.False(t, math.IsNaN(norm))
		assert.InDelta(t, 1, norm, 1e-12)
	}

	assert.NotNil(t, Get(MethodStandardize))
	assert.NotNil(t, Get(MethodL2))
	assert.Nil(t, Get(Method("minmax")))
}

func TestNormalizeEmbeddings(t *testing.T) {
	in := strings.NewReader("a,3,4\nb,0,0\nc,0,2\n")
	builder := &strings.Builder{}

	err := NormalizeEmbeddings(in, builder, L2Normalize())
	require.NoError(t, err)
	assert.Equal(t, "a,0.600000,0.800000\nb,0.000000,0.000000\nc,0.000000,1.000000\n", builder.String())

	err = NormalizeEmbeddings(strings.NewReader("a,1,2\nb,1\n"), builder, L2Normalize())
	assert.Error(t, err)
}
