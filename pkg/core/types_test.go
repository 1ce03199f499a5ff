package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMatrix(t *testing.T) {
	m := NewMatrix(2, 3, []float64{1, 2, 3, 4, 5, 6})
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 6.0, m.At(1, 2))
	assert.Equal(t, []float64{4, 5, 6}, m.RawRow(1))

	m.Set(0, 0, 10)
	assert.Equal(t, 10.0, m.RawData()[0])
	assert.Equal(t, 2.0, m.T().At(1, 0))

	// Dense共享底层存储
	d := m.Dense()
	d.Set(1, 1, 50)
	assert.Equal(t, 50.0, m.At(1, 1))

	clone := m.Clone()
	clone.Set(0, 1, -1)
	assert.Equal(t, 2.0, m.At(0, 1))

	rows := m.Rows()
	rows[0][0] = 0
	assert.Equal(t, 10.0, m.At(0, 0))

	selected := m.SelectRows([]int{1, 1, 0})
	assert.Equal(t, []float64{4, 50, 6, 4, 50, 6, 10, 2, 3}, selected.RawData())

	assert.Panics(t, func() { m.At(2, 0) })
	assert.Panics(t, func() { NewMatrix(2, 2, []float64{1}) })
}

func TestEmptyMatrix(t *testing.T) {
	m := NewMatrix(0, 4, nil)
	assert.True(t, m.IsEmpty())
	assert.Nil(t, m.Dense())
	r, c := m.Dims()
	assert.Equal(t, 0, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, 0, len(ArgMax(m)))
}

func TestFromRows(t *testing.T) {
	m, err := FromRows(2, [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, m.RawData())

	_, err = FromRows(2, [][]float64{{1, 2}, {3}})
	assert.Error(t, err)

	d := FromDense(mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	assert.Equal(t, m.RawData(), d.RawData())
}

func TestArgMax(t *testing.T) {
	m := NewMatrix(3, 3, []float64{
		0.1, 0.7, 0.2,
		0.5, 0.5, 0,
		0, 0, 1,
	})
	// 相等时取第一个
	assert.Equal(t, []int{1, 0, 2}, ArgMax(m))
	assert.Equal(t, []int{-1, -1}, ArgMax(NewMatrix(2, 0, nil)))
}
