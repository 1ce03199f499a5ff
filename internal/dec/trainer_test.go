package dec

import (
	"context"
	"log"
	"math/rand"
	"os"
	"testing"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// 两团相距很远的点，每团n个
func twoBlobs(rnd *rand.Rand, n int) *core.Matrix {
	m := core.NewMatrix(2*n, 2, nil)
	for i := 0; i < 2*n; i++ {
		offset := -5.0
		if i >= n {
			offset = 5
		}
		row := m.RawRow(i)
		row[0] = offset + rnd.NormFloat64()*0.5
		row[1] = rnd.NormFloat64() * 0.5
	}
	return m
}

func TestSelfTrainerRefine(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	z := twoBlobs(rnd, 50)
	a, err := NewClusterAssignment(2, 2, 1, mat.NewDense(2, 2, []float64{-1, 1, 1, -1}), nil)
	require.NoError(t, err)

	trainer, err := NewSelfTrainer(a, &TrainerConfig{
		MaxIter:        100,
		UpdateInterval: 5,
		Tol:            0.001,
		LearningRate:   0.5,
		BatchSize:      16,
		Seed:           1,
	}, log.New(os.Stdout, "trainer: ", log.LstdFlags|log.Lmsgprefix))
	require.NoError(t, err)

	before := a.Centers()
	result, err := trainer.Refine(context.Background(), z)
	require.NoError(t, err)
	assert.True(t, result.Converged)
	assert.Equal(t, 100, len(result.Labels))
	assert.False(t, mat.Equal(before, a.Centers()))

	// 两团的样本分别属于不同的类
	for i := 1; i < 50; i++ {
		assert.Equal(t, result.Labels[0], result.Labels[i])
		assert.Equal(t, result.Labels[50], result.Labels[50+i])
	}
	assert.NotEqual(t, result.Labels[0], result.Labels[50])
}

func TestSelfTrainerConfig(t *testing.T) {
	a, err := NewClusterAssignment(2, 2, 1, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	_, err = NewSelfTrainer(a, &TrainerConfig{MaxIter: 0, UpdateInterval: 1, LearningRate: 1}, nil)
	assert.Error(t, err)
	_, err = NewSelfTrainer(a, &TrainerConfig{MaxIter: 1, UpdateInterval: 0, LearningRate: 1}, nil)
	assert.Error(t, err)
	_, err = NewSelfTrainer(a, &TrainerConfig{MaxIter: 1, UpdateInterval: 1, LearningRate: 0}, nil)
	assert.Error(t, err)
	_, err = NewSelfTrainer(a, &TrainerConfig{MaxIter: 1, UpdateInterval: 1, LearningRate: 1, Tol: -1}, nil)
	assert.Error(t, err)

	trainer, err := NewSelfTrainer(a, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, trainer.config.BatchSize)
}

func TestSelfTrainerEmptyAndCancel(t *testing.T) {
	a, err := NewClusterAssignment(2, 2, 1, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	trainer, err := NewSelfTrainer(a, nil, nil)
	require.NoError(t, err)

	result, err := trainer.Refine(context.Background(), core.NewMatrix(0, 2, nil))
	assert.NoError(t, err)
	assert.True(t, result.Converged)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trainer.Refine(ctx, twoBlobs(rand.New(rand.NewSource(1)), 5))
	assert.Error(t, err)

	_, err = trainer.Refine(context.Background(), core.NewMatrix(3, 5, nil))
	assert.Error(t, err)
}
