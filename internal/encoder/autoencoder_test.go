package encoder

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// 直接把输入当作特征
type flatBackbone struct {
	dim int
}

func (f flatBackbone) Features(images *core.Matrix) (*core.Matrix, error) {
	if _, c := images.Dims(); c != f.dim {
		return nil, fmt.Errorf("输入维度应为%d", f.dim)
	}
	return images, nil
}

func (f flatBackbone) OutputDim() int {
	return f.dim
}

func (f flatBackbone) Parameters() []*mat.Dense {
	return nil
}

func randomBatch(n, d int, seed int64) *core.Matrix {
	rnd := rand.New(rand.NewSource(seed))
	batch := core.NewMatrix(n, d, nil)
	for i := range batch.RawData() {
		batch.RawData()[i] = rnd.Float64()
	}
	return batch
}

func TestLinearBackward(t *testing.T) {
	l := &Linear{
		Weight: mat.NewDense(2, 2, []float64{1, 2, 3, 4}),
		Bias:   []float64{0, 0},
	}
	x := core.NewMatrix(1, 2, []float64{1, 1})
	gradIn, err := l.Backward(x, core.NewMatrix(1, 2, []float64{1, 0}), 0.5)
	require.NoError(t, err)
	// 输入梯度使用更新前的权重
	assert.Equal(t, []float64{1, 2}, gradIn.RawData())
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{0.5, 1.5, 3, 4}), l.Weight))
	assert.Equal(t, []float64{-0.5, 0}, l.Bias)

	_, err = l.Backward(x, core.NewMatrix(1, 3, nil), 0.5)
	assert.Error(t, err)

	empty, err := l.Backward(core.NewMatrix(0, 2, nil), core.NewMatrix(0, 2, nil), 0.5)
	require.NoError(t, err)
	r, c := empty.Dims()
	assert.Equal(t, 0, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []float64{-0.5, 0}, l.Bias)
}

func TestNewExtractor(t *testing.T) {
	backbone := flatBackbone{dim: 6}
	_, err := NewExtractor(&ExtractorConfig{Arch: "inception", Dims: []int{3}, Backbone: backbone})
	assert.True(t, errors.Is(err, ErrUnknownArch))
	_, err = NewExtractor(&ExtractorConfig{Arch: ResNet50SmallPatch, Backbone: backbone})
	assert.Error(t, err)
	_, err = NewExtractor(&ExtractorConfig{Arch: ResNet50SmallPatch, Dims: []int{8, 0}, Backbone: backbone})
	assert.Error(t, err)

	e, err := NewExtractor(&ExtractorConfig{Arch: ResNet50SmallPatch, Dims: []int{8, 3}, Backbone: backbone})
	require.NoError(t, err)
	assert.Equal(t, []int{6, 8, 3}, e.Dims())
	assert.Equal(t, 3, e.LatentDim())
	assert.Equal(t, ResNet50SmallPatch, e.Arch())
	// 编码器两层，解码器两层，每层权重与偏置
	assert.Equal(t, 8, len(e.Parameters()))

	// 默认使用池化主干网络
	e, err = NewExtractor(&ExtractorConfig{Arch: ResNet50, Dims: []int{4}, Image: testShape})
	require.NoError(t, err)
	assert.Equal(t, 3*3*3, e.Dims()[0])
}

func TestExtractorForward(t *testing.T) {
	e, err := NewExtractor(&ExtractorConfig{Arch: ResNet50, Dims: []int{8, 3}, Backbone: flatBackbone{dim: 6}, Seed: 1})
	require.NoError(t, err)

	batch := randomBatch(5, 6, 1)
	features, reconstruction, err := e.Forward(batch)
	require.NoError(t, err)
	assert.Equal(t, batch.RawData(), features.RawData())
	r, c := reconstruction.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 6, c)

	latent, err := e.Encode(batch)
	require.NoError(t, err)
	r, c = latent.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 3, c)

	empty, err := e.Encode(core.NewMatrix(0, 6, nil))
	require.NoError(t, err)
	r, c = empty.Dims()
	assert.Equal(t, 0, r)
	assert.Equal(t, 3, c)

	_, _, err = e.Forward(core.NewMatrix(1, 5, nil))
	assert.Error(t, err)
}

func TestExtractorGradient(t *testing.T) {
	config := &ExtractorConfig{Arch: ResNet50, Dims: []int{5, 3}, Backbone: flatBackbone{dim: 6}, Seed: 3}
	batch := randomBatch(8, 6, 2)

	trained, err := NewExtractor(config)
	require.NoError(t, err)
	before := mat.DenseCopyOf(trained.encoder[0].Weight)
	_, err = trained.TrainStep(batch, 1)
	require.NoError(t, err)

	reference, err := NewExtractor(config)
	require.NoError(t, err)
	loss := func() float64 {
		features, reconstruction, err := reference.Forward(batch)
		require.NoError(t, err)
		l, err := ReconstructionLoss(features, reconstruction)
		require.NoError(t, err)
		return l
	}

	const h = 1e-6
	w := reference.encoder[0].Weight
	for _, idx := range [][2]int{{0, 0}, {1, 2}, {4, 5}} {
		i, j := idx[0], idx[1]
		origin := w.At(i, j)
		w.Set(i, j, origin+h)
		plus := loss()
		w.Set(i, j, origin-h)
		minus := loss()
		w.Set(i, j, origin)

		numeric := (plus - minus) / (2 * h)
		// 学习率为1时参数的变化量即为梯度
		analytic := before.At(i, j) - trained.encoder[0].Weight.At(i, j)
		assert.InDelta(t, numeric, analytic, 1e-6)
	}
}

func TestExtractorTrainStep(t *testing.T) {
	e, err := NewExtractor(&ExtractorConfig{Arch: VGG16, Dims: []int{4}, Backbone: flatBackbone{dim: 6}, Seed: 5})
	require.NoError(t, err)
	batch := randomBatch(16, 6, 4)

	features, reconstruction, err := e.Forward(batch)
	require.NoError(t, err)
	initial, err := ReconstructionLoss(features, reconstruction)
	require.NoError(t, err)

	var last float64
	for i := 0; i < 300; i++ {
		last, err = e.TrainStep(batch, 0.1)
		require.NoError(t, err)
	}
	assert.Less(t, last, initial)

	loss, err := e.TrainStep(core.NewMatrix(0, 6, nil), 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, loss)
}

func TestExtractorDenoising(t *testing.T) {
	e, err := NewExtractor(&ExtractorConfig{Arch: VGG16, Dims: []int{4}, Backbone: flatBackbone{dim: 6}, Denoising: true})
	require.NoError(t, err)
	batch := core.NewMatrix(2, 6, nil)

	// 训练时加噪声，编码时不加
	features, _, err := e.Forward(batch)
	require.NoError(t, err)
	assert.NotEqual(t, batch.RawData(), features.RawData())
	assert.Equal(t, 0.0, batch.At(0, 0))

	first, err := e.Encode(batch)
	require.NoError(t, err)
	second, err := e.Encode(batch)
	require.NoError(t, err)
	assert.Equal(t, first.RawData(), second.RawData())
}

func TestReconstructionLoss(t *testing.T) {
	loss, err := ReconstructionLoss(core.NewMatrix(1, 2, []float64{1, 2}), core.NewMatrix(1, 2, []float64{2, 4}))
	require.NoError(t, err)
	assert.Equal(t, 2.5, loss)

	_, err = ReconstructionLoss(core.NewMatrix(1, 2, nil), core.NewMatrix(2, 1, nil))
	assert.Error(t, err)
}
