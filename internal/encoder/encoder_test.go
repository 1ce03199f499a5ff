package encoder

import (
	"errors"
	"testing"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var testShape = ImageShape{Channels: 3, Height: 28, Width: 28}

func TestParseArch(t *testing.T) {
	for _, name := range []string{"vgg16", "vgg16_small_patch", "vgg19", "resnet50", "resnet50_small_patch", "resnet152"} {
		arch, err := ParseArch(name)
		assert.NoError(t, err)
		assert.Equal(t, Arch(name), arch)
	}

	_, err := ParseArch("alexnet")
	assert.True(t, errors.Is(err, ErrUnknownArch))
	assert.Equal(t, 6, len(Archs()))

	assert.True(t, VGG16SmallPatch.SmallPatch())
	assert.False(t, ResNet152.SmallPatch())
	assert.Equal(t, "resnet", ResNet50SmallPatch.Family())
}

func TestNewEncoder(t *testing.T) {
	_, err := New(&Config{Arch: "inception", LatentDim: 10, Image: testShape})
	assert.True(t, errors.Is(err, ErrUnknownArch))

	_, err = New(&Config{Arch: VGG16, LatentDim: 0, Image: testShape})
	assert.Error(t, err)

	// 图像比池化网格还小
	_, err = New(&Config{Arch: VGG16SmallPatch, LatentDim: 10, Image: ImageShape{Channels: 3, Height: 8, Width: 8}})
	assert.Error(t, err)
}

func TestEncoderEncode(t *testing.T) {
	for _, arch := range []Arch{VGG16, VGG16SmallPatch, VGG19, ResNet50, ResNet50SmallPatch, ResNet152} {
		e, err := New(&Config{Arch: arch, LatentDim: 16, Image: testShape, Seed: 1})
		require.NoError(t, err)

		batch := core.NewMatrix(4, testShape.Size(), nil)
		for i := range batch.RawData() {
			batch.RawData()[i] = float64(i%255) / 255
		}
		out, err := e.Encode(batch)
		require.NoError(t, err)
		r, c := out.Dims()
		assert.Equal(t, 4, r)
		assert.Equal(t, 16, c)

		// 确定性
		again, err := e.Encode(batch)
		require.NoError(t, err)
		assert.Equal(t, out.RawData(), again.RawData())

		empty, err := e.Encode(core.NewMatrix(0, testShape.Size(), nil))
		require.NoError(t, err)
		r, c = empty.Dims()
		assert.Equal(t, 0, r)
		assert.Equal(t, 16, c)
	}

	e, err := New(&Config{Arch: VGG16, LatentDim: 16, Image: testShape})
	require.NoError(t, err)
	_, err = e.Encode(core.NewMatrix(1, 10, nil))
	assert.Error(t, err)
}

func TestEncoderSeed(t *testing.T) {
	a, err := New(&Config{Arch: ResNet50, LatentDim: 8, Image: testShape, Seed: 7})
	require.NoError(t, err)
	b, err := New(&Config{Arch: ResNet50, LatentDim: 8, Image: testShape, Seed: 7})
	require.NoError(t, err)
	assert.True(t, mat.Equal(a.hidden.Weight, b.hidden.Weight))
	assert.True(t, mat.Equal(a.output.Weight, b.output.Weight))
}

func TestEncoderDenoising(t *testing.T) {
	e, err := New(&Config{Arch: VGG16, LatentDim: 8, Image: testShape, Denoising: true, Seed: 1})
	require.NoError(t, err)
	batch := core.NewMatrix(2, testShape.Size(), nil)

	first, err := e.Encode(batch)
	require.NoError(t, err)
	second, err := e.Encode(batch)
	require.NoError(t, err)
	assert.NotEqual(t, first.RawData(), second.RawData())
	// 输入不被修改
	assert.Equal(t, 0.0, batch.At(0, 0))
}

type weightedBackbone struct {
	weight *mat.Dense
}

func (w *weightedBackbone) Features(images *core.Matrix) (*core.Matrix, error) {
	return images, nil
}

func (w *weightedBackbone) OutputDim() int {
	return 4
}

func (w *weightedBackbone) Parameters() []*mat.Dense {
	return []*mat.Dense{w.weight}
}

func TestEncoderLockWeights(t *testing.T) {
	backbone := &weightedBackbone{weight: mat.NewDense(2, 2, nil)}
	e, err := New(&Config{Arch: ResNet152, LatentDim: 3, LockWeights: true, Backbone: backbone})
	require.NoError(t, err)
	assert.True(t, e.Locked())
	assert.Equal(t, 4, len(e.Parameters()))

	e.UnlockWeights()
	assert.False(t, e.Locked())
	params := e.Parameters()
	assert.Equal(t, 5, len(params))
	assert.Equal(t, backbone.weight, params[0])

	e.LockWeights()
	assert.Equal(t, 4, len(e.Parameters()))

	out, err := e.Encode(core.NewMatrix(2, 4, []float64{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, err)
	_, c := out.Dims()
	assert.Equal(t, 3, c)
	assert.Equal(t, ResNet152, e.Arch())
	assert.Equal(t, 3, e.LatentDim())
}

func TestPoolBackbone(t *testing.T) {
	shape := ImageShape{Channels: 1, Height: 4, Width: 4}
	p, err := NewPoolBackbone(shape, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, p.OutputDim())
	assert.Nil(t, p.Parameters())

	img := core.NewMatrix(1, 16, []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	})
	features, err := p.Features(img)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, features.RawData())

	// 不能整除时窗口有重叠
	p, err = NewPoolBackbone(ImageShape{Channels: 1, Height: 3, Width: 3}, 2)
	require.NoError(t, err)
	features, err = p.Features(core.NewMatrix(1, 9, []float64{
		0, 0, 0,
		0, 9, 0,
		0, 0, 0,
	}))
	require.NoError(t, err)
	assert.Equal(t, []float64{2.25, 2.25, 2.25, 2.25}, features.RawData())

	_, err = NewPoolBackbone(ImageShape{}, 2)
	assert.Error(t, err)
	_, err = NewPoolBackbone(shape, 0)
	assert.Error(t, err)
}

func TestIdentity(t *testing.T) {
	batch := core.NewMatrix(2, 3, nil)
	out, err := Identity{Dim: 3}.Encode(batch)
	assert.NoError(t, err)
	assert.Equal(t, batch, out)

	_, err = Identity{Dim: 4}.Encode(batch)
	assert.Error(t, err)
}

func TestLinear(t *testing.T) {
	l := &Linear{
		Weight: mat.NewDense(2, 3, []float64{
			1, 0, 0,
			0, 1, 1,
		}),
		Bias: []float64{1, -1},
	}
	out, err := l.Forward(core.NewMatrix(1, 3, []float64{2, 3, 4}))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 6}, out.RawData())
	assert.Equal(t, []float64{0, 6}, relu(core.NewMatrix(1, 2, []float64{-3, 6})).RawData())
}
