package encoder

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type ExtractorConfig struct {
	Arch      Arch
	Dims      []int // 全连接层的输出维度，最后一个为嵌入维度
	Image     ImageShape
	Denoising bool // 训练时给输入加入N(0, 0.1)的噪声
	Seed      int64
	Backbone  Backbone // 为空时根据Arch使用PoolBackbone
}

// Extractor 冻结的主干网络提取特征，再经过全连接层得到嵌入向量。解码器与全连接层对称，
// 将嵌入向量还原为主干网络的特征，用于在特征上预训练全连接层。
// 全连接层之间使用ReLU，编码器与解码器的最后一层没有激活函数。
type Extractor struct {
	arch      Arch
	dims      []int
	backbone  Backbone
	encoder   []*Linear
	decoder   []*Linear
	denoising bool

	rndLock sync.Mutex
	rnd     *rand.Rand
}

func NewExtractor(config *ExtractorConfig) (*Extractor, error) {
	if _, err := ParseArch(string(config.Arch)); err != nil {
		return nil, err
	}
	if len(config.Dims) == 0 {
		return nil, fmt.Errorf("至少需要一层全连接层")
	}
	for i, d := range config.Dims {
		if d <= 0 {
			return nil, fmt.Errorf("第%d层全连接层的维度必须大于0，现在为%d", i, d)
		}
	}

	backbone := config.Backbone
	if backbone == nil {
		var err error
		backbone, err = NewPoolBackbone(config.Image, archSpecs[config.Arch].grid)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("创建%s主干网络出错", config.Arch))
		}
	}

	dims := append([]int{backbone.OutputDim()}, config.Dims...)
	rnd := rand.New(rand.NewSource(config.Seed))
	e := &Extractor{
		arch:      config.Arch,
		dims:      dims,
		backbone:  backbone,
		denoising: config.Denoising,
		rnd:       rnd,
	}
	for i := 0; i < len(dims)-1; i++ {
		e.encoder = append(e.encoder, NewLinear(dims[i], dims[i+1], rnd))
	}
	for i := len(dims) - 1; i > 0; i-- {
		e.decoder = append(e.decoder, NewLinear(dims[i], dims[i-1], rnd))
	}
	return e, nil
}

func (e *Extractor) Arch() Arch {
	return e.arch
}

// Dims 第一个为主干网络的特征维度
func (e *Extractor) Dims() []int {
	return append([]int(nil), e.dims...)
}

func (e *Extractor) LatentDim() int {
	return e.dims[len(e.dims)-1]
}

// Parameters 全连接层与解码器的参数，主干网络始终冻结
func (e *Extractor) Parameters() []*mat.Dense {
	params := make([]*mat.Dense, 0)
	for _, l := range append(append([]*Linear(nil), e.encoder...), e.decoder...) {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Encode 不加噪声
func (e *Extractor) Encode(batch *core.Matrix) (*core.Matrix, error) {
	features, err := e.backbone.Features(batch)
	if err != nil {
		return nil, errors.Wrap(err, "主干网络提取特征出错")
	}
	return forwardStack(e.encoder, features)
}

// Forward 返回主干网络的特征以及解码器还原的特征
func (e *Extractor) Forward(batch *core.Matrix) (features, reconstruction *core.Matrix, err error) {
	features, err = e.features(batch)
	if err != nil {
		return nil, nil, err
	}
	latent, err := forwardStack(e.encoder, features)
	if err != nil {
		return nil, nil, err
	}
	reconstruction, err = forwardStack(e.decoder, latent)
	if err != nil {
		return nil, nil, err
	}
	return features, reconstruction, nil
}

// TrainStep 以还原特征的均方误差为损失，对全连接层与解码器做一步梯度下降，返回更新前的损失
func (e *Extractor) TrainStep(batch *core.Matrix, lr float64) (float64, error) {
	features, err := e.features(batch)
	if err != nil {
		return 0, err
	}
	n, d := features.Dims()
	if n == 0 {
		return 0, nil
	}

	layers := append(append([]*Linear(nil), e.encoder...), e.decoder...)
	inputs := make([]*core.Matrix, len(layers))
	outputs := make([]*core.Matrix, len(layers))
	x := features
	for i, l := range layers {
		inputs[i] = x
		x, err = l.Forward(x)
		if err != nil {
			return 0, err
		}
		if e.hasRelu(i) {
			relu(x)
		}
		outputs[i] = x
	}

	loss, err := ReconstructionLoss(features, x)
	if err != nil {
		return 0, err
	}

	// d(mean((r - f)^2)) / dr
	grad := core.NewMatrix(n, d, nil)
	scale := 2 / float64(n*d)
	for i, r := range x.RawData() {
		grad.RawData()[i] = scale * (r - features.RawData()[i])
	}
	for i := len(layers) - 1; i >= 0; i-- {
		if e.hasRelu(i) {
			for j, v := range outputs[i].RawData() {
				if v <= 0 {
					grad.RawData()[j] = 0
				}
			}
		}
		grad, err = layers[i].Backward(inputs[i], grad, lr)
		if err != nil {
			return 0, err
		}
	}
	return loss, nil
}

// hasRelu 第i层（编码器与解码器连在一起计数）之后是否接ReLU
func (e *Extractor) hasRelu(i int) bool {
	return i != len(e.encoder)-1 && i != len(e.encoder)+len(e.decoder)-1
}

func (e *Extractor) features(batch *core.Matrix) (*core.Matrix, error) {
	if e.denoising {
		batch = e.addNoise(batch)
	}
	features, err := e.backbone.Features(batch)
	if err != nil {
		return nil, errors.Wrap(err, "主干网络提取特征出错")
	}
	return features, nil
}

func (e *Extractor) addNoise(batch *core.Matrix) *core.Matrix {
	return gaussianNoise(batch, &e.rndLock, e.rnd)
}

// forwardStack 依次经过各层，层之间使用ReLU
func forwardStack(layers []*Linear, x *core.Matrix) (*core.Matrix, error) {
	for i, l := range layers {
		out, err := l.Forward(x)
		if err != nil {
			return nil, err
		}
		if i != len(layers)-1 {
			relu(out)
		}
		x = out
	}
	return x, nil
}

// ReconstructionLoss 所有元素的均方误差
func ReconstructionLoss(features, reconstruction *core.Matrix) (float64, error) {
	n, d := features.Dims()
	rn, rd := reconstruction.Dims()
	if n != rn || d != rd {
		return 0, fmt.Errorf("还原结果为%dx%d，与特征%dx%d不符", rn, rd, n, d)
	}
	if n == 0 || d == 0 {
		return 0, nil
	}
	sum := 0.0
	r := reconstruction.RawData()
	for i, f := range features.RawData() {
		sum += (r[i] - f) * (r[i] - f)
	}
	return sum / float64(n*d), nil
}
