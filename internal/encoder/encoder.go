package encoder

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultHiddenDim  = 256
	DefaultNoiseSigma = 0.1
)

type Config struct {
	Arch        Arch
	LatentDim   int
	Image       ImageShape
	LockWeights bool // 冻结主干网络参数
	Denoising   bool // 编码前给输入加入N(0, 0.1)的噪声
	Seed        int64
	Backbone    Backbone // 为空时根据Arch使用PoolBackbone
}

// Encoder 主干网络后接两层全连接：Linear(backbone, 256) -> ReLU -> Linear(256, latent)
type Encoder struct {
	arch        Arch
	latentDim   int
	backbone    Backbone
	hidden      *Linear
	output      *Linear
	lockWeights bool
	denoising   bool

	rndLock sync.Mutex
	rnd     *rand.Rand
}

func New(config *Config) (*Encoder, error) {
	if _, err := ParseArch(string(config.Arch)); err != nil {
		return nil, err
	}
	if config.LatentDim <= 0 {
		return nil, fmt.Errorf("嵌入维度必须大于0，现在为%d", config.LatentDim)
	}

	backbone := config.Backbone
	if backbone == nil {
		var err error
		backbone, err = NewPoolBackbone(config.Image, archSpecs[config.Arch].grid)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("创建%s主干网络出错", config.Arch))
		}
	}

	rnd := rand.New(rand.NewSource(config.Seed))
	return &Encoder{
		arch:        config.Arch,
		latentDim:   config.LatentDim,
		backbone:    backbone,
		hidden:      NewLinear(backbone.OutputDim(), DefaultHiddenDim, rnd),
		output:      NewLinear(DefaultHiddenDim, config.LatentDim, rnd),
		lockWeights: config.LockWeights,
		denoising:   config.Denoising,
		rnd:         rnd,
	}, nil
}

func (e *Encoder) Arch() Arch {
	return e.arch
}

func (e *Encoder) LatentDim() int {
	return e.latentDim
}

func (e *Encoder) LockWeights() {
	e.lockWeights = true
}

func (e *Encoder) UnlockWeights() {
	e.lockWeights = false
}

func (e *Encoder) Locked() bool {
	return e.lockWeights
}

// Parameters 返回可训练参数。主干网络被冻结时不包含主干网络的参数。
func (e *Encoder) Parameters() []*mat.Dense {
	params := make([]*mat.Dense, 0)
	if !e.lockWeights {
		params = append(params, e.backbone.Parameters()...)
	}
	params = append(params, e.hidden.Parameters()...)
	params = append(params, e.output.Parameters()...)
	return params
}

func (e *Encoder) Encode(batch *core.Matrix) (*core.Matrix, error) {
	if e.denoising {
		batch = e.addNoise(batch)
	}

	features, err := e.backbone.Features(batch)
	if err != nil {
		return nil, errors.Wrap(err, "主干网络提取特征出错")
	}
	hidden, err := e.hidden.Forward(features)
	if err != nil {
		return nil, err
	}
	return e.output.Forward(relu(hidden))
}

func (e *Encoder) addNoise(batch *core.Matrix) *core.Matrix {
	return gaussianNoise(batch, &e.rndLock, e.rnd)
}

// gaussianNoise 返回加入N(0, DefaultNoiseSigma)噪声的副本，不修改输入
func gaussianNoise(batch *core.Matrix, lock *sync.Mutex, rnd *rand.Rand) *core.Matrix {
	noisy := batch.Clone()
	lock.Lock()
	defer lock.Unlock()
	data := noisy.RawData()
	for i := range data {
		data[i] += rnd.NormFloat64() * DefaultNoiseSigma
	}
	return noisy
}

// Identity 用于已经提取好的嵌入向量，只检查维度。
type Identity struct {
	Dim int
}

func (i Identity) Encode(batch *core.Matrix) (*core.Matrix, error) {
	_, d := batch.Dims()
	if d != i.Dim {
		return nil, fmt.Errorf("嵌入向量维度应为%d，实际为%d", i.Dim, d)
	}
	return batch, nil
}
