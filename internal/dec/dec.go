package dec

import (
	"math/rand"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Encoder 将一个批次的输入映射为固定长度的嵌入向量，每行一个样本。
type Encoder interface {
	Encode(batch *core.Matrix) (*core.Matrix, error)
}

// DEC 将编码器与ClusterAssignment组合，见Xie/Girshick/Farhadi。
// 编码器的参数是否冻结由调用方决定，DEC只负责前向计算。
type DEC struct {
	encoder    Encoder
	assignment *ClusterAssignment
}

func New(k, embeddingDim int, encoder Encoder, centers mat.Matrix, alpha float64, rnd *rand.Rand) (*DEC, error) {
	if encoder == nil {
		return nil, errors.New("编码器不能为空")
	}
	assignment, err := NewClusterAssignment(k, embeddingDim, alpha, centers, rnd)
	if err != nil {
		return nil, err
	}
	return &DEC{
		encoder:    encoder,
		assignment: assignment,
	}, nil
}

// Forward 先编码再计算软分配，结果为N*K矩阵。
func (d *DEC) Forward(batch *core.Matrix) (*core.Matrix, error) {
	embeddings, err := d.encode(batch)
	if err != nil {
		return nil, err
	}
	return d.assignment.Assign(embeddings)
}

// CentroidDistance 先编码再计算到各中心的距离平方。
func (d *DEC) CentroidDistance(batch *core.Matrix) (*core.Matrix, error) {
	embeddings, err := d.encode(batch)
	if err != nil {
		return nil, err
	}
	return d.assignment.CentroidDistances(embeddings)
}

// Predict 返回每个样本概率最大的类别
func (d *DEC) Predict(batch *core.Matrix) ([]int, error) {
	q, err := d.Forward(batch)
	if err != nil {
		return nil, err
	}
	return core.ArgMax(q), nil
}

func (d *DEC) Encoder() Encoder {
	return d.encoder
}

func (d *DEC) Assignment() *ClusterAssignment {
	return d.assignment
}

func (d *DEC) encode(batch *core.Matrix) (*core.Matrix, error) {
	embeddings, err := d.encoder.Encode(batch)
	if err != nil {
		return nil, errors.Wrap(err, "编码输入批次出错")
	}
	return embeddings, nil
}
