package encoder

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/packagewjx/deepcluster/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// Linear y = x * W^T + b
type Linear struct {
	Weight *mat.Dense // [out, in]
	Bias   []float64  // [out]
}

// NewLinear 使用Kaiming正态分布初始化权重，偏置为0
func NewLinear(in, out int, rnd *rand.Rand) *Linear {
	scale := math.Sqrt(2.0 / float64(in))
	data := make([]float64, out*in)
	for i := range data {
		data[i] = rnd.NormFloat64() * scale
	}
	return &Linear{
		Weight: mat.NewDense(out, in, data),
		Bias:   make([]float64, out),
	}
}

func (l *Linear) In() int {
	_, c := l.Weight.Dims()
	return c
}

func (l *Linear) Out() int {
	r, _ := l.Weight.Dims()
	return r
}

func (l *Linear) Forward(x *core.Matrix) (*core.Matrix, error) {
	n, in := x.Dims()
	if in != l.In() {
		return nil, fmt.Errorf("线性层输入维度应为%d，实际为%d", l.In(), in)
	}
	result := core.NewMatrix(n, l.Out(), nil)
	if n == 0 {
		return result, nil
	}

	out := result.Dense()
	out.Mul(x.Dense(), l.Weight.T())
	for i := 0; i < n; i++ {
		row := result.RawRow(i)
		for j, b := range l.Bias {
			row[j] += b
		}
	}
	return result, nil
}

// Backward 根据输出的梯度gradOut计算输入的梯度，并以学习率lr做一步梯度下降。x为前向传播时的输入。
func (l *Linear) Backward(x, gradOut *core.Matrix, lr float64) (*core.Matrix, error) {
	n, in := x.Dims()
	gn, out := gradOut.Dims()
	if in != l.In() || out != l.Out() || gn != n {
		return nil, fmt.Errorf("线性层%dx%d的反向传播维度不符，输入%dx%d，梯度%dx%d", l.Out(), l.In(), n, in, gn, out)
	}
	gradIn := core.NewMatrix(n, in, nil)
	if n == 0 {
		return gradIn, nil
	}

	// 先用更新前的权重计算输入梯度
	gradIn.Dense().Mul(gradOut.Dense(), l.Weight)

	var dw mat.Dense
	dw.Mul(gradOut.Dense().T(), x.Dense())
	dw.Scale(-lr, &dw)
	l.Weight.Add(l.Weight, &dw)
	for i := 0; i < n; i++ {
		for j, g := range gradOut.RawRow(i) {
			l.Bias[j] -= lr * g
		}
	}
	return gradIn, nil
}

func (l *Linear) Parameters() []*mat.Dense {
	return []*mat.Dense{l.Weight, mat.NewDense(1, len(l.Bias), l.Bias)}
}

// relu 原地计算
func relu(m *core.Matrix) *core.Matrix {
	data := m.RawData()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	return m
}
