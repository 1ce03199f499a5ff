package encoder

import (
	"fmt"

	"github.com/packagewjx/deepcluster/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// ImageShape 按CHW展开的图像形状
type ImageShape struct {
	Channels int
	Height   int
	Width    int
}

func (s ImageShape) Size() int {
	return s.Channels * s.Height * s.Width
}

func (s ImageShape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Channels, s.Height, s.Width)
}

// Backbone 从图像中提取特征。预训练网络等外部实现只需满足此接口。
type Backbone interface {
	Features(images *core.Matrix) (*core.Matrix, error)
	OutputDim() int
	// Parameters 返回可训练的参数，没有参数时返回nil
	Parameters() []*mat.Dense
}

// PoolBackbone 不含参数的主干网络，对每个通道做自适应平均池化，输出Channels*Grid*Grid维特征。
type PoolBackbone struct {
	shape ImageShape
	grid  int
}

func NewPoolBackbone(shape ImageShape, grid int) (*PoolBackbone, error) {
	if shape.Channels <= 0 || shape.Height <= 0 || shape.Width <= 0 {
		return nil, fmt.Errorf("图像形状%s不合法", shape)
	}
	if grid <= 0 {
		return nil, fmt.Errorf("池化网格大小必须大于0，现在为%d", grid)
	}
	if grid > shape.Height || grid > shape.Width {
		return nil, fmt.Errorf("图像%s小于池化网格%dx%d", shape, grid, grid)
	}
	return &PoolBackbone{shape: shape, grid: grid}, nil
}

func (p *PoolBackbone) OutputDim() int {
	return p.shape.Channels * p.grid * p.grid
}

func (p *PoolBackbone) Parameters() []*mat.Dense {
	return nil
}

// Features 池化窗口按照自适应池化的方式划分：第i个窗口覆盖[floor(i*H/g), ceil((i+1)*H/g))。
func (p *PoolBackbone) Features(images *core.Matrix) (*core.Matrix, error) {
	n, size := images.Dims()
	if size != p.shape.Size() {
		return nil, fmt.Errorf("图像展开长度为%d，与形状%s不符", size, p.shape)
	}

	h, w, g := p.shape.Height, p.shape.Width, p.grid
	result := core.NewMatrix(n, p.OutputDim(), nil)
	for i := 0; i < n; i++ {
		img := images.RawRow(i)
		out := result.RawRow(i)
		for c := 0; c < p.shape.Channels; c++ {
			plane := img[c*h*w : (c+1)*h*w]
			for gy := 0; gy < g; gy++ {
				y0, y1 := gy*h/g, ((gy+1)*h+g-1)/g
				for gx := 0; gx < g; gx++ {
					x0, x1 := gx*w/g, ((gx+1)*w+g-1)/g
					sum := 0.0
					for y := y0; y < y1; y++ {
						for x := x0; x < x1; x++ {
							sum += plane[y*w+x]
						}
					}
					out[c*g*g+gy*g+gx] = sum / float64((y1-y0)*(x1-x0))
				}
			}
		}
	}
	return result, nil
}
