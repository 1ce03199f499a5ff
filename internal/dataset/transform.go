package dataset

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/packagewjx/deepcluster/internal/encoder"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

const NumChannels = 3

// Transform 将解码后的图像转换为按CHW展开、取值在[0,1]的向量
type Transform interface {
	Apply(img image.Image) ([]float64, encoder.ImageShape, error)
}

// Patch 不改变图像尺寸
type Patch struct{}

func (Patch) Apply(img image.Image) ([]float64, encoder.ImageShape, error) {
	return toTensor(img)
}

// Resize 使用双线性插值缩放到Width*Height
type Resize struct {
	Width  int
	Height int
}

func (r Resize) Apply(img image.Image) ([]float64, encoder.ImageShape, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, encoder.ImageShape{}, fmt.Errorf("缩放尺寸%dx%d不合法", r.Width, r.Height)
	}
	dst := image.NewRGBA64(image.Rect(0, 0, r.Width, r.Height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return toTensor(dst)
}

// decodeImage 支持tiff、png、jpeg
func decodeImage(in io.Reader) (image.Image, error) {
	img, _, err := image.Decode(in)
	if err != nil {
		return nil, errors.Wrap(err, "解码图像出错")
	}
	return img, nil
}

func toTensor(img image.Image) ([]float64, encoder.ImageShape, error) {
	bounds := img.Bounds()
	shape := encoder.ImageShape{
		Channels: NumChannels,
		Height:   bounds.Dy(),
		Width:    bounds.Dx(),
	}
	if shape.Height == 0 || shape.Width == 0 {
		return nil, shape, fmt.Errorf("图像为空")
	}

	plane := shape.Height * shape.Width
	data := make([]float64, shape.Size())
	for y := 0; y < shape.Height; y++ {
		for x := 0; x < shape.Width; x++ {
			c := color.RGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA64)
			idx := y*shape.Width + x
			data[idx] = float64(c.R) / 0xffff
			data[plane+idx] = float64(c.G) / 0xffff
			data[2*plane+idx] = float64(c.B) / 0xffff
		}
	}
	return data, shape, nil
}
