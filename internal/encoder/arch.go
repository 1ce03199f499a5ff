package encoder

import (
	"fmt"
	"sort"
)

// Arch 预训练主干网络的类型
type Arch string

const (
	VGG16              = Arch("vgg16")
	VGG16SmallPatch    = Arch("vgg16_small_patch")
	VGG19              = Arch("vgg19")
	ResNet50           = Arch("resnet50")
	ResNet50SmallPatch = Arch("resnet50_small_patch")
	ResNet152          = Arch("resnet152")
)

var ErrUnknownArch = fmt.Errorf("不支持的主干网络")

// archSpec 描述主干网络输出特征图的形状。SmallPatch版本去掉了一次下采样，空间分辨率加倍，
// 用于输入尺寸较小的图像块。
type archSpec struct {
	family     string
	grid       int
	smallPatch bool
}

var archSpecs = map[Arch]archSpec{
	VGG16:              {family: "vgg", grid: 7},
	VGG16SmallPatch:    {family: "vgg", grid: 14, smallPatch: true},
	VGG19:              {family: "vgg", grid: 7},
	ResNet50:           {family: "resnet", grid: 3},
	ResNet50SmallPatch: {family: "resnet", grid: 6, smallPatch: true},
	ResNet152:          {family: "resnet", grid: 3},
}

func ParseArch(name string) (Arch, error) {
	arch := Arch(name)
	if _, ok := archSpecs[arch]; !ok {
		return "", fmt.Errorf("%w：%s，可选值：%v", ErrUnknownArch, name, Archs())
	}
	return arch, nil
}

// Archs 返回所有支持的主干网络名称
func Archs() []string {
	result := make([]string, 0, len(archSpecs))
	for arch := range archSpecs {
		result = append(result, string(arch))
	}
	sort.Strings(result)
	return result
}

func (a Arch) SmallPatch() bool {
	return archSpecs[a].smallPatch
}

func (a Arch) Family() string {
	return archSpecs[a].family
}
