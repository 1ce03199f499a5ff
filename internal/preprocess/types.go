package preprocess

import (
	"github.com/packagewjx/deepcluster/pkg/core"
)

// Preprocessor 原地处理嵌入向量矩阵，每行一个样本
type Preprocessor interface {
	Preprocess(data *core.Matrix)
}

type defaultPreprocess struct {
	chain []Preprocessor
}

func (d *defaultPreprocess) Preprocess(data *core.Matrix) {
	for _, processor := range d.chain {
		processor.Preprocess(data)
	}
}

func Chain(processors ...Preprocessor) Preprocessor {
	return &defaultPreprocess{chain: processors}
}

func Default() Preprocessor {
	return Chain(Standardize(), L2Normalize())
}

type Method string

const (
	MethodStandardize = Method("standardize")
	MethodL2          = Method("l2")
	MethodDefault     = Method("default")
)

// Get 按名称获取预处理方法，不支持时返回nil
func Get(method Method) Preprocessor {
	switch method {
	case MethodStandardize:
		return Standardize()
	case MethodL2:
		return L2Normalize()
	case MethodDefault:
		return Default()
	default:
		return nil
	}
}
