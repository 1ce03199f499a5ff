package classify

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/packagewjx/kmeanspp"
	"gonum.org/v1/gonum/mat"
)

// Algorithm 聚类中心初始化算法，返回numClass*D的聚类中心
type Algorithm interface {
	Run(data *core.Matrix, numClass int, context interface{}) *mat.Dense
}

type AlgorithmType string

const (
	KMeans = AlgorithmType("kmeans")
	Random = AlgorithmType("random")
)

var ErrUnknownAlgorithm = fmt.Errorf("不支持的初始化算法")

func GetAlgorithm(algorithmType AlgorithmType) Algorithm {
	switch algorithmType {
	case KMeans:
		return &kMeansRunner{}
	case Random:
		return &randomRunner{}
	default:
		return nil
	}
}

type KMeansContext struct {
	Round int
}

const (
	KMeansDefaultRound = 30
)

type kMeansRunner struct {
}

func (k *kMeansRunner) Run(data *core.Matrix, numClass int, context interface{}) *mat.Dense {
	round := KMeansDefaultRound

	if context != nil {
		ctx, ok := context.(*KMeansContext)
		if !ok {
			log.Printf("输入的context不是KMeansContext类型。将使用默认参数")
		} else {
			round = ctx.Round
		}
	}

	rows, cols := data.Dims()
	points := make([][]float32, rows)
	for i := range points {
		points[i] = make([]float32, cols)
		for j, v := range data.RawRow(i) {
			points[i][j] = float32(v)
		}
	}

	centers, _ := kmeanspp.KMeansPP(numClass, round, points)
	result := mat.NewDense(numClass, cols, nil)
	for i, center := range centers {
		for j, v := range center {
			result.Set(i, j, float64(v))
		}
	}
	return result
}

type RandomContext struct {
	Seed int64
}

// randomRunner 随机选取numClass个不同的样本作为聚类中心
type randomRunner struct {
}

func (r *randomRunner) Run(data *core.Matrix, numClass int, context interface{}) *mat.Dense {
	seed := int64(0)
	if context != nil {
		ctx, ok := context.(*RandomContext)
		if !ok {
			log.Printf("输入的context不是RandomContext类型。将使用默认参数")
		} else {
			seed = ctx.Seed
		}
	}

	rows, cols := data.Dims()
	perm := rand.New(rand.NewSource(seed)).Perm(rows)
	result := mat.NewDense(numClass, cols, nil)
	for i := 0; i < numClass; i++ {
		result.SetRow(i, data.RawRow(perm[i]))
	}
	return result
}

// InitialCenters 使用指定算法从嵌入向量中计算初始聚类中心
func InitialCenters(data *core.Matrix, numClass int, algorithmType AlgorithmType, context interface{}) (*mat.Dense, error) {
	algorithm := GetAlgorithm(algorithmType)
	if algorithm == nil {
		return nil, fmt.Errorf("%w：%s", ErrUnknownAlgorithm, algorithmType)
	}
	if numClass <= 0 {
		return nil, fmt.Errorf("聚类数必须大于0，现在为%d", numClass)
	}
	rows, cols := data.Dims()
	if cols == 0 {
		return nil, fmt.Errorf("嵌入向量维度为0")
	}
	if rows < numClass {
		return nil, fmt.Errorf("样本数%d少于聚类数%d", rows, numClass)
	}
	return algorithm.Run(data, numClass, context), nil
}
