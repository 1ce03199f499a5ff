package dataset

import (
	"fmt"
	"math/rand"
)

const (
	DefaultTrainFraction = 0.7
	DefaultValFraction   = 0.15
)

// Partition 数据集划分结果，保存的是样本下标
type Partition struct {
	Train []int
	Val   []int
	Test  []int
}

// Split 使用seed打乱0..n-1，前int(trainFrac*n)个为训练集，接下来int(valFrac*n)个为验证集，
// 其余为测试集。相同的seed得到相同的划分。
func Split(n int, seed int64, trainFrac, valFrac float64) (*Partition, error) {
	if n < 0 {
		return nil, fmt.Errorf("样本数不能为负数")
	}
	if trainFrac < 0 || valFrac < 0 || trainFrac+valFrac > 1 {
		return nil, fmt.Errorf("划分比例不合法，训练集%v，验证集%v", trainFrac, valFrac)
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	rnd := rand.New(rand.NewSource(seed))
	rnd.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})

	trainSize := int(trainFrac * float64(n))
	valSize := int(valFrac * float64(n))
	return &Partition{
		Train: perm[:trainSize],
		Val:   perm[trainSize : trainSize+valSize],
		Test:  perm[trainSize+valSize:],
	}, nil
}
