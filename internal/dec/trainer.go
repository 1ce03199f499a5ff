package dec

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"math/rand"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/pkg/errors"
)

const (
	DefaultMaxIter        = 200
	DefaultUpdateInterval = 10
	DefaultTol            = 0.001
	DefaultLearningRate   = 0.01
	DefaultBatchSize      = 256
)

type TrainerConfig struct {
	MaxIter        int     // 最大迭代轮次，每轮遍历全部样本一次
	UpdateInterval int     // 每隔多少轮重新计算目标分布
	Tol            float64 // 两次目标分布更新之间硬分配变化比例低于此值时停止
	LearningRate   float64
	BatchSize      int
	Seed           int64 // 打乱小批次顺序的随机种子
}

func DefaultTrainerConfig() *TrainerConfig {
	return &TrainerConfig{
		MaxIter:        DefaultMaxIter,
		UpdateInterval: DefaultUpdateInterval,
		Tol:            DefaultTol,
		LearningRate:   DefaultLearningRate,
		BatchSize:      DefaultBatchSize,
	}
}

func (c *TrainerConfig) Complete() error {
	if c.MaxIter <= 0 {
		return fmt.Errorf("最大迭代轮次必须大于0，现在为%d", c.MaxIter)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("目标分布更新间隔必须大于0，现在为%d", c.UpdateInterval)
	}
	if c.Tol < 0 {
		return fmt.Errorf("停止阈值不能为负数，现在为%f", c.Tol)
	}
	if !(c.LearningRate > 0) {
		return fmt.Errorf("学习率必须大于0，现在为%f", c.LearningRate)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return nil
}

type RefineResult struct {
	Iterations int
	Loss       float64 // 最后一次更新目标分布时的KL散度
	Delta      float64 // 最后一次更新目标分布时硬分配变化的比例
	Converged  bool
	Labels     []int
}

// SelfTrainer 在编码器冻结的情况下执行DEC自训练，只更新聚类中心。
type SelfTrainer struct {
	assignment *ClusterAssignment
	config     *TrainerConfig
	logger     *log.Logger
}

func NewSelfTrainer(assignment *ClusterAssignment, config *TrainerConfig, logger *log.Logger) (*SelfTrainer, error) {
	if config == nil {
		config = DefaultTrainerConfig()
	}
	if err := config.Complete(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	return &SelfTrainer{
		assignment: assignment,
		config:     config,
		logger:     logger,
	}, nil
}

// Refine 使用固定的嵌入向量迭代优化聚类中心，直到硬分配稳定或达到最大轮次。
func (t *SelfTrainer) Refine(ctx context.Context, embeddings *core.Matrix) (*RefineResult, error) {
	n, _ := embeddings.Dims()
	result := &RefineResult{Labels: make([]int, 0)}
	if n == 0 {
		result.Converged = true
		return result, nil
	}

	rnd := rand.New(rand.NewSource(t.config.Seed))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	var target *core.Matrix
	var prev []int
	for iter := 0; iter < t.config.MaxIter; iter++ {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "自训练被取消")
		default:
		}

		if iter%t.config.UpdateInterval == 0 {
			q, err := t.assignment.Assign(embeddings)
			if err != nil {
				return nil, err
			}
			target = TargetDistribution(q)
			labels := core.ArgMax(q)
			loss, err := KLDivergence(target, q)
			if err != nil {
				return nil, err
			}
			result.Loss = loss
			result.Labels = labels

			if prev != nil {
				result.Delta = changedFraction(prev, labels)
				t.logger.Printf("第%d轮，KL散度%.6f，硬分配变化比例%.4f\n", iter, loss, result.Delta)
				if result.Delta < t.config.Tol {
					result.Converged = true
					result.Iterations = iter
					return result, nil
				}
			}
			prev = labels
		}

		rnd.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		for start := 0; start < n; start += t.config.BatchSize {
			end := start + t.config.BatchSize
			if end > n {
				end = n
			}
			if err := t.step(embeddings.SelectRows(order[start:end]), target.SelectRows(order[start:end])); err != nil {
				return nil, err
			}
		}
		result.Iterations = iter + 1
	}

	q, err := t.assignment.Assign(embeddings)
	if err != nil {
		return nil, err
	}
	labels := core.ArgMax(q)
	result.Delta = changedFraction(prev, labels)
	result.Labels = labels
	result.Loss, err = KLDivergence(TargetDistribution(q), q)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (t *SelfTrainer) step(z, p *core.Matrix) error {
	q, err := t.assignment.Assign(z)
	if err != nil {
		return err
	}
	grad, err := t.assignment.CentroidGradient(z, p, q)
	if err != nil {
		return errors.Wrap(err, "计算聚类中心梯度出错")
	}
	centers := t.assignment.Parameters()
	grad.Scale(t.config.LearningRate, grad)
	centers.Sub(centers, grad)
	return nil
}

func changedFraction(prev, cur []int) float64 {
	if len(cur) == 0 {
		return 0
	}
	changed := 0
	for i := range cur {
		if prev[i] != cur[i] {
			changed++
		}
	}
	return float64(changed) / float64(len(cur))
}
