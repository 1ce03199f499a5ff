package dataset

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"

	"github.com/packagewjx/deepcluster/internal/encoder"
	"github.com/packagewjx/deepcluster/pkg/core"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 4

// Batch 一个批次的图像，每行是一张按CHW展开的图像
type Batch struct {
	Names  []string
	Labels []float64
	Images *core.Matrix
	Shape  encoder.ImageShape
}

type LoaderConfig struct {
	BatchSize int
	Shuffle   bool
	Seed      int64
	Workers   int
}

// Loader 按批次读取数据集的一个子集，同一批次内的图像并行解码
type Loader struct {
	dataset *Dataset
	indices []int
	config  LoaderConfig

	lock sync.Mutex
	pos  int
}

// NewLoader indices为nil时使用整个数据集
func NewLoader(d *Dataset, indices []int, config LoaderConfig) (*Loader, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("批大小必须大于0，现在为%d", config.BatchSize)
	}
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if indices == nil {
		indices = make([]int, d.Len())
		for i := range indices {
			indices[i] = i
		}
	} else {
		indices = append([]int(nil), indices...)
	}
	for _, idx := range indices {
		if idx < 0 || idx >= d.Len() {
			return nil, fmt.Errorf("下标%d越界，共%d个样本", idx, d.Len())
		}
	}
	if config.Shuffle {
		rnd := rand.New(rand.NewSource(config.Seed))
		rnd.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}
	return &Loader{
		dataset: d,
		indices: indices,
		config:  config,
	}, nil
}

func (l *Loader) Len() int {
	return len(l.indices)
}

// Next 读取下一批，全部读完后返回io.EOF
func (l *Loader) Next(ctx context.Context) (*Batch, error) {
	l.lock.Lock()
	if l.pos >= len(l.indices) {
		l.lock.Unlock()
		return nil, io.EOF
	}
	end := l.pos + l.config.BatchSize
	if end > len(l.indices) {
		end = len(l.indices)
	}
	batchIdx := l.indices[l.pos:end]
	l.pos = end
	l.lock.Unlock()

	samples := make([]*Sample, len(batchIdx))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.Workers)
	for i, idx := range batchIdx {
		i, idx := i, idx
		g.Go(func() error {
			sample, err := l.dataset.Get(gctx, idx)
			if err != nil {
				return err
			}
			samples[i] = sample
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	shape := samples[0].Shape
	batch := &Batch{
		Names:  make([]string, len(samples)),
		Labels: make([]float64, len(samples)),
		Images: core.NewMatrix(len(samples), shape.Size(), nil),
		Shape:  shape,
	}
	for i, sample := range samples {
		if sample.Shape != shape {
			return nil, fmt.Errorf("同一批次中图像尺寸不一致：%s为%s，%s为%s",
				samples[0].Name, shape, sample.Name, sample.Shape)
		}
		batch.Names[i] = sample.Name
		batch.Labels[i] = sample.Label
		copy(batch.Images.RawRow(i), sample.Pixels)
	}
	return batch, nil
}

// Reset 从头开始读取，顺序不变
func (l *Loader) Reset() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.pos = 0
}
