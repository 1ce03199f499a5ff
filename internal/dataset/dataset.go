package dataset

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/packagewjx/deepcluster/internal/encoder"
	"github.com/pkg/errors"
)

// Sample 一张解码后的图像及其标签
type Sample struct {
	Name   string
	Label  float64
	Pixels []float64
	Shape  encoder.ImageShape
}

// Dataset 某个来源下的全部图像。标签在创建时全部解析，图像在Get时才读取。
type Dataset struct {
	source    Source
	transform Transform
	names     []string
	labels    []float64
	logger    *log.Logger
}

func New(ctx context.Context, source Source, metric Metric, transform Transform) (*Dataset, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if transform == nil {
		transform = Patch{}
	}

	names, err := source.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "列出图像出错")
	}
	labels := make([]float64, len(names))
	for i, name := range names {
		labels[i], err = ParseLabel(name, metric)
		if err != nil {
			return nil, err
		}
	}

	d := &Dataset{
		source:    source,
		transform: transform,
		names:     names,
		labels:    labels,
		logger:    log.New(os.Stdout, "dataset: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix),
	}
	d.logger.Printf("共读取到%d张图像，标签种类为%s", len(names), metric)
	return d, nil
}

func (d *Dataset) Len() int {
	return len(d.names)
}

func (d *Dataset) Names() []string {
	return append([]string(nil), d.names...)
}

func (d *Dataset) Labels() []float64 {
	return append([]float64(nil), d.labels...)
}

func (d *Dataset) Get(ctx context.Context, i int) (*Sample, error) {
	if i < 0 || i >= len(d.names) {
		return nil, fmt.Errorf("下标%d越界，共%d个样本", i, len(d.names))
	}
	name := d.names[i]
	in, err := d.source.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = in.Close()
	}()

	img, err := decodeImage(in)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("读取%s出错", name))
	}
	pixels, shape, err := d.transform.Apply(img)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("转换%s出错", name))
	}
	return &Sample{
		Name:   name,
		Label:  d.labels[i],
		Pixels: pixels,
		Shape:  shape,
	}, nil
}
