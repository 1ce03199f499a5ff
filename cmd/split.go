/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/packagewjx/deepcluster/internal/classify"
	"github.com/packagewjx/deepcluster/internal/dataset"
	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	TrainFractionFlag = "train"
	ValFractionFlag   = "val"
)

const labelPrecision = 6

var (
	splitSeed     int64
	splitMetric   string
	trainFraction float64
	valFraction   float64
)

// datasetCmd represents the dataset command
var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "数据集相关的工具",
}

// splitCmd represents the split command
var splitCmd = &cobra.Command{
	Use:   "split dataDir outputDir",
	Short: "将数据集随机划分为训练集、验证集与测试集，在outputDir中输出train.csv、val.csv与test.csv",
	Long:  "每个输出文件的格式为：名称,标签。相同的seed得到相同的划分。\n",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("参数错误")
		}
		if _, err := dataset.ParseMetric(splitMetric); err != nil {
			return err
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := buildSource(args[0])
		if err != nil {
			return err
		}
		d, err := dataset.New(context.Background(), source, dataset.Metric(splitMetric), nil)
		if err != nil {
			return errors.Wrap(err, "读取数据集错误")
		}

		partition, err := dataset.Split(d.Len(), splitSeed, trainFraction, valFraction)
		if err != nil {
			return err
		}
		log.Printf("训练集%d个，验证集%d个，测试集%d个", len(partition.Train), len(partition.Val), len(partition.Test))

		if err = os.MkdirAll(args[1], 0755); err != nil {
			return errors.Wrap(err, "创建输出目录错误")
		}
		names := d.Names()
		labels := d.Labels()
		for fileName, indices := range map[string][]int{
			"train.csv": partition.Train,
			"val.csv":   partition.Val,
			"test.csv":  partition.Test,
		} {
			if err = writeSplit(filepath.Join(args[1], fileName), names, labels, indices); err != nil {
				return err
			}
		}
		return nil
	},
}

func writeSplit(fileName string, names []string, labels []float64, indices []int) error {
	fout, err := os.Create(fileName)
	if err != nil {
		return errors.Wrap(err, "创建输出文件错误")
	}
	defer func() {
		_ = fout.Close()
	}()

	subNames := make([]string, len(indices))
	subLabels := core.NewMatrix(len(indices), 1, nil)
	for i, idx := range indices {
		subNames[i] = names[idx]
		subLabels.Set(i, 0, labels[idx])
	}
	err = classify.OutputResult(subLabels, subNames, fout, labelPrecision)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("输出文件%s错误", fileName))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(splitCmd)

	splitCmd.Flags().Int64Var(&splitSeed, SeedFlag, 0,
		"打乱数据集使用的随机种子")
	splitCmd.Flags().StringVarP(&splitMetric, MetricFlag, "m", string(dataset.Density),
		"标签种类，可选值：density、mhi、ed")
	splitCmd.Flags().Float64Var(&trainFraction, TrainFractionFlag, dataset.DefaultTrainFraction,
		"训练集比例")
	splitCmd.Flags().Float64Var(&valFraction, ValFractionFlag, dataset.DefaultValFraction,
		"验证集比例，剩余的为测试集")
}
