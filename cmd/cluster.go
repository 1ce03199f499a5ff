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
	"regexp"
	"strconv"

	"github.com/packagewjx/deepcluster/internal/classify"
	"github.com/packagewjx/deepcluster/internal/dec"
	"github.com/packagewjx/deepcluster/internal/encoder"
	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

const (
	AlgorithmKMeans = "kmeans"
	AlgorithmRandom = "random"
)

// Global Flags
const (
	AlgorithmFlag       = "algorithm"
	DataFormatFlag      = "dataFormat"
	RemoveColumnFlag    = "removeColumn"
	OutputPrecisionFlag = "outputPrecision"
	AlphaFlag           = "alpha"
	CenterOutputFlag    = "centerOutput"
)

// Global Defaults
const (
	DefaultOutputPrecision = 4
)

// Flags for K-Means
const (
	KMeansRoundFlag = "kMeansRound"
)

// Flags for self training
const (
	MaxIterFlag        = "maxIter"
	UpdateIntervalFlag = "updateInterval"
	TolFlag            = "tol"
	LearningRateFlag   = "learningRate"
)

var algorithm string
var format string
var removeColumn []int
var outputPrecision int
var kMeansRound int
var alpha float64
var centerOutput string
var clusterSeed int64
var trainerConfig = dec.DefaultTrainerConfig()

// clusterCmd represents the cluster command
var clusterCmd = &cobra.Command{
	Use:   "cluster dataFile outputFile numClusters",
	Short: "读取嵌入向量文件，初始化聚类中心并自训练，输出每个样本的类别与软分配",
	Long: "dataFile的第一列为名称，其余为嵌入向量。输出格式为：名称,类别,q_0,...,q_{K-1}。\n" +
		"默认移除第1列，即encode命令输出的标签列。\n",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if format == "" {
			return fmt.Errorf("必须指定数据文件格式")
		} else if len(args) != 3 {
			return fmt.Errorf("参数错误")
		} else if args[0] == args[1] {
			return fmt.Errorf("dataFile与outputFile不能一致")
		}

		if match, _ := regexp.MatchString("^\\d+$", args[2]); !match {
			return fmt.Errorf("类数量参数不是数字")
		}
		if classify.GetAlgorithm(classify.AlgorithmType(algorithm)) == nil {
			return fmt.Errorf("%w：%s，可选值：%s、%s", classify.ErrUnknownAlgorithm, algorithm, AlgorithmKMeans, AlgorithmRandom)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		algType := classify.AlgorithmType(algorithm)
		var algContext interface{}
		switch algType {
		case classify.Random:
			algContext = &classify.RandomContext{Seed: clusterSeed}
		case classify.KMeans:
			algContext = &classify.KMeansContext{Round: kMeansRound}
		}

		table, err := loadTable(args[0], removeColumn)
		if err != nil {
			return err
		}
		_, dim := table.Data.Dims()

		numClusters, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return errors.Wrap(err, "类数量参数错误")
		}

		log.Printf("使用%s算法初始化聚类中心", algType)
		centers, err := classify.InitialCenters(table.Data, int(numClusters), algType, algContext)
		if err != nil {
			return errors.Wrap(err, "初始化聚类中心错误")
		}

		model, err := dec.New(int(numClusters), dim, encoder.Identity{Dim: dim}, centers, alpha, nil)
		if err != nil {
			return err
		}
		trainerConfig.Seed = clusterSeed
		trainer, err := dec.NewSelfTrainer(model.Assignment(), trainerConfig,
			log.New(os.Stdout, "", log.LstdFlags|log.Lmsgprefix))
		if err != nil {
			return err
		}

		log.Println("自训练中")
		result, err := trainer.Refine(context.Background(), table.Data)
		if err != nil {
			return errors.Wrap(err, "自训练错误")
		}
		log.Printf("自训练完成，共%d轮，KL散度为%f，是否收敛：%v", result.Iterations, result.Loss, result.Converged)

		q, err := model.Forward(table.Data)
		if err != nil {
			return err
		}
		if collapsed := dec.CollapsedClusters(q); len(collapsed) > 0 {
			log.Printf("以下类别没有分配到任何样本：%v", collapsed)
		}

		if err = writeAssignment(args[1], table.Names, q); err != nil {
			return err
		}

		if centerOutput != "" {
			if err = writeMatrix(centerOutput, model.Assignment().Parameters()); err != nil {
				return err
			}
		}
		return nil
	},
}

func loadTable(fileName string, remove []int) (*classify.Table, error) {
	var dataType classify.DataFormat
	switch format {
	default:
		dataType = classify.CSV
	}
	loader := classify.NewDataLoader(dataType)

	log.Println("读取数据中")
	inFile, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "打开输入文件错误")
	}
	defer func() {
		_ = inFile.Close()
	}()
	table, err := loader.Load(inFile, 0, remove)
	if err != nil {
		return nil, errors.Wrap(err, "读取错误")
	}
	log.Printf("读取数据完成，共%d条", len(table.Names))
	return table, nil
}

func writeAssignment(fileName string, names []string, q *core.Matrix) error {
	fout, err := os.Create(fileName)
	if err != nil {
		return errors.Wrap(err, "创建输出文件错误")
	}
	defer func() {
		_ = fout.Close()
	}()
	err = classify.OutputAssignment(names, core.ArgMax(q), q, fout, outputPrecision)
	if err != nil {
		return errors.Wrap(err, "输出文件错误")
	}
	return nil
}

func writeMatrix(fileName string, m mat.Matrix) error {
	fout, err := os.Create(fileName)
	if err != nil {
		return errors.Wrap(err, "创建输出文件错误")
	}
	defer func() {
		_ = fout.Close()
	}()
	err = classify.OutputResult(m, nil, fout, DefaultEmbedPrecision)
	if err != nil {
		return errors.Wrap(err, "输出文件错误")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(clusterCmd)

	clusterCmd.Flags().StringVarP(&algorithm, AlgorithmFlag, "a", AlgorithmKMeans,
		"初始化聚类中心的算法。默认为kmeans，可选值：kmeans、random")
	clusterCmd.Flags().StringVarP(&format, DataFormatFlag, "f", string(classify.CSV),
		"数据文件格式")
	clusterCmd.Flags().IntSliceVarP(&removeColumn, RemoveColumnFlag, "r", []int{1},
		"需要移除的列号，从0开始计算，第0列为名称。使用此字段忽略掉不是嵌入向量的列")
	clusterCmd.Flags().IntVarP(&outputPrecision, OutputPrecisionFlag, "p", DefaultOutputPrecision,
		"输出文件数据精度")
	clusterCmd.Flags().Float64Var(&alpha, AlphaFlag, dec.DefaultAlpha,
		"Student's t分布的自由度")
	clusterCmd.Flags().StringVarP(&centerOutput, CenterOutputFlag, "c", "",
		"若不为空，则将自训练后的聚类中心输出到此文件")
	clusterCmd.Flags().Int64Var(&clusterSeed, SeedFlag, 0,
		"随机初始化以及打乱小批次使用的随机种子")

	// Flags for K-Means Algorithm
	clusterCmd.Flags().IntVar(&kMeansRound, KMeansRoundFlag, classify.KMeansDefaultRound,
		"K-Means算法执行的轮次")

	// Flags for self training
	clusterCmd.Flags().IntVar(&trainerConfig.MaxIter, MaxIterFlag, dec.DefaultMaxIter,
		"自训练最大轮次")
	clusterCmd.Flags().IntVar(&trainerConfig.UpdateInterval, UpdateIntervalFlag, dec.DefaultUpdateInterval,
		"每隔多少轮更新一次目标分布")
	clusterCmd.Flags().Float64Var(&trainerConfig.Tol, TolFlag, dec.DefaultTol,
		"硬分配变化比例低于此值时停止")
	clusterCmd.Flags().Float64Var(&trainerConfig.LearningRate, LearningRateFlag, dec.DefaultLearningRate,
		"聚类中心的学习率")
	clusterCmd.Flags().IntVarP(&trainerConfig.BatchSize, BatchSizeFlag, "b", dec.DefaultBatchSize,
		"自训练的小批次大小")
}
