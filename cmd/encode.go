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
	"io"
	"log"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/packagewjx/deepcluster/internal/classify"
	"github.com/packagewjx/deepcluster/internal/dataset"
	"github.com/packagewjx/deepcluster/internal/encoder"
	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/mat"
)

const (
	ArchFlag        = "arch"
	LatentDimFlag   = "latentDim"
	MetricFlag      = "metric"
	PatchSizeFlag   = "patchSize"
	BatchSizeFlag   = "batchSize"
	SeedFlag        = "seed"
	LockWeightsFlag = "lockWeights"
	DenoisingFlag   = "denoising"
	WorkersFlag     = "workers"
	DimsFlag        = "dims"
	PretrainFlag    = "pretrainEpochs"
	PretrainLrFlag  = "pretrainRate"
)

const (
	DefaultLatentDim      = 10
	DefaultEncodeBatch    = 32
	DefaultEmbedPrecision = 6
	DefaultPretrainRate   = 0.01
)

var (
	arch        string
	latentDim   int
	metric      string
	patchSize   int
	batchSize   int
	seed        int64
	lockWeights bool
	denoising   bool
	workers     int
	dims        []int
	pretrain    int
	pretrainLr  float64
)

// batchEncoder 编码器，以及带解码器、可以预训练的特征提取器
type batchEncoder interface {
	Encode(batch *core.Matrix) (*core.Matrix, error)
	LatentDim() int
	Parameters() []*mat.Dense
}

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode dataDir outputFile",
	Short: "将目录或对象存储中的图像编码为嵌入向量，输出格式为：名称,标签,嵌入向量",
	Long: "dataDir为本地目录。指定了bucket时，dataDir为对象存储中的前缀。\n" +
		"图像文件名的格式为<前缀>_<density>_<mhi>_<ed>.<扩展名>，标签种类由metric指定。\n",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("参数错误")
		}
		if _, err := encoder.ParseArch(arch); err != nil {
			return err
		}
		if _, err := dataset.ParseMetric(metric); err != nil {
			return err
		}
		if pretrain > 0 && len(dims) == 0 {
			return fmt.Errorf("预训练需要通过%s指定全连接层维度", DimsFlag)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		source, err := buildSource(args[0])
		if err != nil {
			return err
		}

		var transform dataset.Transform = dataset.Patch{}
		if patchSize > 0 {
			transform = dataset.Resize{Width: patchSize, Height: patchSize}
		}

		log.Println("读取数据集中")
		d, err := dataset.New(ctx, source, dataset.Metric(metric), transform)
		if err != nil {
			return errors.Wrap(err, "读取数据集错误")
		}
		loader, err := dataset.NewLoader(d, nil, dataset.LoaderConfig{BatchSize: batchSize, Workers: workers})
		if err != nil {
			return err
		}

		fout, err := os.Create(args[1])
		if err != nil {
			return errors.Wrap(err, "创建输出文件错误")
		}
		defer func() {
			_ = fout.Close()
		}()

		var enc batchEncoder
		if pretrain > 0 {
			if enc, err = pretrainExtractor(ctx, loader); err != nil {
				return err
			}
			loader.Reset()
		}

		encoded := 0
		for {
			batch, err := loader.Next(ctx)
			if err == io.EOF {
				break
			} else if err != nil {
				return errors.Wrap(err, "读取图像错误")
			}

			if enc == nil {
				if enc, err = newBatchEncoder(batch.Shape); err != nil {
					return err
				}
			}

			embeddings, err := enc.Encode(batch.Images)
			if err != nil {
				return errors.Wrap(err, "编码错误")
			}

			// 第一列为标签
			rows, _ := embeddings.Dims()
			out := core.NewMatrix(rows, enc.LatentDim()+1, nil)
			for i := 0; i < rows; i++ {
				row := out.RawRow(i)
				row[0] = batch.Labels[i]
				copy(row[1:], embeddings.RawRow(i))
			}
			if err = classify.OutputResult(out, batch.Names, fout, DefaultEmbedPrecision); err != nil {
				return errors.Wrap(err, "输出文件错误")
			}

			encoded += rows
			log.Printf("已编码%d/%d张图像", encoded, d.Len())
		}
		return nil
	},
}

// newBatchEncoder 指定了dims时使用带解码器的特征提取器，否则使用默认的两层全连接编码器
func newBatchEncoder(shape encoder.ImageShape) (batchEncoder, error) {
	var enc batchEncoder
	var err error
	if len(dims) > 0 {
		enc, err = encoder.NewExtractor(&encoder.ExtractorConfig{
			Arch:      encoder.Arch(arch),
			Dims:      dims,
			Image:     shape,
			Denoising: denoising,
			Seed:      seed,
		})
	} else {
		enc, err = encoder.New(&encoder.Config{
			Arch:        encoder.Arch(arch),
			LatentDim:   latentDim,
			Image:       shape,
			LockWeights: lockWeights,
			Denoising:   denoising,
			Seed:        seed,
		})
	}
	if err != nil {
		return nil, errors.Wrap(err, "创建编码器错误")
	}

	numParams := 0
	for _, p := range enc.Parameters() {
		r, c := p.Dims()
		numParams += r * c
	}
	log.Printf("编码器输入为%s，嵌入维度为%d，可训练参数共%d个", shape, enc.LatentDim(), numParams)
	return enc, nil
}

// pretrainExtractor 以还原主干网络特征为目标预训练全连接层
func pretrainExtractor(ctx context.Context, loader *dataset.Loader) (*encoder.Extractor, error) {
	var extractor *encoder.Extractor
	for epoch := 0; epoch < pretrain; epoch++ {
		loader.Reset()
		total, count := 0.0, 0
		for {
			batch, err := loader.Next(ctx)
			if err == io.EOF {
				break
			} else if err != nil {
				return nil, errors.Wrap(err, "读取图像错误")
			}

			if extractor == nil {
				enc, err := newBatchEncoder(batch.Shape)
				if err != nil {
					return nil, err
				}
				extractor = enc.(*encoder.Extractor)
			}
			loss, err := extractor.TrainStep(batch.Images, pretrainLr)
			if err != nil {
				return nil, errors.Wrap(err, "预训练错误")
			}
			rows, _ := batch.Images.Dims()
			total += loss * float64(rows)
			count += rows
		}
		if count == 0 {
			return nil, fmt.Errorf("数据集为空，无法预训练")
		}
		log.Printf("预训练第%d/%d轮，还原误差为%f", epoch+1, pretrain, total/float64(count))
	}
	return extractor, nil
}

// buildSource 配置了bucket时从对象存储读取，否则读取本地目录
func buildSource(location string) (dataset.Source, error) {
	bucket := viper.GetString(BucketFlag)
	if bucket == "" {
		return dataset.DirSource{Dir: location}, nil
	}

	client, err := minio.New(viper.GetString(EndpointFlag), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString(AccessKeyFlag), viper.GetString(SecretKeyFlag), ""),
		Secure: viper.GetBool(SecureFlag),
	})
	if err != nil {
		return nil, errors.Wrap(err, "创建对象存储客户端错误")
	}
	return dataset.MinioSource{
		Client: client,
		Bucket: bucket,
		Prefix: location,
	}, nil
}

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().StringVarP(&arch, ArchFlag, "a", string(encoder.VGG16),
		fmt.Sprintf("主干网络结构，可选值：%v", encoder.Archs()))
	encodeCmd.Flags().IntVarP(&latentDim, LatentDimFlag, "d", DefaultLatentDim,
		"嵌入向量维度")
	encodeCmd.Flags().StringVarP(&metric, MetricFlag, "m", string(dataset.Density),
		"标签种类，可选值：density、mhi、ed")
	encodeCmd.Flags().IntVar(&patchSize, PatchSizeFlag, 0,
		"将图像缩放到patchSize*patchSize。为0时不缩放，此时所有图像尺寸必须一致")
	encodeCmd.Flags().IntVarP(&batchSize, BatchSizeFlag, "b", DefaultEncodeBatch,
		"每批读取的图像数量")
	encodeCmd.Flags().Int64Var(&seed, SeedFlag, 0,
		"初始化编码器参数以及加入噪声使用的随机种子")
	encodeCmd.Flags().BoolVar(&lockWeights, LockWeightsFlag, true,
		"冻结主干网络参数")
	encodeCmd.Flags().BoolVar(&denoising, DenoisingFlag, false,
		"编码前给图像加入高斯噪声")
	encodeCmd.Flags().IntVar(&workers, WorkersFlag, dataset.DefaultWorkers,
		"并行解码图像的数量")
	encodeCmd.Flags().IntSliceVar(&dims, DimsFlag, nil,
		"主干网络之后各全连接层的维度，最后一个为嵌入维度。指定时使用带对称解码器的特征提取器，忽略latentDim与lockWeights")
	encodeCmd.Flags().IntVar(&pretrain, PretrainFlag, 0,
		"编码前以还原主干网络特征为目标预训练全连接层的轮次，需要指定dims")
	encodeCmd.Flags().Float64Var(&pretrainLr, PretrainLrFlag, DefaultPretrainRate,
		"预训练的学习率")
}

