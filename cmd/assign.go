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
	"fmt"
	"log"
	"os"

	"github.com/packagewjx/deepcluster/internal/classify"
	"github.com/packagewjx/deepcluster/internal/dec"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const TargetFlag = "target"

var (
	target             bool
	assignAlpha        float64
	assignRemoveColumn []int
)

// assignCmd represents the assign command
var assignCmd = &cobra.Command{
	Use:   "assign centerFile dataFile outputFile",
	Short: "使用给定的聚类中心计算每个样本的软分配，或者辅助目标分布",
	Long: "centerFile每行一个聚类中心，没有名称列。dataFile的第一列为名称。\n" +
		"输出格式为：名称,类别,q_0,...,q_{K-1}。指定target时输出目标分布p而不是q。\n",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 3 {
			return fmt.Errorf("参数错误")
		} else if args[1] == args[2] || args[0] == args[2] {
			return fmt.Errorf("输入文件与outputFile不能一致")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Println("读取聚类中心中")
		centerFile, err := os.Open(args[0])
		if err != nil {
			return errors.Wrap(err, "打开聚类中心文件错误")
		}
		centers, err := classify.NewDataLoader(classify.CSV).Load(centerFile, -1, nil)
		_ = centerFile.Close()
		if err != nil {
			return errors.Wrap(err, "读取聚类中心错误")
		}
		if centers.Data.IsEmpty() {
			return fmt.Errorf("聚类中心文件为空")
		}
		k, dim := centers.Data.Dims()

		table, err := loadTable(args[1], assignRemoveColumn)
		if err != nil {
			return err
		}

		assignment, err := dec.NewClusterAssignment(k, dim, assignAlpha, centers.Data, nil)
		if err != nil {
			return err
		}
		q, err := assignment.Assign(table.Data)
		if err != nil {
			return errors.Wrap(err, "计算软分配错误")
		}
		if target {
			q = dec.TargetDistribution(q)
		}

		return writeAssignment(args[2], table.Names, q)
	},
}

func init() {
	rootCmd.AddCommand(assignCmd)

	assignCmd.Flags().BoolVarP(&target, TargetFlag, "t", false,
		"输出辅助目标分布")
	assignCmd.Flags().Float64Var(&assignAlpha, AlphaFlag, dec.DefaultAlpha,
		"Student's t分布的自由度")
	assignCmd.Flags().IntSliceVarP(&assignRemoveColumn, RemoveColumnFlag, "r", []int{1},
		"需要移除的列号，从0开始计算，第0列为名称")
	assignCmd.Flags().IntVarP(&outputPrecision, OutputPrecisionFlag, "p", DefaultOutputPrecision,
		"输出文件数据精度")
}
