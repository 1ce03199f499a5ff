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
	"os"

	"github.com/packagewjx/deepcluster/internal/preprocess"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const MethodFlag = "method"

var method string

// preprocessCmd represents the preprocess command
var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "嵌入向量预处理工具",
}

// normalizeCmd represents the normalize command
var normalizeCmd = &cobra.Command{
	Use:   "normalize infile outfile",
	Short: "将嵌入向量标准化，第一列为名称",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("参数错误")
		} else if args[0] == args[1] {
			return fmt.Errorf("infile与outfile不能一致")
		}
		if preprocess.Get(preprocess.Method(method)) == nil {
			return fmt.Errorf("不支持的预处理方法：%s", method)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		fin, err := os.Open(args[0])
		if err != nil {
			return errors.Wrap(err, "打开输入文件错误")
		}
		defer func() {
			_ = fin.Close()
		}()
		fout, err := os.Create(args[1])
		if err != nil {
			return errors.Wrap(err, "创建输出文件错误")
		}
		defer func() {
			_ = fout.Close()
		}()

		return preprocess.NormalizeEmbeddings(fin, fout, preprocess.Get(preprocess.Method(method)))
	},
}

func init() {
	rootCmd.AddCommand(preprocessCmd)
	preprocessCmd.AddCommand(normalizeCmd)

	normalizeCmd.Flags().StringVarP(&method, MethodFlag, "m", string(preprocess.MethodDefault),
		"预处理方法，可选值：standardize、l2、default（先standardize再l2）")
}
