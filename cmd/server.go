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
	"github.com/packagewjx/deepcluster/internal/dec"
	"github.com/packagewjx/deepcluster/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	FlagPort           = "port"
	FlagNumClusters    = "clusters"
	FlagEmbeddingDim   = "dim"
	FlagAlpha          = "alpha"
	FlagSeed           = "seed"
	FlagRefineTime     = "refine-time"
	FlagMaxIter        = "max-iter"
	FlagUpdateInterval = "update-interval"
	FlagTol            = "tol"
	FlagLearningRate   = "learning-rate"
	FlagCenterFile     = "center-file"
	FlagMysqlHost      = "mysql-host"
)

// 配置文件与环境变量中的键为server.<flag>，环境变量为DEEPCLUSTER_SERVER_<FLAG>
const serverConfigPrefix = "server."

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "深度嵌入聚类服务器",
	Long: "用户通过接口提交样本的嵌入向量，服务器使用当前的聚类中心返回软分配与类别，并保存样本。\n" +
		"服务器每天定时（通过refine-time设置）使用全部样本自训练聚类中心，并更新所有样本的类别，\n" +
		"也可以通过接口手动触发。用户可以通过本服务器提供的接口获取样本属于哪个类别的数据。\n",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := server.NewServer(&server.ServerConfig{
			Port:                 uint16(viper.GetUint(serverConfigPrefix + FlagPort)),
			NumClusters:          viper.GetUint(serverConfigPrefix + FlagNumClusters),
			EmbeddingDim:         viper.GetUint(serverConfigPrefix + FlagEmbeddingDim),
			Alpha:                viper.GetFloat64(serverConfigPrefix + FlagAlpha),
			Seed:                 viper.GetInt64(serverConfigPrefix + FlagSeed),
			RefineTime:           viper.GetDuration(serverConfigPrefix + FlagRefineTime),
			MaxIter:              viper.GetUint(serverConfigPrefix + FlagMaxIter),
			UpdateInterval:       viper.GetUint(serverConfigPrefix + FlagUpdateInterval),
			Tol:                  viper.GetFloat64(serverConfigPrefix + FlagTol),
			LearningRate:         viper.GetFloat64(serverConfigPrefix + FlagLearningRate),
			InitialCenterCsvFile: viper.GetString(serverConfigPrefix + FlagCenterFile),
			MysqlHost:            viper.GetString(serverConfigPrefix + FlagMysqlHost),
		})
		if err != nil {
			return err
		}

		return server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().Uint16P(FlagPort, "p", server.DefaultPort,
		"服务端口号")
	serverCmd.Flags().UintP(FlagNumClusters, "c", server.DefaultNumClusters,
		"聚类类别数量")
	serverCmd.Flags().UintP(FlagEmbeddingDim, "d", server.DefaultEmbeddingDim,
		"嵌入向量维度")
	serverCmd.Flags().Float64(FlagAlpha, dec.DefaultAlpha,
		"Student's t分布的自由度")
	serverCmd.Flags().Int64(FlagSeed, 0,
		"随机初始化聚类中心以及自训练使用的随机种子")
	serverCmd.Flags().DurationP(FlagRefineTime, "t", server.DefaultRefineTime,
		"每天定时自训练的时间，值应该小于24小时")
	serverCmd.Flags().Uint(FlagMaxIter, dec.DefaultMaxIter,
		"自训练最大轮次")
	serverCmd.Flags().Uint(FlagUpdateInterval, dec.DefaultUpdateInterval,
		"每隔多少轮更新一次目标分布")
	serverCmd.Flags().Float64(FlagTol, dec.DefaultTol,
		"硬分配变化比例低于此值时停止自训练")
	serverCmd.Flags().Float64(FlagLearningRate, dec.DefaultLearningRate,
		"聚类中心的学习率")
	serverCmd.Flags().StringP(FlagCenterFile, "f", "",
		"初始中心文件。若不为空，则启动时将会读取此文件作为聚类中心，并替换数据库中的中心。若为空，则使用数据库中的中心")
	serverCmd.Flags().String(FlagMysqlHost, "",
		"Mysql服务器主机端口，格式为：host:port。若为空，则读取环境变量MYSQL_SERVICE_HOST与MYSQL_SERVICE_PORT取得")

	serverCmd.Flags().VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(serverConfigPrefix+flag.Name, flag)
	})
}
