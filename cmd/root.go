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
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 对象存储
const (
	BucketFlag    = "bucket"
	EndpointFlag  = "endpoint"
	AccessKeyFlag = "access-key"
	SecretKeyFlag = "secret-key"
	SecureFlag    = "secure"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deepcluster",
	Short: "基于深度嵌入聚类（DEC）的图像无监督分类工具",
	Long: "deepcluster使用预训练主干网络将图像编码为嵌入向量，再通过Student's t分布计算软分配，\n" +
		"并用辅助目标分布自训练聚类中心。除命令行工具外，还提供在线分配与定时自训练的服务器。\n",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件（默认为$HOME/.deepcluster.yaml）")

	// 对象存储的参数对所有读取数据集的命令生效
	rootCmd.PersistentFlags().String(BucketFlag, "", "对象存储的桶名称。为空时从本地目录读取")
	rootCmd.PersistentFlags().String(EndpointFlag, "", "对象存储服务地址，格式为：host:port")
	rootCmd.PersistentFlags().String(AccessKeyFlag, "", "对象存储的Access Key")
	rootCmd.PersistentFlags().String(SecretKeyFlag, "", "对象存储的Secret Key")
	rootCmd.PersistentFlags().Bool(SecureFlag, false, "使用HTTPS连接对象存储")
	for _, flag := range []string{BucketFlag, EndpointFlag, AccessKeyFlag, SecretKeyFlag, SecureFlag} {
		_ = viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".deepcluster" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".deepcluster")
	}

	viper.SetEnvPrefix("DEEPCLUSTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
