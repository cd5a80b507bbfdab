package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/moyu-x/dupfinder/pkg/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dupfinder",
	Short: "一个按内容查找重复文件的工具",
	Long: `DupFinder 是一个命令行工具，用于找出目录树中内容完全相同的文件。

主要功能:
- 按路径 glob 白名单/黑名单和文件大小过滤文件
- 先按大小分桶，只对可能重复的文件计算哈希
- 大文件先比较开头若干字节，减少完整读取
- 支持 xxhash、crc32、md5、sha1、sha256、sha512
- 统计重复文件在文件夹之间的分布

只读取文件，不会修改或删除任何内容。`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// 日志未初始化时（如配置错误）直接输出到 stderr
		if logger.Logger == nil {
			rootCmd.PrintErrln("Error:", err)
		} else {
			logger.Get().Error().Err(err).Msg("执行失败")
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件 (默认查找 $HOME/.dupfinder/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "日志级别: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "日志文件路径（JSON 格式）")
}
