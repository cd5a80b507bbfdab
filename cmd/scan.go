package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/internal/app"
	"github.com/moyu-x/dupfinder/pkg/config"
	"github.com/moyu-x/dupfinder/pkg/report"
)

var scanCmd = &cobra.Command{
	Use:   "scan <root>",
	Short: "查找目录中的重复文件",
	Long: `递归遍历根目录，按大小分桶，再通过前缀和完整哈希确认内容相同的文件。
结果按组内文件数降序输出到标准输出，日志输出到标准错误。`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	folderPairs, _ := cmd.Flags().GetBool("folder-pairs")
	sizeDistribution, _ := cmd.Flags().GetBool("size-distribution")
	top, _ := cmd.Flags().GetInt("top")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()
	result, err := app.RunScan(ctx, &app.ScanOptions{
		Root:             args[0],
		Config:           cfg,
		FolderPairs:      folderPairs,
		SizeDistribution: sizeDistribution,
		Fs:               fs,
	})
	if err != nil {
		return err
	}

	printer := report.NewPrinter(cmd.OutOrStdout(), fs)
	printer.Top = top
	printer.Groups(result.Groups)
	if folderPairs {
		printer.FolderPairs(result.FolderPairs)
	}
	if sizeDistribution {
		printer.SizeDistribution(result.SizeDistribution)
	}
	printer.Stats(result.Stats, result.Algorithm)
	return nil
}

func init() {
	scanCmd.Flags().String("whitelist", "", "只扫描匹配该 glob 的文件，支持 **")
	scanCmd.Flags().String("blacklist", "", "跳过匹配该 glob 的文件")
	scanCmd.Flags().String("result-whitelist", "", "只输出至少有一个路径匹配该 glob 的重复组")
	scanCmd.Flags().String("min-size", "", "最小文件大小，如 1KiB")
	scanCmd.Flags().String("max-size", "", "最大文件大小，如 10MB")
	scanCmd.Flags().String("algorithm", internal.DefaultAlgorithm, "哈希算法: xxhash, crc32, md5, sha1, sha256, sha512")
	scanCmd.Flags().String("max-hash-size", "0", "超过该大小的文件只比较大小，0 表示不限制")
	scanCmd.Flags().String("pre-read-min-size", "1MiB", "不小于该大小的文件先比较前缀")
	scanCmd.Flags().String("pre-read-bytes", "4KiB", "前缀比较读取的字节数，0 表示关闭")
	scanCmd.Flags().IntP("workers", "w", internal.DefaultWorkers, "哈希并发数")
	scanCmd.Flags().Int("progress-mask", internal.DefaultProgressMask, "每 mask+1 个文件输出一次进度，必须是 2^k-1")
	scanCmd.Flags().BoolP("folder-pairs", "p", false, "统计文件夹对之间的重复文件数")
	scanCmd.Flags().IntP("top", "n", 0, "只输出前 N 项，0 表示全部")
	scanCmd.Flags().Bool("size-distribution", false, "输出大小桶的成员数分布")

	rootCmd.AddCommand(scanCmd)
}
