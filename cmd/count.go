package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/moyu-x/dupfinder/internal/app"
	"github.com/moyu-x/dupfinder/pkg/config"
	"github.com/moyu-x/dupfinder/pkg/logger"
)

var countCmd = &cobra.Command{
	Use:   "count <directories...>",
	Short: "统计目录中的普通文件数量",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		count, err := app.RunCount(ctx, nil, args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), humanize.Comma(int64(count)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(countCmd)
}
