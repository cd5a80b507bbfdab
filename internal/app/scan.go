package app

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/pkg/config"
	"github.com/moyu-x/dupfinder/pkg/filter"
	"github.com/moyu-x/dupfinder/pkg/finder"
	"github.com/moyu-x/dupfinder/pkg/folderpair"
	"github.com/moyu-x/dupfinder/pkg/hasher"
	"github.com/moyu-x/dupfinder/pkg/logger"
	"github.com/moyu-x/dupfinder/pkg/progress"
	"github.com/moyu-x/dupfinder/pkg/scanner"
)

type ScanOptions struct {
	Root             string
	Config           *config.Config
	FolderPairs      bool
	SizeDistribution bool

	// Fs 为 nil 时使用真实文件系统
	Fs afero.Fs
}

type ScanResult struct {
	Groups           []finder.DuplicateGroup
	FolderPairs      map[folderpair.Key]int
	SizeDistribution map[int]int
	Stats            internal.ScanStats
	Algorithm        hasher.Algorithm
}

func RunScan(ctx context.Context, opts *ScanOptions) (*ScanResult, error) {
	if opts.Config == nil {
		return nil, internal.ConfigError("scan requires a configuration")
	}
	cfg := opts.Config

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	logger.Get().Info().Msg("加载配置完成")

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	filterCfg, err := cfg.FilterConfig()
	if err != nil {
		return nil, err
	}
	pathFilter, err := filter.New(fs, filterCfg)
	if err != nil {
		return nil, err
	}

	hashCfg, err := cfg.HashConfig()
	if err != nil {
		return nil, err
	}
	contentHasher, err := hasher.New(fs, hashCfg)
	if err != nil {
		return nil, err
	}

	logger.Get().Info().Msgf("哈希算法: %s", contentHasher.Algorithm())
	logger.Get().Info().Msgf("并发数: %d", cfg.Performance.Workers)

	tracker := progress.NewTracker()
	f, err := finder.New(fs, pathFilter, contentHasher, finder.Options{
		Workers:      cfg.Performance.Workers,
		ProgressMask: cfg.Performance.ProgressMask,
		Progress:     tracker.Report,
	})
	if err != nil {
		return nil, err
	}

	groups, err := f.Find(ctx, opts.Root)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		Groups:    groups,
		Stats:     f.Stats(),
		Algorithm: contentHasher.Algorithm(),
	}
	if opts.FolderPairs {
		result.FolderPairs = folderpair.CountByFolderPair(groups)
		logger.Get().Debug().Msgf("重复文件对数: %d", folderpair.Total(result.FolderPairs))
	}
	if opts.SizeDistribution {
		result.SizeDistribution = f.SizeDistribution()
	}
	return result, nil
}

// RunCount 统计多个目录下的普通文件总数
func RunCount(ctx context.Context, fs afero.Fs, dirs []string) (int, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return scanner.NewFileWalker(fs).CountFiles(ctx, dirs)
}
