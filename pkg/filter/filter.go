package filter

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/pkg/logger"
)

// Config 过滤条件，空字符串或非正数表示不限制
type Config struct {
	Whitelist       string
	Blacklist       string
	ResultWhitelist string
	MinSize         int64
	MaxSize         int64
}

// Filter 决定文件是否参与扫描，以及重复组是否保留在结果中。
// 构造后只读，可在多个 goroutine 中使用。
type Filter struct {
	fs              afero.Fs
	whitelist       *pattern
	blacklist       *pattern
	resultWhitelist *pattern
	minSize         int64
	maxSize         int64
}

func New(fs afero.Fs, cfg Config) (*Filter, error) {
	whitelist, err := compile("whitelist", cfg.Whitelist)
	if err != nil {
		return nil, err
	}
	blacklist, err := compile("blacklist", cfg.Blacklist)
	if err != nil {
		return nil, err
	}
	resultWhitelist, err := compile("result whitelist", cfg.ResultWhitelist)
	if err != nil {
		return nil, err
	}

	if cfg.MinSize > 0 && cfg.MaxSize > 0 && cfg.MinSize > cfg.MaxSize {
		return nil, internal.ConfigError("min size %d is greater than max size %d", cfg.MinSize, cfg.MaxSize)
	}

	logger.Get().Debug().
		Str("whitelist", cfg.Whitelist).
		Str("blacklist", cfg.Blacklist).
		Str("result_whitelist", cfg.ResultWhitelist).
		Int64("min_size", cfg.MinSize).
		Int64("max_size", cfg.MaxSize).
		Msg("创建路径过滤器")

	return &Filter{
		fs:              fs,
		whitelist:       whitelist,
		blacklist:       blacklist,
		resultWhitelist: resultWhitelist,
		minSize:         cfg.MinSize,
		maxSize:         cfg.MaxSize,
	}, nil
}

// ShouldScan 每次调用都重新读取文件元数据。目录总是返回 true，
// 非普通文件（符号链接、设备等）返回 false。
func (f *Filter) ShouldScan(path string) (bool, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return false, internal.NewIOError("stat", path, err)
	}
	if info.IsDir() {
		return true, nil
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	if f.whitelist != nil && !f.whitelist.match(path) {
		return false, nil
	}
	if f.blacklist != nil && f.blacklist.match(path) {
		return false, nil
	}

	size := info.Size()
	if f.minSize > 0 && size < f.minSize {
		return false, nil
	}
	if f.maxSize > 0 && size > f.maxSize {
		return false, nil
	}
	return true, nil
}

// IsResultRelevant 未配置结果白名单，或至少一个路径匹配时返回 true
func (f *Filter) IsResultRelevant(paths []string) bool {
	if f.resultWhitelist == nil {
		return true
	}
	for _, path := range paths {
		if f.resultWhitelist.match(path) {
			return true
		}
	}
	return false
}

type pattern struct {
	expr     string
	baseOnly bool
}

func compile(name, expr string) (*pattern, error) {
	if expr == "" {
		return nil, nil
	}
	expr = filepath.ToSlash(expr)
	if !doublestar.ValidatePattern(expr) {
		return nil, internal.ConfigError("invalid %s glob %q", name, expr)
	}
	return &pattern{
		expr:     expr,
		baseOnly: !strings.Contains(expr, "/"),
	}, nil
}

// match 依次尝试绝对路径、去掉前导分隔符的路径，
// 不含 "/" 的模式额外匹配文件名
func (p *pattern) match(path string) bool {
	slashed := filepath.ToSlash(path)
	if p.matchOne(slashed) {
		return true
	}
	if trimmed := strings.TrimLeft(slashed, "/"); trimmed != slashed && p.matchOne(trimmed) {
		return true
	}
	if p.baseOnly {
		return p.matchOne(filepath.Base(path))
	}
	return false
}

func (p *pattern) matchOne(name string) bool {
	// 模式已在构造时校验，这里不会返回 ErrBadPattern
	ok, _ := doublestar.Match(p.expr, name)
	return ok
}
