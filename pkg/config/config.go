package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/pkg/filter"
	"github.com/moyu-x/dupfinder/pkg/hasher"
)

// 大小字段都是字符串，支持 "10MB"、"1KiB"、"4096" 等写法，空值表示不限制
type Config struct {
	Scan struct {
		Whitelist       string `mapstructure:"whitelist"`
		Blacklist       string `mapstructure:"blacklist"`
		ResultWhitelist string `mapstructure:"result_whitelist"`
		MinSize         string `mapstructure:"min_size"`
		MaxSize         string `mapstructure:"max_size"`
	} `mapstructure:"scan"`
	Hash struct {
		Algorithm      string `mapstructure:"algorithm"`
		MaxHashSize    string `mapstructure:"max_hash_size"`
		MinPreReadSize string `mapstructure:"min_pre_read_size"`
		PreReadBytes   string `mapstructure:"pre_read_bytes"`
	} `mapstructure:"hash"`
	Performance struct {
		Workers      int `mapstructure:"workers"`
		ProgressMask int `mapstructure:"progress_mask"`
	} `mapstructure:"performance"`
	Logging struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"logging"`
}

// flagBindings 配置项 → 命令行参数名
var flagBindings = map[string]string{
	"scan.whitelist":            "whitelist",
	"scan.blacklist":            "blacklist",
	"scan.result_whitelist":     "result-whitelist",
	"scan.min_size":             "min-size",
	"scan.max_size":             "max-size",
	"hash.algorithm":            "algorithm",
	"hash.max_hash_size":        "max-hash-size",
	"hash.min_pre_read_size":    "pre-read-min-size",
	"hash.pre_read_bytes":       "pre-read-bytes",
	"performance.workers":       "workers",
	"performance.progress_mask": "progress-mask",
	"logging.level":             "log-level",
	"logging.file":              "log-file",
}

// Load 按 命令行参数 > 环境变量(DUPFINDER_*) > 配置文件 > 默认值 的顺序合并配置。
// cfgFile 为空时在默认目录中查找 config.yaml，找不到不算错误。
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.dupfinder")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dupfinder")
	}

	v.SetEnvPrefix("DUPFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("scan.whitelist", "")
	v.SetDefault("scan.blacklist", "")
	v.SetDefault("scan.result_whitelist", "")
	v.SetDefault("scan.min_size", "")
	v.SetDefault("scan.max_size", "")
	v.SetDefault("hash.algorithm", internal.DefaultAlgorithm)
	v.SetDefault("hash.max_hash_size", fmt.Sprint(internal.DefaultMaxHashSize))
	v.SetDefault("hash.min_pre_read_size", fmt.Sprint(internal.DefaultMinPreReadSize))
	v.SetDefault("hash.pre_read_bytes", fmt.Sprint(internal.DefaultPreReadBytes))
	v.SetDefault("performance.workers", internal.DefaultWorkers)
	v.SetDefault("performance.progress_mask", internal.DefaultProgressMask)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")

	if flags != nil {
		for key, name := range flagBindings {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("绑定参数 %s 失败: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: 读取配置文件失败: %v", internal.ErrConfiguration, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: 解析配置失败: %v", internal.ErrConfiguration, err)
	}
	return &cfg, nil
}

// FilterConfig 转换为路径过滤器配置
func (c *Config) FilterConfig() (filter.Config, error) {
	minSize, err := ParseSize("scan.min_size", c.Scan.MinSize)
	if err != nil {
		return filter.Config{}, err
	}
	maxSize, err := ParseSize("scan.max_size", c.Scan.MaxSize)
	if err != nil {
		return filter.Config{}, err
	}
	return filter.Config{
		Whitelist:       c.Scan.Whitelist,
		Blacklist:       c.Scan.Blacklist,
		ResultWhitelist: c.Scan.ResultWhitelist,
		MinSize:         minSize,
		MaxSize:         maxSize,
	}, nil
}

// HashConfig 转换为哈希器配置
func (c *Config) HashConfig() (hasher.Config, error) {
	maxHashSize, err := ParseSize("hash.max_hash_size", c.Hash.MaxHashSize)
	if err != nil {
		return hasher.Config{}, err
	}
	minPreReadSize, err := ParseSize("hash.min_pre_read_size", c.Hash.MinPreReadSize)
	if err != nil {
		return hasher.Config{}, err
	}
	preReadBytes, err := ParseSize("hash.pre_read_bytes", c.Hash.PreReadBytes)
	if err != nil {
		return hasher.Config{}, err
	}
	return hasher.Config{
		Algorithm:      c.Hash.Algorithm,
		MaxHashSize:    maxHashSize,
		MinPreReadSize: minPreReadSize,
		PreReadBytes:   preReadBytes,
	}, nil
}

// ParseSize 解析带单位的大小，空字符串返回 0
func ParseSize(key, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, internal.ConfigError("invalid size for %s: %q", key, value)
	}
	if size > 1<<62 {
		return 0, internal.ConfigError("size for %s is too large: %q", key, value)
	}
	return int64(size), nil
}
