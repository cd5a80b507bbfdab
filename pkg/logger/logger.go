package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var Logger *zerolog.Logger

// Init 初始化 zerolog 日志
// level: 日志级别 ("trace", "debug", "info", "warn", "error")
// file: 日志文件路径，为空时仅输出到控制台（stderr，stdout 留给扫描结果）
func Init(level string, file string) error {
	return InitWithWriter(level, file, os.Stderr)
}

// InitWithWriter 与 Init 相同，但控制台输出写入 console
func InitWithWriter(level string, file string, console io.Writer) error {
	output := io.Writer(zerolog.ConsoleWriter{Out: console, TimeFormat: "2006-01-02 15:04:05"})

	if file != "" {
		fileWriter, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		// 文件中保留 JSON 格式，便于后续检索
		output = zerolog.MultiLevelWriter(output, fileWriter)
	}

	logger := zerolog.New(output).With().Timestamp().Logger().Level(ParseLevel(level))
	Logger = &logger
	return nil
}

// ParseLevel 解析日志级别，未知级别回退到 info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var nop = zerolog.Nop()

// Get 未调用 Init 时返回丢弃所有输出的 logger，不修改 Logger，
// 因此在哈希池的 goroutine 中调用也是安全的
func Get() *zerolog.Logger {
	if Logger == nil {
		return &nop
	}
	return Logger
}
