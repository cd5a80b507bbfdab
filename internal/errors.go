package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration 配置错误：非法 glob、未知算法、冲突的大小限制
	ErrConfiguration = errors.New("configuration error")

	// ErrIO 扫描、预读或哈希时的 I/O 失败
	ErrIO = errors.New("io failure")

	// ErrPrecondition 扫描根目录不存在或不是目录
	ErrPrecondition = errors.New("precondition violation")
)

// IOError 带路径的 I/O 错误，errors.Is 同时匹配 ErrIO 和底层错误
type IOError struct {
	Op   string
	Path string
	Err  error
}

func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// ConfigError 构造一个包装 ErrConfiguration 的错误
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// PreconditionError 构造一个包装 ErrPrecondition 的错误
func PreconditionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}
