package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/pkg/logger"
)

const maxRootLinks = 40

// FileWalker 顺序遍历目录树，只把普通文件交给回调。
// 任何遍历错误都会终止遍历并带上出错路径返回。
type FileWalker struct {
	IncludeHidden bool

	// EnterDir 决定是否进入目录（包括根目录），为 nil 时进入所有目录
	EnterDir func(path string) (bool, error)

	fs afero.Fs
}

func NewFileWalker(fs afero.Fs) *FileWalker {
	return &FileWalker{
		IncludeHidden: true,
		fs:            fs,
	}
}

// Walk 根目录本身是符号链接时先解析到目标目录，回调收到的是目标目录下的路径
func (w *FileWalker) Walk(ctx context.Context, root string, callback func(path string, info os.FileInfo) error) error {
	root, err := w.resolveRoot(root)
	if err != nil {
		return err
	}

	return afero.Walk(w.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return internal.NewIOError("walk", path, err)
		}
		// 只在文件之间检查取消
		if err := ctx.Err(); err != nil {
			return err
		}

		if !w.IncludeHidden && path != root && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if w.EnterDir == nil {
				return nil
			}
			enter, err := w.EnterDir(path)
			if err != nil {
				return err
			}
			if !enter {
				logger.Get().Debug().Msgf("跳过目录: %s", path)
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() {
			logger.Get().Trace().Msgf("跳过非普通文件: %s (%s)", path, info.Mode().Type())
			return nil
		}

		return callback(path, info)
	})
}

// resolveRoot 只解析路径最后一级的符号链接，中间目录的链接由系统处理。
// 文件系统不支持 Lstat 或 Readlink 时原样返回。
func (w *FileWalker) resolveRoot(root string) (string, error) {
	lstater, ok := w.fs.(afero.Lstater)
	if !ok {
		return root, nil
	}
	reader, ok := w.fs.(afero.LinkReader)
	if !ok {
		return root, nil
	}

	path := root
	for i := 0; i < maxRootLinks; i++ {
		info, lstatCalled, err := lstater.LstatIfPossible(path)
		if err != nil {
			return "", internal.NewIOError("lstat", path, err)
		}
		if !lstatCalled || info.Mode()&os.ModeSymlink == 0 {
			if path != root {
				logger.Get().Debug().Msgf("根目录是符号链接: %s -> %s", root, path)
			}
			return path, nil
		}

		target, err := reader.ReadlinkIfPossible(path)
		if err != nil {
			return "", internal.NewIOError("readlink", path, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		path = filepath.Clean(target)
	}
	return "", internal.PreconditionError("too many levels of symbolic links: %s", root)
}

// CountFiles 统计多个目录下的普通文件总数
func (w *FileWalker) CountFiles(ctx context.Context, dirs []string) (int, error) {
	logger.Get().Info().Msgf("开始统计文件数量，共 %d 个目录", len(dirs))

	count := 0
	for _, dir := range dirs {
		logger.Get().Debug().Msgf("扫描目录: %s", dir)
		err := w.Walk(ctx, dir, func(path string, info os.FileInfo) error {
			count++
			return nil
		})
		if err != nil {
			logger.Get().Error().Err(err).Msgf("扫描目录失败: %s", dir)
			return 0, err
		}
	}

	logger.Get().Info().Msgf("文件统计完成，共找到 %d 个文件", count)
	return count, nil
}
