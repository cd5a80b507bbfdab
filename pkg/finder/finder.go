package finder

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/pkg/filter"
	"github.com/moyu-x/dupfinder/pkg/hasher"
	"github.com/moyu-x/dupfinder/pkg/logger"
	"github.com/moyu-x/dupfinder/pkg/progress"
	"github.com/moyu-x/dupfinder/pkg/scanner"
)

// FileCandidate 扫描时记录的文件路径和大小
type FileCandidate struct {
	Path string
	Size int64
}

// DuplicateGroup 大小和摘要都相同的一组文件（至少两个），Paths 已排序
type DuplicateGroup struct {
	Size   int64    `json:"size"`
	Digest string   `json:"digest"`
	Paths  []string `json:"paths"`
}

type Options struct {
	// Workers 哈希并发数，非正数使用默认值
	Workers int

	// ProgressMask 每扫描 mask+1 个文件调用一次 Progress，必须是 2^k-1
	ProgressMask int

	Progress progress.Func
}

// Finder 在一次扫描中按 大小 → 前缀 → 完整摘要 逐级缩小重复文件候选。
// 同一个 Finder 不能并发调用 Find。
type Finder struct {
	fs     afero.Fs
	filter *filter.Filter
	hasher *hasher.Hasher
	opts   Options

	buckets map[int64][]string
	stats   internal.ScanStats
	log     zerolog.Logger
}

func New(fs afero.Fs, f *filter.Filter, h *hasher.Hasher, opts Options) (*Finder, error) {
	if f == nil || h == nil {
		return nil, internal.ConfigError("finder requires a filter and a hasher")
	}
	if !progress.ValidMask(opts.ProgressMask) {
		return nil, internal.ConfigError("progress mask %d is not of the form 2^k-1", opts.ProgressMask)
	}
	if opts.Workers <= 0 {
		opts.Workers = internal.DefaultWorkers
	}

	return &Finder{
		fs:      fs,
		filter:  f,
		hasher:  h,
		opts:    opts,
		buckets: make(map[int64][]string),
		log:     *logger.Get(),
	}, nil
}

// Find 扫描 root 并返回重复组，按成员数降序、大小降序、首个路径升序排列。
// 任何 I/O 错误都会中止扫描，不返回部分结果。
func (d *Finder) Find(ctx context.Context, root string) ([]DuplicateGroup, error) {
	absRoot, err := d.checkRoot(root)
	if err != nil {
		return nil, err
	}

	d.buckets = make(map[int64][]string)
	d.stats = internal.ScanStats{
		ScanID:    uuid.NewString(),
		StartTime: time.Now(),
	}
	d.log = logger.Get().With().Str("scan_id", d.stats.ScanID).Logger()
	d.log.Info().Msgf("开始扫描: %s", absRoot)

	if err := d.walk(ctx, absRoot); err != nil {
		d.log.Error().Err(err).Msg("遍历目录失败")
		return nil, err
	}
	d.stats.SizeBuckets = len(d.buckets)
	d.log.Info().
		Int("files", d.stats.FilesScanned).
		Int("buckets", d.stats.SizeBuckets).
		Msg("遍历完成")

	pool, err := hasher.NewHashPool(d.opts.Workers)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	groups, err := d.resolve(ctx, pool)
	if err != nil {
		d.log.Error().Err(err).Msg("计算重复文件失败")
		return nil, err
	}

	relevant := groups[:0]
	for _, group := range groups {
		if d.filter.IsResultRelevant(group.Paths) {
			relevant = append(relevant, group)
		}
	}
	sortGroups(relevant)

	d.stats.Groups = len(relevant)
	for _, group := range relevant {
		redundant := group.Size * int64(len(group.Paths)-1)
		if hasher.IsSizeMarker(group.Digest) {
			d.stats.UnverifiedSize += redundant
		} else {
			d.stats.DuplicateSize += redundant
		}
	}
	d.stats.EndTime = time.Now()

	d.log.Info().
		Int("groups", d.stats.Groups).
		Int("hashed", d.stats.HashedFiles).
		Int("pre_read", d.stats.PreReadFiles).
		Int("size_marked", d.stats.SizeMarked).
		Dur("duration", d.stats.EndTime.Sub(d.stats.StartTime)).
		Msg("扫描完成")

	return relevant, nil
}

// SizeDistribution 返回 成员数 → 该成员数的大小桶个数，包括只有一个文件的桶
func (d *Finder) SizeDistribution() map[int]int {
	distribution := make(map[int]int)
	for _, paths := range d.buckets {
		distribution[len(paths)]++
	}
	return distribution
}

func (d *Finder) Stats() internal.ScanStats {
	return d.stats
}

func (d *Finder) checkRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", internal.PreconditionError("cannot resolve %s: %v", root, err)
	}

	info, err := d.fs.Stat(absRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", internal.PreconditionError("root does not exist: %s", absRoot)
		}
		return "", internal.NewIOError("stat", absRoot, err)
	}
	if !info.IsDir() {
		return "", internal.PreconditionError("root is not a directory: %s", absRoot)
	}
	return absRoot, nil
}

func (d *Finder) walk(ctx context.Context, root string) error {
	walker := scanner.NewFileWalker(d.fs)
	walker.EnterDir = func(path string) (bool, error) {
		d.stats.DirsVisited++
		return d.filter.ShouldScan(path)
	}

	return walker.Walk(ctx, root, func(path string, info os.FileInfo) error {
		d.stats.FilesSeen++

		ok, err := d.filter.ShouldScan(path)
		if err != nil {
			return err
		}
		if ok {
			candidate := FileCandidate{Path: path, Size: info.Size()}
			d.buckets[candidate.Size] = append(d.buckets[candidate.Size], candidate.Path)
			d.stats.FilesScanned++
		} else {
			d.log.Trace().Msgf("过滤文件: %s", path)
		}

		if d.opts.Progress != nil && progress.Due(d.stats.FilesSeen, d.opts.ProgressMask) {
			d.opts.Progress(internal.ProgressUpdate{
				ScanID:      d.stats.ScanID,
				FilesSeen:   d.stats.FilesSeen,
				Scanned:     d.stats.FilesScanned,
				Buckets:     len(d.buckets),
				CurrentFile: path,
			})
		}
		return nil
	})
}

// resolve 对成员数 >= 2 的大小桶计算摘要并分组
func (d *Finder) resolve(ctx context.Context, pool *hasher.HashPool) ([]DuplicateGroup, error) {
	sizes := make([]int64, 0, len(d.buckets))
	for size, paths := range d.buckets {
		if len(paths) >= 2 {
			sizes = append(sizes, size)
		}
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	var (
		groups      []DuplicateGroup
		prefixTasks []hasher.HashTask
		hashTasks   []hasher.HashTask
	)

	for _, size := range sizes {
		paths := d.buckets[size]
		switch {
		case d.hasher.ExceedsHashLimit(size):
			// 超过上限只比较大小，不读取内容
			groups = append(groups, newGroup(size, hasher.SizeMarker(size), paths))
			d.stats.SizeMarked += len(paths)
		case d.hasher.NeedsPreRead(size):
			prefixTasks = appendTasks(prefixTasks, size, paths)
		default:
			hashTasks = appendTasks(hashTasks, size, paths)
		}
	}

	if len(prefixTasks) > 0 {
		results, err := pool.Prefixes(ctx, d.hasher, prefixTasks)
		if err != nil {
			return nil, err
		}
		d.stats.PreReadFiles = len(results)

		survivors := 0
		for _, cluster := range clusterResults(results) {
			if len(cluster.paths) < 2 {
				continue
			}
			hashTasks = appendTasks(hashTasks, cluster.size, cluster.paths)
			survivors += len(cluster.paths)
		}
		d.log.Debug().Msgf("预读排除 %d 个文件，剩余 %d 个需要完整哈希", len(results)-survivors, survivors)
	}

	results, err := pool.Digest(ctx, d.hasher, hashTasks)
	if err != nil {
		return nil, err
	}
	d.stats.HashedFiles = len(results)

	for _, cluster := range clusterResults(results) {
		if len(cluster.paths) >= 2 {
			groups = append(groups, newGroup(cluster.size, cluster.token, cluster.paths))
		}
	}
	return groups, nil
}

type cluster struct {
	size  int64
	token string
	paths []string
}

// clusterResults 按 (大小, 标记) 分组，保持首次出现的顺序
func clusterResults(results []hasher.HashResult) []*cluster {
	type key struct {
		size  int64
		token string
	}

	index := make(map[key]*cluster)
	var ordered []*cluster
	for _, result := range results {
		k := key{size: result.Size, token: result.Digest}
		c, ok := index[k]
		if !ok {
			c = &cluster{size: result.Size, token: result.Digest}
			index[k] = c
			ordered = append(ordered, c)
		}
		c.paths = append(c.paths, result.Path)
	}
	return ordered
}

func appendTasks(tasks []hasher.HashTask, size int64, paths []string) []hasher.HashTask {
	for _, path := range paths {
		tasks = append(tasks, hasher.HashTask{Path: path, Size: size})
	}
	return tasks
}

func newGroup(size int64, digest string, paths []string) DuplicateGroup {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	return DuplicateGroup{Size: size, Digest: digest, Paths: sorted}
}

func sortGroups(groups []DuplicateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if len(a.Paths) != len(b.Paths) {
			return len(a.Paths) > len(b.Paths)
		}
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.Paths[0] < b.Paths[0]
	})
}
