package hasher

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/pkg/logger"
)

type HashTask struct {
	Path string
	Size int64
}

type HashResult struct {
	Path   string
	Size   int64
	Digest string
	Error  error
}

// HashPool 在固定大小的 goroutine 池上批量计算摘要
type HashPool struct {
	workers int
	pool    *ants.Pool
}

func NewHashPool(workers int) (*HashPool, error) {
	if workers <= 0 {
		workers = internal.DefaultWorkers
	}
	logger.Get().Debug().Msgf("创建哈希计算池，工作线程数: %d", workers)

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("创建 goroutine 池失败: %w", err)
	}
	return &HashPool{workers: workers, pool: pool}, nil
}

func (p *HashPool) Workers() int {
	return p.workers
}

// Digest 计算每个任务的完整摘要（或大小标记），结果顺序与 tasks 一致
func (p *HashPool) Digest(ctx context.Context, h *Hasher, tasks []HashTask) ([]HashResult, error) {
	return p.run(ctx, tasks, func(task HashTask) (string, error) {
		return h.DigestOfSize(task.Path, task.Size)
	})
}

// Prefixes 计算每个任务的前缀标记，结果顺序与 tasks 一致
func (p *HashPool) Prefixes(ctx context.Context, h *Hasher, tasks []HashTask) ([]HashResult, error) {
	return p.run(ctx, tasks, func(task HashTask) (string, error) {
		return h.ReadPrefix(task.Path, task.Size)
	})
}

// run 任意任务失败即取消剩余任务，并返回第一个错误
func (p *HashPool) run(parent context.Context, tasks []HashTask, fn func(HashTask) (string, error)) ([]HashResult, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make([]HashResult, len(tasks))

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, task := range tasks {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			digest, err := fn(task)
			// 每个任务只写自己的槽位
			results[i] = HashResult{Path: task.Path, Size: task.Size, Digest: digest, Error: err}
			if err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("提交哈希任务失败: %w", err))
			break
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *HashPool) Close() {
	logger.Get().Debug().Msg("关闭哈希计算池")
	p.pool.Release()
}
