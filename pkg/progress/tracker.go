package progress

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/pkg/logger"
)

// Func 进度回调，在扫描 goroutine 中同步调用，不能修改扫描状态
type Func func(update internal.ProgressUpdate)

// ValidMask mask 必须是 2^k-1 的形式，才能用 count&mask == 0 判断
func ValidMask(mask int) bool {
	return mask >= 0 && mask&(mask+1) == 0
}

// Due 是否应该在第 count 个文件时输出进度
func Due(count, mask int) bool {
	return count&mask == 0
}

// Tracker 记录最近一次进度并写日志
type Tracker struct {
	mu      sync.RWMutex
	start   time.Time
	updates int
	last    internal.ProgressUpdate
}

func NewTracker() *Tracker {
	return &Tracker{start: time.Now()}
}

// Report 可作为 Func 使用
func (t *Tracker) Report(update internal.ProgressUpdate) {
	t.mu.Lock()
	t.updates++
	t.last = update
	elapsed := time.Since(t.start)
	t.mu.Unlock()

	rate := 0.0
	if seconds := elapsed.Seconds(); seconds > 0 {
		rate = float64(update.FilesSeen) / seconds
	}

	logger.Get().Info().
		Str("scan_id", update.ScanID).
		Str("seen", humanize.Comma(int64(update.FilesSeen))).
		Int("scanned", update.Scanned).
		Int("buckets", update.Buckets).
		Float64("files_per_sec", rate).
		Msg("扫描进度")
	logger.Get().Debug().Msgf("当前文件: %s", update.CurrentFile)
}

// GetUpdateCount 获取已收到的进度次数
func (t *Tracker) GetUpdateCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updates
}

// Last 最近一次进度
func (t *Tracker) Last() internal.ProgressUpdate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}
