package internal

import "time"

// 扫描统计
type ScanStats struct {
	ScanID        string
	FilesSeen     int
	FilesScanned  int
	DirsVisited   int
	SizeBuckets   int
	PreReadFiles  int
	HashedFiles   int
	SizeMarked    int
	Groups        int
	DuplicateSize int64

	// 只按大小标记分组、未比较内容的重复空间，不计入 DuplicateSize
	UnverifiedSize int64
	StartTime      time.Time
	EndTime        time.Time
}

// 进度更新
type ProgressUpdate struct {
	ScanID      string
	FilesSeen   int
	Scanned     int
	Buckets     int
	CurrentFile string
}
