package internal

const (
	// 配置文件默认路径
	DefaultConfigPath = "~/.dupfinder/config.yaml"

	// 哈希计算的默认并发数
	DefaultWorkers = 4

	// 默认哈希算法
	DefaultAlgorithm = "xxhash"

	// 每 (mask+1) 个文件输出一次进度，mask 必须是 2^k-1
	DefaultProgressMask = 1023

	// 超过该大小的文件只比较大小，不读取内容（0 表示不限制）
	DefaultMaxHashSize = 0

	// 大于等于该大小的文件先预读前缀
	DefaultMinPreReadSize = 1 << 20

	// 预读字节数
	DefaultPreReadBytes = 4096

	// 文件类型检测所需的文件头部大小（字节）
	FileHeaderSize = 261
)
