package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"hash/crc32"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/pkg/logger"
)

// Algorithm 支持的哈希算法
type Algorithm int

const (
	XXHash Algorithm = iota
	CRC32
	MD5
	SHA1
	SHA256
	SHA512
)

var algorithmNames = [...]string{
	XXHash: "xxhash",
	CRC32:  "crc32",
	MD5:    "md5",
	SHA1:   "sha1",
	SHA256: "sha256",
	SHA512: "sha512",
}

// Algorithms 返回全部算法名称
func Algorithms() []string {
	return append([]string(nil), algorithmNames[:]...)
}

func (a Algorithm) String() string {
	if a < 0 || int(a) >= len(algorithmNames) {
		return "Algorithm(" + strconv.Itoa(int(a)) + ")"
	}
	return algorithmNames[a]
}

// ParseAlgorithm 按名称查找算法，不区分大小写
func ParseAlgorithm(name string) (Algorithm, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "")
	switch normalized {
	case "xxhash", "xxh64":
		return XXHash, nil
	case "crc32":
		return CRC32, nil
	case "md5":
		return MD5, nil
	case "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	case "sha512":
		return SHA512, nil
	default:
		return 0, internal.ConfigError("unsupported hash algorithm %q", name)
	}
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case CRC32:
		return crc32.NewIEEE()
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case SHA512:
		return sha512.New()
	default:
		return xxhash.New()
	}
}

// Config 哈希配置，非正数表示关闭对应功能
type Config struct {
	Algorithm      string
	MaxHashSize    int64
	MinPreReadSize int64
	PreReadBytes   int64
}

type Hasher struct {
	fs             afero.Fs
	algorithm      Algorithm
	maxHashSize    int64
	minPreReadSize int64
	preReadBytes   int64
}

func New(fs afero.Fs, cfg Config) (*Hasher, error) {
	name := cfg.Algorithm
	if name == "" {
		name = internal.DefaultAlgorithm
	}
	algorithm, err := ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}

	logger.Get().Debug().
		Stringer("algorithm", algorithm).
		Int64("max_hash_size", cfg.MaxHashSize).
		Int64("min_pre_read_size", cfg.MinPreReadSize).
		Int64("pre_read_bytes", cfg.PreReadBytes).
		Msg("创建内容哈希器")

	return &Hasher{
		fs:             fs,
		algorithm:      algorithm,
		maxHashSize:    cfg.MaxHashSize,
		minPreReadSize: cfg.MinPreReadSize,
		preReadBytes:   cfg.PreReadBytes,
	}, nil
}

func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// ExceedsHashLimit 超过上限的文件不读取内容，只用大小标记代替摘要
func (h *Hasher) ExceedsHashLimit(size int64) bool {
	return h.maxHashSize > 0 && size > h.maxHashSize
}

// NeedsPreRead 文件是否先比较前缀。前缀能覆盖整个文件时直接做完整哈希。
func (h *Hasher) NeedsPreRead(size int64) bool {
	return h.preReadBytes > 0 && h.minPreReadSize > 0 &&
		size >= h.minPreReadSize && size > h.preReadBytes &&
		!h.ExceedsHashLimit(size)
}

// SizeMarker 大小标记，与任何内容摘要都不会相同
func SizeMarker(size int64) string {
	return "size:" + strconv.FormatInt(size, 10)
}

// IsSizeMarker 判断摘要是否为大小标记
func IsSizeMarker(digest string) bool {
	return strings.HasPrefix(digest, "size:")
}

// CalculateDigest 计算文件摘要，超过上限时返回大小标记
func (h *Hasher) CalculateDigest(path string) (string, error) {
	info, err := h.fs.Stat(path)
	if err != nil {
		return "", internal.NewIOError("stat", path, err)
	}
	return h.DigestOfSize(path, info.Size())
}

// DigestOfSize 与 CalculateDigest 相同，但使用扫描时记录的大小
func (h *Hasher) DigestOfSize(path string, size int64) (string, error) {
	if h.ExceedsHashLimit(size) {
		logger.Get().Trace().Msgf("文件超过哈希上限，使用大小标记: %s (%d bytes)", path, size)
		return SizeMarker(size), nil
	}

	logger.Get().Trace().Msgf("计算文件哈希: %s", path)

	file, err := h.fs.Open(path)
	if err != nil {
		return "", internal.NewIOError("open", path, err)
	}
	defer file.Close()

	digest := h.algorithm.newHash()
	if _, err := io.Copy(digest, file); err != nil {
		return "", internal.NewIOError("hash", path, err)
	}

	result := h.algorithm.String() + ":" + hex.EncodeToString(digest.Sum(nil))
	logger.Get().Trace().Msgf("文件哈希计算完成: %s -> %s", path, result)
	return result, nil
}

// ReadPrefix 读取文件开头 min(PreReadBytes, size) 字节，返回前缀的 xxhash 标记。
// size 是扫描时记录的大小。标记碰撞只会让候选文件多做一次完整哈希，不影响结果。
func (h *Hasher) ReadPrefix(path string, size int64) (string, error) {
	if h.preReadBytes <= 0 {
		return "", nil
	}

	file, err := h.fs.Open(path)
	if err != nil {
		return "", internal.NewIOError("open", path, err)
	}
	defer file.Close()

	buf := make([]byte, min(h.preReadBytes, max(size, 0)))
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", internal.NewIOError("pre-read", path, err)
	}
	return strconv.FormatUint(xxhash.Sum64(buf[:n]), 16), nil
}
