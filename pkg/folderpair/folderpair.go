package folderpair

import (
	"path/filepath"

	"github.com/moyu-x/dupfinder/pkg/finder"
)

// Key 一对无序的目录，First <= Second。两者相同表示同一目录内的重复。
// 只能通过 NewKey 构造，才能保证 (a, b) 与 (b, a) 是同一个 key。
type Key struct {
	First  string
	Second string
}

func NewKey(a, b string) Key {
	if b < a {
		a, b = b, a
	}
	return Key{First: a, Second: b}
}

// SameFolder 两个文件是否在同一目录
func (k Key) SameFolder() bool {
	return k.First == k.Second
}

// CountByFolderPair 每个含 M 个文件的重复组贡献 M*(M-1)/2 次计数，
// 每对文件计入它们所在目录组成的 key。结果不排序。
func CountByFolderPair(groups []finder.DuplicateGroup) map[Key]int {
	counts := make(map[Key]int)
	for _, group := range groups {
		folders := make([]string, len(group.Paths))
		for i, path := range group.Paths {
			folders[i] = filepath.Dir(path)
		}
		for i := 0; i < len(folders); i++ {
			for j := i + 1; j < len(folders); j++ {
				counts[NewKey(folders[i], folders[j])]++
			}
		}
	}
	return counts
}

// Total 所有目录对的计数之和
func Total(counts map[Key]int) int {
	total := 0
	for _, count := range counts {
		total += count
	}
	return total
}
