package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"
	"github.com/spf13/afero"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/pkg/finder"
	"github.com/moyu-x/dupfinder/pkg/folderpair"
	"github.com/moyu-x/dupfinder/pkg/hasher"
)

// Printer 把扫描结果渲染到终端，日志走 stderr，结果走 out
type Printer struct {
	out io.Writer
	fs  afero.Fs

	// Top 只输出前 Top 项，非正数表示全部输出
	Top int
}

func NewPrinter(out io.Writer, fs afero.Fs) *Printer {
	return &Printer{out: out, fs: fs}
}

// PairCount 一个文件夹对及其重复文件对数
type PairCount struct {
	Key   folderpair.Key
	Count int
}

// RankFolderPairs 按计数降序排列，计数相同时按路径升序
func RankFolderPairs(counts map[folderpair.Key]int) []PairCount {
	ranked := make([]PairCount, 0, len(counts))
	for key, count := range counts {
		ranked = append(ranked, PairCount{Key: key, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Key.First != b.Key.First {
			return a.Key.First < b.Key.First
		}
		return a.Key.Second < b.Key.Second
	})
	return ranked
}

// DetectType 根据文件头判断类型，无法识别或读取失败时返回 "unknown"
func DetectType(fs afero.Fs, path string) string {
	file, err := fs.Open(path)
	if err != nil {
		return filetype.Unknown.Extension
	}
	defer file.Close()

	header := make([]byte, internal.FileHeaderSize)
	n, _ := io.ReadFull(file, header)

	kind, err := filetype.Match(header[:n])
	if err != nil || kind == filetype.Unknown {
		return filetype.Unknown.Extension
	}
	return kind.Extension
}

func (p *Printer) Groups(groups []finder.DuplicateGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(p.out, hintStyle.Render("没有发现重复文件"))
		return
	}

	fmt.Fprintln(p.out, titleStyle.Render(fmt.Sprintf("重复文件组 (%d)", len(groups))))
	shown := p.limit(len(groups))
	for i, group := range groups[:shown] {
		// 超过哈希上限的文件不读取内容，也不识别类型
		digest, kind := group.Digest, "-"
		if hasher.IsSizeMarker(digest) {
			digest += " (未比较内容)"
		} else {
			kind = DetectType(p.fs, group.Paths[0])
		}
		fmt.Fprintf(p.out, "%s %s × %d  %s  %s\n",
			labelStyle.Render(fmt.Sprintf("[%d]", i+1)),
			humanize.IBytes(uint64(group.Size)),
			len(group.Paths),
			kind,
			hintStyle.Render(digest),
		)
		for _, path := range group.Paths {
			fmt.Fprintf(p.out, "    %s\n", filePathStyle.Render(path))
		}
	}
	p.more(len(groups) - shown)
}

func (p *Printer) FolderPairs(counts map[folderpair.Key]int) {
	fmt.Fprintln(p.out, titleStyle.Render(fmt.Sprintf("文件夹对 (%d)", len(counts))))
	if len(counts) == 0 {
		fmt.Fprintln(p.out, hintStyle.Render("没有重复文件对"))
		return
	}

	ranked := RankFolderPairs(counts)
	shown := p.limit(len(ranked))
	for _, pair := range ranked[:shown] {
		if pair.Key.SameFolder() {
			fmt.Fprintf(p.out, "%6s  %s\n", humanize.Comma(int64(pair.Count)), filePathStyle.Render(pair.Key.First))
			continue
		}
		fmt.Fprintf(p.out, "%6s  %s %s %s\n",
			humanize.Comma(int64(pair.Count)),
			filePathStyle.Render(pair.Key.First),
			separatorStyle.Render("<->"),
			filePathStyle.Render(pair.Key.Second),
		)
	}
	p.more(len(ranked) - shown)
}

// SizeDistribution 按成员数升序输出
func (p *Printer) SizeDistribution(distribution map[int]int) {
	fmt.Fprintln(p.out, titleStyle.Render("大小桶分布"))

	members := make([]int, 0, len(distribution))
	for m := range distribution {
		members = append(members, m)
	}
	sort.Ints(members)

	for _, m := range members {
		fmt.Fprintf(p.out, "%6d 个文件: %s 个桶\n", m, humanize.Comma(int64(distribution[m])))
	}
}

func (p *Printer) Stats(stats internal.ScanStats, algorithm hasher.Algorithm) {
	lines := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("扫描 ID:"), stats.ScanID),
		fmt.Sprintf("%s %s", labelStyle.Render("哈希算法:"), algorithm),
		fmt.Sprintf("%s %s / %s", labelStyle.Render("文件(扫描/发现):"),
			humanize.Comma(int64(stats.FilesScanned)), humanize.Comma(int64(stats.FilesSeen))),
		fmt.Sprintf("%s %s", labelStyle.Render("大小桶:"), humanize.Comma(int64(stats.SizeBuckets))),
		fmt.Sprintf("%s %s", labelStyle.Render("完整哈希:"), humanize.Comma(int64(stats.HashedFiles))),
		fmt.Sprintf("%s %d", labelStyle.Render("重复组:"), stats.Groups),
		fmt.Sprintf("%s %s", labelStyle.Render("可释放空间:"), humanize.IBytes(uint64(stats.DuplicateSize))),
		fmt.Sprintf("%s %s", labelStyle.Render("未比较内容:"), humanize.IBytes(uint64(stats.UnverifiedSize))),
		fmt.Sprintf("%s %v", labelStyle.Render("耗时:"), stats.EndTime.Sub(stats.StartTime).Round(time.Millisecond)),
	}
	fmt.Fprintln(p.out, statsBoxStyle.Render(strings.Join(lines, "\n")))
}

func (p *Printer) limit(n int) int {
	if p.Top > 0 && p.Top < n {
		return p.Top
	}
	return n
}

func (p *Printer) more(hidden int) {
	if hidden > 0 {
		fmt.Fprintln(p.out, hintStyle.Render(fmt.Sprintf("... 还有 %d 项未显示", hidden)))
	}
}
