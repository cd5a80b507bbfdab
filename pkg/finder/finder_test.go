package finder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyu-x/dupfinder/internal"
	"github.com/moyu-x/dupfinder/pkg/filter"
	"github.com/moyu-x/dupfinder/pkg/hasher"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	}
}

func newTestFinder(t *testing.T, fs afero.Fs, fc filter.Config, hc hasher.Config, opts Options) *Finder {
	t.Helper()
	f, err := filter.New(fs, fc)
	require.NoError(t, err)
	h, err := hasher.New(fs, hc)
	require.NoError(t, err)
	d, err := New(fs, f, h, opts)
	require.NoError(t, err)
	return d
}

// groupSet 忽略顺序，便于比较两次扫描的结果
func groupSet(groups []DuplicateGroup) map[string]bool {
	set := make(map[string]bool)
	for _, group := range groups {
		set[fmt.Sprintf("%d|%s", group.Size, strings.Join(group.Paths, ","))] = true
	}
	return set
}

func assertGroupInvariants(t *testing.T, fs afero.Fs, groups []DuplicateGroup) {
	t.Helper()
	for _, group := range groups {
		assert.GreaterOrEqual(t, len(group.Paths), 2, "group %+v", group)
		assert.NotEmpty(t, group.Digest)
		for _, path := range group.Paths {
			info, err := fs.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, group.Size, info.Size(), path)
		}
	}
}

func TestFind_ThreeOfFourSameSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/data/a.txt":     "0123456789",
		"/data/b.txt":     "0123456789",
		"/data/sub/c.txt": "0123456789",
		"/data/d.txt":     "abcdefghij",
		"/data/e.txt":     "01234567890123456789",
	})

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{}, Options{})
	groups, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, int64(10), groups[0].Size)
	assert.Equal(t, []string{"/data/a.txt", "/data/b.txt", "/data/sub/c.txt"}, groups[0].Paths)
	assertGroupInvariants(t, fs, groups)

	stats := d.Stats()
	assert.Equal(t, 5, stats.FilesSeen)
	assert.Equal(t, 5, stats.FilesScanned)
	assert.Equal(t, 4, stats.HashedFiles, "the unique 20-byte file must never be hashed")
	assert.Equal(t, int64(20), stats.DuplicateSize)
	assert.Equal(t, int64(0), stats.UnverifiedSize)
	assert.NotEmpty(t, stats.ScanID)
}

func TestFind_SizeMarkerAboveHashLimit(t *testing.T) {
	fs := afero.NewMemMapFs()
	same := strings.Repeat("a", 2048)
	writeFiles(t, fs, map[string]string{
		"/data/big1":  same,
		"/data/big2":  same,
		"/data/big3":  strings.Repeat("b", 2048),
		"/data/small": "x",
	})

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{MaxHashSize: 1024}, Options{})
	groups, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, hasher.SizeMarker(2048), groups[0].Digest)
	assert.Equal(t, []string{"/data/big1", "/data/big2", "/data/big3"}, groups[0].Paths)
	assert.Equal(t, 3, d.Stats().SizeMarked)
	assert.Equal(t, 0, d.Stats().HashedFiles)
	assert.Equal(t, int64(0), d.Stats().DuplicateSize, "size-marked groups are never counted as reclaimable")
	assert.Equal(t, int64(2*2048), d.Stats().UnverifiedSize)
}

func TestFind_SizeMarkerNeverReadsContent(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFiles(t, base, map[string]string{
		"/data/big1": strings.Repeat("a", 100),
		"/data/big2": strings.Repeat("a", 100),
	})
	fs := &failingFs{Fs: base, failOpen: map[string]bool{"/data/big1": true, "/data/big2": true}}

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{
		MaxHashSize:    50,
		MinPreReadSize: 10,
		PreReadBytes:   8,
	}, Options{})
	groups, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.True(t, hasher.IsSizeMarker(groups[0].Digest))
}

func TestFind_BlacklistTmp(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/data/keep1.txt":    "same content",
		"/data/keep2.txt":    "same content",
		"/data/copy.tmp":     "same content",
		"/data/sub/copy.tmp": "same content",
		"/data/x.tmp":        "other stuff!",
		"/data/sub/y.tmp":    "other stuff!",
	})

	d := newTestFinder(t, fs, filter.Config{Blacklist: "**/*.tmp"}, hasher.Config{}, Options{})
	groups, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"/data/keep1.txt", "/data/keep2.txt"}, groups[0].Paths)
	for _, group := range groups {
		for _, path := range group.Paths {
			assert.False(t, strings.HasSuffix(path, ".tmp"), path)
		}
	}
}

func TestFind_PreReadIsTransparent(t *testing.T) {
	fs := afero.NewMemMapFs()
	head := strings.Repeat("H", 16)
	files := map[string]string{
		// 前缀相同、内容相同
		"/data/a1": head + strings.Repeat("x", 84),
		"/data/a2": head + strings.Repeat("x", 84),
		"/data/a3": head + strings.Repeat("x", 84),
		// 前缀相同、尾部不同
		"/data/b1": head + strings.Repeat("y", 84),
		// 前缀不同、内容相同
		"/data/c1": strings.Repeat("C", 100),
		"/data/c2": strings.Repeat("C", 100),
		// 前缀不同、唯一
		"/data/d1": strings.Repeat("D", 100),
		// 小文件不预读
		"/data/s1": "small",
		"/data/s2": "small",
	}
	writeFiles(t, fs, files)

	withPreRead := newTestFinder(t, fs, filter.Config{}, hasher.Config{MinPreReadSize: 50, PreReadBytes: 8}, Options{})
	groupsA, err := withPreRead.Find(context.Background(), "/data")
	require.NoError(t, err)

	withoutPreRead := newTestFinder(t, fs, filter.Config{}, hasher.Config{MinPreReadSize: 1 << 30, PreReadBytes: 8}, Options{})
	groupsB, err := withoutPreRead.Find(context.Background(), "/data")
	require.NoError(t, err)

	assert.Equal(t, groupSet(groupsB), groupSet(groupsA))
	assert.Equal(t, groupsB, groupsA)
	require.Len(t, groupsA, 3)

	assert.Equal(t, 7, withPreRead.Stats().PreReadFiles)
	assert.Equal(t, 8, withPreRead.Stats().HashedFiles, "d1 is excluded by its prefix")
	assert.Equal(t, 0, withoutPreRead.Stats().PreReadFiles)
	assert.Equal(t, 9, withoutPreRead.Stats().HashedFiles)
}

func TestFind_PreReadUsesOnlyPrefixForMismatches(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFiles(t, base, map[string]string{
		"/data/a": "AAAA" + strings.Repeat("z", 96),
		"/data/b": "BBBB" + strings.Repeat("z", 96),
	})
	fs := &failingFs{Fs: base}

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{MinPreReadSize: 10, PreReadBytes: 4}, Options{})
	groups, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Equal(t, 0, d.Stats().HashedFiles)
	assert.Equal(t, int32(2), fs.opens.Load(), "each file is opened once for the prefix only")
}

func TestFind_Idempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := make(map[string]string)
	for i := 0; i < 30; i++ {
		files[fmt.Sprintf("/data/dir%d/file%d.bin", i%4, i)] = strings.Repeat(fmt.Sprint(i%6), 10+i%3)
	}
	writeFiles(t, fs, files)

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{Algorithm: "sha256"}, Options{Workers: 3})
	first, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)
	second, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
	assertGroupInvariants(t, fs, first)
}

func TestFind_SortedByMemberCount(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/data/pair1": "pp",
		"/data/pair2": "pp",
		"/data/big1":  "bigger-pair",
		"/data/big2":  "bigger-pair",
		"/data/tri1":  "t",
		"/data/tri2":  "t",
		"/data/tri3":  "t",
	})

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{}, Options{})
	groups, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Len(t, groups[0].Paths, 3)
	assert.Equal(t, int64(11), groups[1].Size)
	assert.Equal(t, int64(2), groups[2].Size)
}

func TestFind_FilteredFilesNeverAppear(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/data/a.jpg":  "photo",
		"/data/b.jpg":  "photo",
		"/data/c.png":  "photo",
		"/data/tiny1":  "p",
		"/data/tiny2":  "p",
		"/data/huge1":  strings.Repeat("h", 1000),
		"/data/huge2":  strings.Repeat("h", 1000),
		"/data/d.jpeg": "photo",
	})

	d := newTestFinder(t, fs, filter.Config{Whitelist: "*.jpg", MinSize: 2, MaxSize: 100}, hasher.Config{}, Options{})
	groups, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"/data/a.jpg", "/data/b.jpg"}, groups[0].Paths)
	assert.Equal(t, 8, d.Stats().FilesSeen)
	assert.Equal(t, 2, d.Stats().FilesScanned)
}

func TestFind_ResultWhitelist(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/data/photos/a.jpg": "one",
		"/data/backup/a.jpg": "one",
		"/data/backup/b.txt": "two!",
		"/data/backup/c.txt": "two!",
	})

	d := newTestFinder(t, fs, filter.Config{ResultWhitelist: "/data/photos/**"}, hasher.Config{}, Options{})
	groups, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"/data/backup/a.jpg", "/data/photos/a.jpg"}, groups[0].Paths)
}

func TestFind_SizeDistribution(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/data/a": "1",
		"/data/b": "22",
		"/data/c": "33",
		"/data/d": "444",
		"/data/e": "555",
		"/data/f": "666",
		"/data/g": "7777",
	})

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{}, Options{})
	_, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)

	assert.Equal(t, map[int]int{1: 2, 2: 1, 3: 1}, d.SizeDistribution())
	assert.Equal(t, 4, d.Stats().SizeBuckets)
}

func TestFind_Progress(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := make(map[string]string)
	for i := 0; i < 40; i++ {
		files[fmt.Sprintf("/data/f%02d", i)] = fmt.Sprint(i)
	}
	writeFiles(t, fs, files)

	var seen []int
	report := func(update internal.ProgressUpdate) {
		seen = append(seen, update.FilesSeen)
	}

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{}, Options{ProgressMask: 7, Progress: report})
	withProgress, err := d.Find(context.Background(), "/data")
	require.NoError(t, err)
	assert.Equal(t, []int{8, 16, 24, 32, 40}, seen)

	quiet := newTestFinder(t, fs, filter.Config{}, hasher.Config{}, Options{})
	withoutProgress, err := quiet.Find(context.Background(), "/data")
	require.NoError(t, err)
	assert.Equal(t, withoutProgress, withProgress)
}

func TestNew_InvalidProgressMask(t *testing.T) {
	fs := afero.NewMemMapFs()
	f, err := filter.New(fs, filter.Config{})
	require.NoError(t, err)
	h, err := hasher.New(fs, hasher.Config{})
	require.NoError(t, err)

	_, err = New(fs, f, h, Options{ProgressMask: 1000})
	assert.ErrorIs(t, err, internal.ErrConfiguration)

	_, err = New(fs, nil, h, Options{})
	assert.ErrorIs(t, err, internal.ErrConfiguration)
}

func TestFind_Preconditions(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/data/file.txt": "x"})

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{}, Options{})

	_, err := d.Find(context.Background(), "/missing")
	assert.ErrorIs(t, err, internal.ErrPrecondition)

	_, err = d.Find(context.Background(), "/data/file.txt")
	assert.ErrorIs(t, err, internal.ErrPrecondition)
}

func TestFind_UnreadableFileAbortsScan(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFiles(t, base, map[string]string{
		"/data/a": "same",
		"/data/b": "same",
		"/data/c": "same",
	})
	fs := &failingFs{Fs: base, failOpen: map[string]bool{"/data/b": true}}

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{}, Options{})
	groups, err := d.Find(context.Background(), "/data")
	require.Error(t, err)
	assert.Nil(t, groups)
	assert.ErrorIs(t, err, internal.ErrIO)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "/data/b")
}

func TestFind_Cancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/data/a": "x", "/data/b": "x"})

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Find(ctx, "/data")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFind_OsFs(t *testing.T) {
	tempDir := t.TempDir()
	content := bytes.Repeat([]byte("duplicate content "), 100)

	for _, name := range []string{"one.bin", "nested/two.bin", "nested/deeper/three.bin"} {
		path := filepath.Join(tempDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(tempDir, "unique.bin"), []byte("unique"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	fs := afero.NewOsFs()
	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{
		Algorithm:      "sha1",
		MinPreReadSize: 64,
		PreReadBytes:   32,
	}, Options{Workers: 2})

	groups, err := d.Find(context.Background(), tempDir)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Paths) != 3 {
		t.Errorf("Expected 3 duplicates, got %v", groups[0].Paths)
	}
	if !strings.HasPrefix(groups[0].Digest, "sha1:") {
		t.Errorf("Expected sha1 digest, got %s", groups[0].Digest)
	}
}

func TestFind_SymlinkedRoot(t *testing.T) {
	tempDir := t.TempDir()

	realDir := filepath.Join(tempDir, "real")
	require.NoError(t, os.MkdirAll(realDir, 0755))
	for _, name := range []string{"a", "b"} {
		require.NoError(t, os.WriteFile(filepath.Join(realDir, name), []byte("same content"), 0644))
	}
	link := filepath.Join(tempDir, "link")
	if err := os.Symlink(realDir, link); err != nil {
		t.Skipf("Skipping symlink test: %v", err)
	}

	fs := afero.NewOsFs()
	direct, err := newTestFinder(t, fs, filter.Config{}, hasher.Config{}, Options{}).Find(context.Background(), realDir)
	require.NoError(t, err)
	require.Len(t, direct, 1)

	d := newTestFinder(t, fs, filter.Config{}, hasher.Config{}, Options{})
	linked, err := d.Find(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, direct, linked)
	assert.Equal(t, 2, d.Stats().FilesScanned)
}

// failingFs 对指定路径的 Open 返回权限错误，并统计普通文件的打开次数
type failingFs struct {
	afero.Fs
	failOpen map[string]bool
	opens    atomic.Int32
}

func (f *failingFs) Open(name string) (afero.File, error) {
	if f.failOpen[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	file, err := f.Fs.Open(name)
	if err == nil {
		if info, statErr := file.Stat(); statErr == nil && !info.IsDir() {
			f.opens.Add(1)
		}
	}
	return file, err
}

func (f *failingFs) Name() string { return "failingFs" }
