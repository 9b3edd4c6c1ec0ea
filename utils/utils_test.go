package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePositiveInts(t *testing.T) {
	got, err := ParsePositiveInts(" 3, 2,1 ")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, got)

	got, err = ParsePositiveInts("4-6,9")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5, 6, 9}, got)

	got, err = ParsePositiveInts("")
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{"0", "a", "5-2", "1,,2", "-3"} {
		_, err = ParsePositiveInts(bad)
		assert.ErrorIs(t, err, ErrBadIndexList, bad)
	}
}

func TestUniqInts(t *testing.T) {
	assert.Equal(t, []int{1, 4, 7}, UniqInts([]int{7, 1, 4, 7, 1}))
	assert.Equal(t, "1,4,7", IntsToStr([]int{1, 4, 7}, ','))
}

func TestOutputPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "tiles", "tile_000007.tif"), TilePath("out", 7, FILE_EXT_TIF))
	assert.Equal(t, filepath.Join("out", "masks", "tile_000123_M.tif"), MaskPath("out", 123, FILE_EXT_TIF))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classes.csv")

	require.NoError(t, WriteFileAtomic(path, func(f *os.File) error {
		_, err := f.WriteString("label,id\n")
		return err
	}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "label,id\n", string(b))

	boom := errors.New("boom")
	err = WriteFileAtomic(path, func(f *os.File) error {
		f.WriteString("partial")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "label,id\n", string(b), "failed write must keep the previous file")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging file must be cleaned up")
}

func TestShpIsUtf8(t *testing.T) {
	dir := t.TempDir()
	shp := filepath.Join(dir, "labels.shp")
	_, ok := ShpIsUtf8(shp)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.cpg"), []byte("UTF-8\n"), 0o644))
	utf8, ok := ShpIsUtf8(shp)
	assert.True(t, ok)
	assert.True(t, utf8)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.cpg"), []byte("GBK"), 0o644))
	utf8, ok = ShpIsUtf8(shp)
	assert.True(t, ok)
	assert.False(t, utf8)
}

func TestLabelText(t *testing.T) {
	gbk, err := Utf8StrToGbk("橡树")
	require.NoError(t, err)
	back, err := GbkStrToUtf8(gbk)
	require.NoError(t, err)
	assert.Equal(t, "橡树", back)

	// 组合重音符与预组合字符归一为同一标签
	assert.Equal(t, "\u00e9rable", NormalizeLabel(" e\u0301rable\x00 "))
}
