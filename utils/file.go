package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	FILE_EXT_SHP     = ".shp"
	FILE_EXT_CPG     = ".cpg"
	FILE_EXT_GEOJSON = ".geojson"
	FILE_EXT_JSON    = ".json"
	FILE_EXT_GPKG    = ".gpkg"
	FILE_EXT_TIF     = ".tif"

	TILE_DIR  = "tiles"
	MASK_DIR  = "masks"
	TILE_NAME = "tile_%06d"
	MASK_NAME = TILE_NAME + "_M"

	STAGING_SUFFIX = ".tmp"

	UTF8  = "UTF8"
	UTF_8 = "UTF-8"
)

var (
	ErrEmptyPath = errors.New("empty path")
)

// 瓦片文件路径：<out>/tiles/tile_000001.tif
func TilePath(outDir string, idx int, ext string) string {
	return filepath.Join(outDir, TILE_DIR, fmt.Sprintf(TILE_NAME, idx)+ext)
}

// 掩膜文件路径：<out>/masks/tile_000001_M.tif
func MaskPath(outDir string, idx int, ext string) string {
	return filepath.Join(outDir, MASK_DIR, fmt.Sprintf(MASK_NAME, idx)+ext)
}

// 创建输出目录结构
func PrepareOutDirs(outDir string) (err error) {
	if outDir == "" {
		return ErrEmptyPath
	}
	for _, sub := range []string{TILE_DIR, MASK_DIR} {
		if err = os.MkdirAll(filepath.Join(outDir, sub), os.ModePerm); err != nil {
			return
		}
	}
	return
}

// 同目录下的唯一临时文件名，保留扩展名以便驱动识别
func StagingPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + uuid.NewString() + STAGING_SUFFIX + ext
}

// 将临时文件改名为目标文件，失败时清理临时文件
func Commit(staging, path string) (err error) {
	if err = os.Rename(staging, path); err != nil {
		os.Remove(staging)
	}
	return
}

// 先写入临时文件再改名，保证目标文件要么完整要么不存在
func WriteFileAtomic(path string, write func(f *os.File) error) (err error) {
	if path == "" {
		return ErrEmptyPath
	}
	staging := StagingPath(path)
	f, err := os.Create(staging)
	if err != nil {
		return
	}
	if err = write(f); err != nil {
		f.Close()
		os.Remove(staging)
		return
	}
	if err = f.Close(); err != nil {
		os.Remove(staging)
		return
	}
	return Commit(staging, path)
}

// 判断shp同名cpg文件声明的编码是否为UTF-8，无cpg文件时返回ok=false
func ShpIsUtf8(shp string) (utf8, ok bool) {
	if !strings.HasSuffix(strings.ToLower(shp), FILE_EXT_SHP) {
		return
	}
	enc, err := os.ReadFile(strings.TrimSuffix(shp, filepath.Ext(shp)) + FILE_EXT_CPG)
	if err != nil || len(enc) == 0 {
		return
	}
	encStr := strings.ToUpper(strings.TrimSpace(string(enc)))
	return encStr == UTF_8 || encStr == UTF8, true
}
