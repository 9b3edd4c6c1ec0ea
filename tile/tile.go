package tile

import (
	"errors"
	"fmt"
	"math"

	"github.com/wgdzlh/segtile/grid"
)

var (
	ErrBandIndex    = errors.New("band index out of range")
	ErrWindow       = errors.New("window outside raster")
	ErrShortRead    = errors.New("raster read returned wrong sample count")
	ErrTemplateSize = errors.New("buffer size does not match template")
)

// 影像元数据（不加载像素）
type Meta struct {
	Width, Height int
	Bands         int
	GeoTransform  grid.GeoTransform
	Projection    string // WKT
	DataType      string
}

// Source is a raster reference: metadata is available without touching pixels,
// and ReadWindow materializes one window for the given 1-based bands. It must
// be safe for concurrent use.
type Source interface {
	Meta() Meta
	ReadWindow(w grid.Window, bands []int) ([][]float64, error)
}

// 已读入内存的影像窗口
type Materialized struct {
	Template grid.Template
	Bands    [][]float64
}

// 8位输出瓦片
type Tile struct {
	Template grid.Template
	Bands    [][]uint8
}

// 校验并补全波段列表，空列表表示全部波段
func ResolveBands(meta Meta, bands []int) ([]int, error) {
	if len(bands) == 0 {
		out := make([]int, meta.Bands)
		for i := range out {
			out[i] = i + 1
		}
		return out, nil
	}
	for _, b := range bands {
		if b < 1 || b > meta.Bands {
			return nil, fmt.Errorf("%w: %d (raster has %d)", ErrBandIndex, b, meta.Bands)
		}
	}
	return bands, nil
}

// Materialize reads the cell window of src for the given bands.
func Materialize(src Source, cell grid.Cell, bands []int) (m *Materialized, err error) {
	meta := src.Meta()
	if bands, err = ResolveBands(meta, bands); err != nil {
		return
	}
	w := cell.Window
	if w.XOff < 0 || w.YOff < 0 || w.Width <= 0 || w.Height <= 0 ||
		w.XOff+w.Width > meta.Width || w.YOff+w.Height > meta.Height {
		err = fmt.Errorf("%w: %s", ErrWindow, w)
		return
	}
	data, err := src.ReadWindow(w, bands)
	if err != nil {
		return
	}
	n := w.Width * w.Height
	if len(data) != len(bands) {
		err = fmt.Errorf("%w: %d bands for %d requested", ErrShortRead, len(data), len(bands))
		return
	}
	for i := range data {
		if len(data[i]) != n {
			err = fmt.Errorf("%w: band %d has %d samples, want %d", ErrShortRead, bands[i], len(data[i]), n)
			return
		}
	}
	m = &Materialized{
		Template: cell.Template(meta.GeoTransform),
		Bands:    data,
	}
	return
}

// 量化为8位：四舍五入并截断到[0,255]，NaN记为0
func Quantize(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.Round(v))
}

func (m *Materialized) Quantize() *Tile {
	t := &Tile{
		Template: m.Template,
		Bands:    make([][]uint8, len(m.Bands)),
	}
	for i, band := range m.Bands {
		out := make([]uint8, len(band))
		for j, v := range band {
			out[j] = Quantize(v)
		}
		t.Bands[i] = out
	}
	return t
}

// Extract crops the cell out of src, restricted to bands, as an 8-bit tile.
func Extract(src Source, cell grid.Cell, bands []int) (t *Tile, err error) {
	m, err := Materialize(src, cell, bands)
	if err != nil {
		return
	}
	t = m.Quantize()
	return
}
