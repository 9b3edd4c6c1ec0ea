package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

var (
	ErrTileSize       = errors.New("tile size must be positive")
	ErrRasterSize     = errors.New("raster size must be positive")
	ErrRotatedRaster  = errors.New("rotated or sheared raster is not supported")
	ErrZeroResolution = errors.New("raster pixel size is zero")
)

// GDAL仿射变换参数：
// [0]左上角X, [1]像元宽, [2]旋转, [3]左上角Y, [4]旋转, [5]像元高（北向上影像为负）
type GeoTransform [6]float64

func (gt GeoTransform) Validate() error {
	if gt[2] != 0 || gt[4] != 0 {
		return ErrRotatedRaster
	}
	if gt[1] == 0 || gt[5] == 0 {
		return ErrZeroResolution
	}
	return nil
}

// 像素坐标（列,行）转地理坐标
func (gt GeoTransform) PixelToWorld(px, py float64) (x, y float64) {
	x = gt[0] + px*gt[1] + py*gt[2]
	y = gt[3] + px*gt[4] + py*gt[5]
	return
}

// 地理坐标转像素坐标，仅支持无旋转的变换
func (gt GeoTransform) WorldToPixel(x, y float64) (px, py float64) {
	px = (x - gt[0]) / gt[1]
	py = (y - gt[3]) / gt[5]
	return
}

// 以(xOff,yOff)像素为新原点的子窗口变换
func (gt GeoTransform) Shift(xOff, yOff int) GeoTransform {
	out := gt
	out[0], out[3] = gt.PixelToWorld(float64(xOff), float64(yOff))
	return out
}

// 像素窗口
type Window struct {
	XOff, YOff    int
	Width, Height int
}

func (w Window) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", w.Width, w.Height, w.XOff, w.YOff)
}

// 瓦片与掩膜共用的空间模板
type Template struct {
	Width, Height int
	GeoTransform  GeoTransform
}

// 网格单元
type Cell struct {
	Index    int // 从1开始的顺序编号
	Row, Col int
	Window   Window
	Bounds   geom.Bounds
}

// 单元的空间模板只取决于单元窗口与影像分辨率
func (c Cell) Template(gt GeoTransform) Template {
	return Template{
		Width:        c.Window.Width,
		Height:       c.Window.Height,
		GeoTransform: gt.Shift(c.Window.XOff, c.Window.YOff),
	}
}

func (c Cell) String() string {
	return fmt.Sprintf("cell#%d(r%d,c%d,%s)", c.Index, c.Row, c.Col, c.Window)
}

// 窗口在地理坐标下的外包框
func WindowBounds(gt GeoTransform, w Window) geom.Bounds {
	x0, y0 := gt.PixelToWorld(float64(w.XOff), float64(w.YOff))
	x1, y1 := gt.PixelToWorld(float64(w.XOff+w.Width), float64(w.YOff+w.Height))
	return geom.Bounds{
		Min: geom.Point{X: math.Min(x0, x1), Y: math.Min(y0, y1)},
		Max: geom.Point{X: math.Max(x0, x1), Y: math.Max(y0, y1)},
	}
}

// Generate tiles a width×height raster into n×n pixel cells anchored at the
// raster origin, in row-major order from the top row. Right and bottom edge
// cells are clipped to the raster. Indices start at 1.
func Generate(gt GeoTransform, width, height, n int) (cells []Cell, err error) {
	if n <= 0 {
		err = ErrTileSize
		return
	}
	if width <= 0 || height <= 0 {
		err = ErrRasterSize
		return
	}
	if err = gt.Validate(); err != nil {
		return
	}
	rows := (height + n - 1) / n
	cols := (width + n - 1) / n
	cells = make([]Cell, 0, rows*cols)
	idx := 1
	for r := 0; r < rows; r++ {
		yOff := r * n
		h := min(n, height-yOff)
		for c := 0; c < cols; c++ {
			xOff := c * n
			w := Window{XOff: xOff, YOff: yOff, Width: min(n, width-xOff), Height: h}
			cells = append(cells, Cell{
				Index:  idx,
				Row:    r,
				Col:    c,
				Window: w,
				Bounds: WindowBounds(gt, w),
			})
			idx++
		}
	}
	return
}

// 按编号挑选单元，未知编号返回在missing中
func Pick(cells []Cell, indices []int) (picked []Cell, missing []int) {
	if len(indices) == 0 {
		return cells, nil
	}
	want := make(map[int]bool, len(indices))
	for _, i := range indices {
		want[i] = true
	}
	for _, c := range cells {
		if want[c.Index] {
			picked = append(picked, c)
			delete(want, c.Index)
		}
	}
	for _, i := range indices {
		if want[i] {
			missing = append(missing, i)
			delete(want, i)
		}
	}
	return
}
