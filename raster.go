package segtile

import (
	"fmt"
	"os"

	"github.com/wgdzlh/segtile/grid"
	"github.com/wgdzlh/segtile/log"
	"github.com/wgdzlh/segtile/tile"
	"github.com/wgdzlh/segtile/utils"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// 影像引用：只保存路径与元数据，读取窗口时才打开数据集
type RasterRef struct {
	path   string
	meta   tile.Meta
	logTag string
}

// 打开影像并读取元数据（不读取像素）
func (g *GdalToolbox) OpenRaster(tif string) (ref *RasterRef, err error) {
	ds, err := gdal.Open(tif, gdal.ReadOnly)
	if err != nil {
		log.Error(g.logTag+"open tif failed", zap.String("tif", tif), zap.Error(err))
		err = fmt.Errorf("%w: %s: %v", ErrInvalidTif, tif, err)
		return
	}
	defer ds.Close()
	meta := tile.Meta{
		Width:        ds.RasterXSize(),
		Height:       ds.RasterYSize(),
		Bands:        ds.RasterCount(),
		GeoTransform: grid.GeoTransform(ds.GeoTransform()),
		Projection:   ds.Projection(),
	}
	if meta.Bands == 0 || meta.Width == 0 || meta.Height == 0 {
		err = fmt.Errorf("%w: %s", ErrEmptyTif, tif)
		return
	}
	if meta.Projection == "" {
		err = fmt.Errorf("%w: %s", ErrVoidSrs, tif)
		return
	}
	if err = meta.GeoTransform.Validate(); err != nil {
		err = fmt.Errorf("%s: %w", tif, err)
		return
	}
	meta.DataType = ds.RasterBand(1).RasterDataType().Name()
	log.Info(g.logTag+"raster opened", zap.String("tif", tif), zap.Int("width", meta.Width), zap.Int("height", meta.Height),
		zap.Int("bands", meta.Bands), zap.String("dt", meta.DataType), zap.Float64s("gt", meta.GeoTransform[:]))
	ref = &RasterRef{path: tif, meta: meta, logTag: g.logTag}
	return
}

func (r *RasterRef) Meta() tile.Meta {
	return r.meta
}

func (r *RasterRef) Path() string {
	return r.path
}

// ReadWindow reads the window of the given 1-based bands as float64. Every
// call opens its own dataset handle so concurrent reads never share one.
func (r *RasterRef) ReadWindow(w grid.Window, bands []int) (buf [][]float64, err error) {
	ds, err := gdal.Open(r.path, gdal.ReadOnly)
	if err != nil {
		log.Error(r.logTag+"open tif failed", zap.String("tif", r.path), zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrInvalidTif, err)
		return
	}
	defer ds.Close()
	buf = make([][]float64, len(bands))
	for i, b := range bands {
		if b < 1 || b > r.meta.Bands {
			err = fmt.Errorf("%w: %d", tile.ErrBandIndex, b)
			return
		}
		buf[i] = make([]float64, w.Width*w.Height)
		if err = ds.RasterBand(b).IO(gdal.Read, w.XOff, w.YOff, w.Width, w.Height, buf[i], w.Width, w.Height, 0, 0); err != nil {
			log.Error(r.logTag+"read tif band failed", zap.Int("band", b), zap.Stringer("window", w), zap.Error(err))
			err = fmt.Errorf("%w: band %d %s: %v", ErrTifReadFailed, b, w, err)
			return
		}
	}
	return
}

// 8位GTiff输出
type GTiffWriter struct {
	Compression string
	logTag      string
}

func (g *GdalToolbox) NewGTiffWriter(compression string) *GTiffWriter {
	if compression == "" {
		compression = DEFAULT_COMPRESSION
	}
	return &GTiffWriter{Compression: compression, logTag: g.logTag}
}

func (w *GTiffWriter) Ext() string {
	return utils.FILE_EXT_TIF
}

// 先写入同目录临时文件，关闭后再改名为目标文件
func (w *GTiffWriter) WriteRaster(path string, tpl grid.Template, projection string, bands [][]uint8) (err error) {
	if len(bands) == 0 {
		return ErrEmptyTif
	}
	size := tpl.Width * tpl.Height
	for i, b := range bands {
		if len(b) != size {
			return fmt.Errorf("%w: band %d has %d pixels, want %d", ErrWrongBufferSize, i+1, len(b), size)
		}
	}
	driver, err := gdal.GetDriverByName(GTIFF_DRIVER_NAME)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGdalDriverCreate, err)
	}
	staging := utils.StagingPath(path)
	ds := driver.Create(staging, tpl.Width, tpl.Height, len(bands), gdal.Byte,
		[]string{COMPRESS_OPTION + w.Compression, STRIPED_OPTION})
	closed := false
	defer func() {
		if !closed {
			ds.Close()
		}
		if err != nil {
			os.Remove(staging)
		}
	}()
	if err = ds.SetGeoTransform([6]float64(tpl.GeoTransform)); err != nil {
		return fmt.Errorf("%w: set geotransform: %v", ErrTifWriteFailed, err)
	}
	if err = ds.SetProjection(projection); err != nil {
		return fmt.Errorf("%w: set projection: %v", ErrTifWriteFailed, err)
	}
	for i, b := range bands {
		if err = ds.RasterBand(i+1).IO(gdal.Write, 0, 0, tpl.Width, tpl.Height, b, tpl.Width, tpl.Height, 0, 0); err != nil {
			return fmt.Errorf("%w: band %d: %v", ErrTifWriteFailed, i+1, err)
		}
	}
	ds.Close() // 落盘
	closed = true
	if err = utils.Commit(staging, path); err != nil {
		return
	}
	log.Debug(w.logTag+"tif written", zap.String("path", path), zap.Int("bands", len(bands)))
	return
}
