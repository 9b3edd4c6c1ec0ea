package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/wgdzlh/segtile/aoi"
	"github.com/wgdzlh/segtile/catalog"
	"github.com/wgdzlh/segtile/grid"
	"github.com/wgdzlh/segtile/log"
	"github.com/wgdzlh/segtile/mask"
	"github.com/wgdzlh/segtile/tile"
	"github.com/wgdzlh/segtile/utils"
	"github.com/wgdzlh/segtile/vector"
	"github.com/wgdzlh/segtile/worker"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	CatalogFile = "classes.csv"
	logTag      = "Pipeline:"
)

var (
	ErrNoRaster    = errors.New("raster source is required")
	ErrNoWriter    = errors.New("raster writer is required")
	ErrUnknownCell = errors.New("requested cell index not in grid")

	ErrClassOverflow      = errors.New("too many classes for an 8-bit mask")
	ErrBackgroundCollides = errors.New("background value collides with a class id")
)

// Writer persists an 8-bit raster (one slice per band) on a template.
type Writer interface {
	WriteRaster(path string, tpl grid.Template, projection string, bands [][]uint8) error
	Ext() string
}

type Options struct {
	OutDir     string
	TileSize   int
	Bands      []int // 1-based, empty for all
	Background uint8
	Workers    int
	Cells      []int // restrict the run to these indices, empty for all selected
}

type Inputs struct {
	Raster      tile.Source
	AOI         []vector.Feature // status in Attr, reprojected to raster SRS
	Annotations []vector.Feature // label in Attr, reprojected to raster SRS
}

// 运行结果
type Result struct {
	RunID    string
	Catalog  *catalog.Catalog
	Grid     []grid.Cell // 全部单元
	Selected []grid.Cell // AOI筛选后实际处理的单元
	Report   *worker.Report
}

// 单个单元的处理所需的只读输入
type job struct {
	src        tile.Source
	meta       tile.Meta
	index      *mask.Index
	unresolved []vector.Feature
	opts       Options
	writer     Writer
}

// Run builds the catalog and grid, filters cells by AOI and produces a tile and
// a mask per selected cell on a worker pool. Input problems are returned as an
// error before any cell is processed; per-cell failures end up in the report.
func Run(ctx context.Context, in Inputs, w Writer, opts Options) (res *Result, err error) {
	if in.Raster == nil {
		return nil, ErrNoRaster
	}
	if w == nil {
		return nil, ErrNoWriter
	}
	res = &Result{RunID: uuid.NewString()}
	meta := in.Raster.Meta()
	lg := log.L().With(zap.String("run", res.RunID))
	if _, err = tile.ResolveBands(meta, opts.Bands); err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(in.Annotations))
	for _, f := range in.Annotations {
		if !f.Null {
			labels = append(labels, f.Attr)
		}
	}
	res.Catalog = catalog.Build(labels)
	lg.Info(logTag+"catalog built", zap.Int("classes", res.Catalog.Len()), zap.Any("entries", res.Catalog.Entries()))
	if err = checkClassIDs(res.Catalog.Len(), opts.Background); err != nil {
		return nil, err
	}

	if res.Grid, err = grid.Generate(meta.GeoTransform, meta.Width, meta.Height, opts.TileSize); err != nil {
		return nil, err
	}
	active := aoi.Active(in.AOI)
	if len(active) == 0 {
		lg.Warn(logTag+"no active aoi polygon, nothing will be selected", zap.Int("aoi", len(in.AOI)))
	}
	res.Selected = aoi.Filter(res.Grid, active)
	if len(opts.Cells) > 0 {
		if _, missing := grid.Pick(res.Grid, opts.Cells); len(missing) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrUnknownCell, missing)
		}
		picked, _ := grid.Pick(res.Selected, opts.Cells)
		if want := utils.UniqInts(opts.Cells); len(picked) < len(want) {
			lg.Warn(logTag+"some requested cells are outside the aoi", zap.Ints("requested", want), zap.Int("picked", len(picked)))
		}
		res.Selected = picked
	}
	lg.Info(logTag+"grid ready", zap.Int("cells", len(res.Grid)), zap.Int("selected", len(res.Selected)),
		zap.Int("tileSize", opts.TileSize))

	anns, unresolved := mask.Resolve(in.Annotations, res.Catalog)
	for _, f := range unresolved {
		lg.Warn(logTag+"annotation without resolvable label skipped", zap.Int64("fid", f.FID), zap.String("label", f.Attr))
	}

	if err = utils.PrepareOutDirs(opts.OutDir); err != nil {
		return nil, err
	}
	if err = res.Catalog.Save(filepath.Join(opts.OutDir, CatalogFile)); err != nil {
		return nil, err
	}

	j := &job{
		src:        in.Raster,
		meta:       meta,
		index:      mask.NewIndex(anns),
		unresolved: unresolved,
		opts:       opts,
		writer:     w,
	}
	res.Report = worker.NewPool(opts.Workers).Run(ctx, res.Selected, j.process)
	lg.Info(logTag+"finished", zap.String("summary", res.Report.Summary()),
		zap.Ints("failed", res.Report.FailedIndices()), zap.Ints("degraded", res.Report.DegradedIndices()))
	return
}

// 类别编号1..K须能以8位存储，且不与背景值重合
func checkClassIDs(classes int, background uint8) error {
	if classes > math.MaxUint8 {
		return fmt.Errorf("%w: %d classes, at most %d", ErrClassOverflow, classes, math.MaxUint8)
	}
	if background != catalog.Background && int(background) <= classes {
		return fmt.Errorf("%w: background %d within class ids 1..%d", ErrBackgroundCollides, background, classes)
	}
	return nil
}

// 单元内瓦片与掩膜仅共享空间模板，两者并行生成；任一失败时删除另一个已写出的文件
func (j *job) process(_ context.Context, c grid.Cell) (degraded int, err error) {
	tpl := c.Template(j.meta.GeoTransform)
	tilePath := utils.TilePath(j.opts.OutDir, c.Index, j.writer.Ext())
	maskPath := utils.MaskPath(j.opts.OutDir, c.Index, j.writer.Ext())
	var eg errgroup.Group
	eg.Go(guard(func() error {
		t, err := tile.Extract(j.src, c, j.opts.Bands)
		if err != nil {
			return fmt.Errorf("extract tile: %w", err)
		}
		if err = j.writer.WriteRaster(tilePath, t.Template, j.meta.Projection, t.Bands); err != nil {
			return fmt.Errorf("write tile: %w", err)
		}
		return nil
	}))
	eg.Go(guard(func() error {
		m, err := mask.Rasterize(j.index, c, tpl, j.opts.Background)
		if err != nil {
			return fmt.Errorf("rasterize mask: %w", err)
		}
		if err = j.writer.WriteRaster(maskPath, m.Template, j.meta.Projection, [][]uint8{m.Pix}); err != nil {
			return fmt.Errorf("write mask: %w", err)
		}
		return nil
	}))
	if err = eg.Wait(); err != nil {
		for _, p := range []string{tilePath, maskPath} {
			if e := os.Remove(p); e != nil && !os.IsNotExist(e) {
				log.Warn(logTag+"remove partial output failed", zap.Int("cell", c.Index), zap.String("path", p), zap.Error(e))
			}
		}
		return
	}
	if degraded = mask.CountTouching(j.unresolved, c); degraded > 0 {
		log.Warn(logTag+"cell has skipped annotations", zap.Int("cell", c.Index), zap.Int("skipped", degraded))
	}
	return
}

// 将goroutine内的panic转为错误
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if v := recover(); v != nil {
				err = fmt.Errorf("panic: %v", v)
			}
		}()
		return fn()
	}
}
