package segtile

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/wgdzlh/segtile/log"
	"github.com/wgdzlh/segtile/pipeline"
	"github.com/wgdzlh/segtile/utils"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

type GdalToolbox struct {
	refMap map[string]gdal.SpatialReference
	rLock  sync.Mutex
	logTag string
}

// 由GDAL库C语言创建的内存对象，需要手动调用Destroy回收
type destroyable interface {
	Destroy()
}

// 初始化GDAL工具箱
func NewGdalToolbox() *GdalToolbox {
	return &GdalToolbox{
		refMap: map[string]gdal.SpatialReference{},
		logTag: "GdalToolbox:",
	}
}

// 获取WKT对应的坐标系（可复用，故无需回收）
func (g *GdalToolbox) getSpatialRef(wkt string) (ref gdal.SpatialReference, err error) {
	if wkt == "" {
		err = ErrVoidSrs
		return
	}
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap[wkt]
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromWKT(wkt); err != nil {
		log.Error(g.logTag+"set ref from wkt failed", zap.String("wkt", wkt), zap.Error(err))
		ref.Destroy()
		return
	}
	// 固定为(x,y)即(经度,纬度)/(东,北)的传统GIS坐标序，否则地理坐标系下转换后可能出现次序倒置
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.refMap[wkt] = ref
	return
}

// 回收缓存的坐标系
func (g *GdalToolbox) Destroy() {
	g.rLock.Lock()
	defer g.rLock.Unlock()
	for k, ref := range g.refMap {
		ref.Destroy()
		delete(g.refMap, k)
	}
}

// 按扩展名选择矢量驱动
func vectorDriverName(path string) (name string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case utils.FILE_EXT_SHP:
		name = SHP_DRIVER_NAME
	case utils.FILE_EXT_GEOJSON, utils.FILE_EXT_JSON:
		name = GEOJSON_DRIVER_NAME
	case utils.FILE_EXT_GPKG:
		name = GPKG_DRIVER_NAME
	default:
		err = ErrUnsupportedVector
	}
	return
}

// LoadInputs opens the raster reference and loads both vector layers
// reprojected into the raster's SRS. Any failure here is an input error and
// nothing has been written yet.
func (g *GdalToolbox) LoadInputs(files InputFiles) (in pipeline.Inputs, err error) {
	raster, err := g.OpenRaster(files.Raster)
	if err != nil {
		return
	}
	proj := raster.Meta().Projection
	if in.AOI, err = g.LoadLayer(files.AOI, proj); err != nil {
		return
	}
	if in.Annotations, err = g.LoadLayer(files.Annotations, proj); err != nil {
		return
	}
	in.Raster = raster
	log.Info(g.logTag+"inputs loaded", zap.String("raster", raster.Path()), zap.Int("aoi", len(in.AOI)),
		zap.Int("annotations", len(in.Annotations)))
	return
}
