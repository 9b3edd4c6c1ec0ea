package segtile

import (
	"github.com/wgdzlh/segtile/log"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

const RepairQuadSegs = 12

// 修复自相交等无效面：零距离缓冲后重建环。
// 修复后为空或不再是面的，返回原几何并由调用方按原样处理
func (g *GdalToolbox) repairGeo(geo gdal.Geometry, fid int64) (ret gdal.Geometry, repaired bool) {
	ret = geo
	if geo.IsValid() {
		return
	}
	fixed := geo.Buffer(0, RepairQuadSegs)
	switch fixed.Type() {
	case gdal.GT_Polygon, gdal.GT_MultiPolygon:
		if !fixed.IsEmpty() && fixed.Area() > 0 {
			log.Warn(g.logTag+"invalid polygon repaired", zap.Int64("fid", fid),
				zap.Float64("area", geo.Area()), zap.Float64("repairedArea", fixed.Area()))
			ret, repaired = fixed, true
			return
		}
	}
	log.Warn(g.logTag+"invalid polygon kept as is", zap.Int64("fid", fid))
	fixed.Destroy()
	return
}
