package segtile

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wgdzlh/segtile/log"
	"github.com/wgdzlh/segtile/utils"
	"github.com/wgdzlh/segtile/vector"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/wkb"
	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// 统一编码名称，空值为UTF-8
func normEncoding(enc string) (ret string, err error) {
	switch strings.ToUpper(strings.ReplaceAll(enc, "-", "")) {
	case "", "UTF8":
		ret = SHAPE_ENCODING
	case ZH_ENC, "CP936", "GB2312":
		ret = ZH_ENC
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownEncoding, enc)
	}
	return
}

// 解码属性文本：GBK图层中非法UTF-8的字节串按GBK解码（GDAL已按cpg转码的保持不变）
func (g *GdalToolbox) decodeAttr(raw, enc string) string {
	if enc == ZH_ENC && !utf8.ValidString(raw) {
		if d, err := utils.GbkStrToUtf8(raw); err == nil {
			raw = d
		} else {
			log.Warn(g.logTag+"gbk decode failed", zap.Error(err))
		}
	}
	return utils.NormalizeLabel(raw)
}

// LoadLayer reads the first layer of a vector file into features whose
// geometries are flattened to 2D and reprojected into targetWkt. Attr carries
// the value of opts.Field; unset or empty values are marked Null. Features are
// returned in layer (FID) order. Non-polygonal and empty geometries are
// skipped with a warning.
func (g *GdalToolbox) LoadLayer(opts LayerOptions, targetWkt string) (ret []vector.Feature, err error) {
	enc, err := normEncoding(opts.Encoding)
	if err != nil {
		return
	}
	driverName, err := vectorDriverName(opts.Path)
	if err != nil {
		err = fmt.Errorf("%w: %s", err, opts.Path)
		return
	}
	if isUtf8, ok := utils.ShpIsUtf8(opts.Path); !ok && driverName == SHP_DRIVER_NAME && enc == SHAPE_ENCODING {
		log.Warn(g.logTag+"shp without cpg, attributes read as UTF-8", zap.String("shp", opts.Path))
	} else if ok && !isUtf8 {
		log.Info(g.logTag+"shp cpg is not UTF-8", zap.String("shp", opts.Path), zap.String("enc", enc))
	}
	tRef, err := g.getSpatialRef(targetWkt)
	if err != nil {
		return
	}
	ds, ok := gdal.OGRDriverByName(driverName).Open(opts.Path, 0)
	if !ok {
		err = fmt.Errorf("%w: %s", ErrGdalDriverOpen, opts.Path)
		return
	}
	defer ds.Destroy()
	layer := ds.LayerByIndex(0)
	fieldIdx := layer.Definition().FieldIndex(opts.Field)
	if fieldIdx < 0 {
		err = fmt.Errorf(ErrColumnMissingTemplate, ErrFieldMissing, opts.Field)
		return
	}
	srcWkt, _ := layer.SpatialReference().ToWKT()
	sRef, err := g.getSpatialRef(srcWkt)
	if err != nil {
		err = fmt.Errorf("%w: %s", err, opts.Path)
		return
	}
	var (
		needTrans = !sRef.IsSame(tRef)
		gc        []destroyable
		trans     gdal.CoordinateTransform
	)
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	if needTrans {
		trans = gdal.CreateCoordinateTransform(sRef, tRef)
		gc = append(gc, trans)
	}
	log.Info(g.logTag+"start load layer", zap.String("file", opts.Path), zap.String("field", opts.Field),
		zap.String("enc", enc), zap.Bool("reproject", needTrans))

	var (
		feature *gdal.Feature
		skipped int
		nulls   int
	)
	ret = make([]vector.Feature, 0, 128)
	for {
		if feature = layer.NextFeature(); feature == nil {
			break
		}
		f, e := g.readFeature(*feature, fieldIdx, enc, trans, needTrans)
		feature.Destroy()
		if e != nil {
			log.Warn(g.logTag+"feature skipped", zap.String("file", opts.Path), zap.Int64("fid", f.FID), zap.Error(e))
			skipped++
			continue
		}
		if f.Null {
			nulls++
		}
		ret = append(ret, f)
	}
	log.Info(g.logTag+"layer loaded", zap.String("file", opts.Path), zap.Int("features", len(ret)),
		zap.Int("null", nulls), zap.Int("skipped", skipped))
	return
}

func (g *GdalToolbox) readFeature(feature gdal.Feature, fieldIdx int, enc string, trans gdal.CoordinateTransform, needTrans bool) (f vector.Feature, err error) {
	f.FID = feature.FID()
	if feature.IsFieldSet(fieldIdx) {
		f.Attr = g.decodeAttr(feature.FieldAsString(fieldIdx), enc)
	}
	f.Null = f.Attr == ""

	src := feature.Geometry()
	if src.WKBSize() == 0 {
		err = ErrGdalWrongGeoType
		return
	}
	geo := src.Clone()
	geo.FlattenTo2D()
	if fixed, repaired := g.repairGeo(geo, f.FID); repaired {
		geo.Destroy()
		geo = fixed
	}
	defer geo.Destroy()
	if needTrans {
		if err = geo.Transform(trans); err != nil {
			return
		}
	}
	raw, err := geo.ToWKB()
	if err != nil {
		return
	}
	decoded, err := wkb.Decode(raw)
	if err != nil {
		return
	}
	pg, ok := decoded.(geom.Polygonal)
	if !ok {
		err = fmt.Errorf("%w: %T", ErrGdalWrongGeoType, decoded)
		return
	}
	f.Geom = pg
	return
}
