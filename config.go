package segtile

const (
	SHAPE_ENCODING = "UTF-8"
	ZH_ENC         = "GBK"

	SHP_DRIVER_NAME     = "ESRI Shapefile"
	GEOJSON_DRIVER_NAME = "GeoJSON"
	GPKG_DRIVER_NAME    = "GPKG"
	GTIFF_DRIVER_NAME   = "GTiff"

	DEFAULT_COMPRESSION = "LZW"
	COMPRESS_OPTION     = "COMPRESS="
	STRIPED_OPTION      = "TILED=NO"

	ErrColumnMissingTemplate = `%w: 图层中缺失【%s】字段`
)
