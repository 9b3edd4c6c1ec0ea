package segtile

// 矢量图层读取参数
type LayerOptions struct {
	Path     string // .shp/.geojson/.json/.gpkg
	Field    string // 属性字段名
	Encoding string // 属性文本编码，UTF-8（默认）或GBK
}

// 一次运行的全部输入文件
type InputFiles struct {
	Raster      string
	AOI         LayerOptions
	Annotations LayerOptions
}
