package segtile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lukeroth/gdal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wgdzlh/segtile/grid"
	"github.com/wgdzlh/segtile/pipeline"
	"github.com/wgdzlh/segtile/utils"
)

var testGT = grid.GeoTransform{100, 0.001, 0, 30, 0, -0.001}

func wktOf(t *testing.T, epsg int) string {
	t.Helper()
	ref := gdal.CreateSpatialReference("")
	defer ref.Destroy()
	require.NoError(t, ref.FromEPSG(epsg))
	wkt, err := ref.ToWKT()
	require.NoError(t, err)
	return wkt
}

// 生成size x size的多波段8位影像，像素值为(x+y*3+band*40)%256
func writeRaster(t *testing.T, g *GdalToolbox, path string, size, bands int) {
	t.Helper()
	pix := make([][]uint8, bands)
	for b := range pix {
		pix[b] = make([]uint8, size*size)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				pix[b][y*size+x] = uint8((x + y*3 + (b+1)*40) % 256)
			}
		}
	}
	tpl := grid.Template{Width: size, Height: size, GeoTransform: testGT}
	require.NoError(t, g.NewGTiffWriter("").WriteRaster(path, tpl, wktOf(t, 4326), pix))
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const annotationsJSON = `{
"type": "FeatureCollection",
"features": [
{"type": "Feature", "properties": {"label": " Oak "}, "geometry": {"type": "Polygon", "coordinates": [[[100.032, 29.968], [100.064, 29.968], [100.064, 29.936], [100.032, 29.936], [100.032, 29.968]]]}},
{"type": "Feature", "properties": {"label": null}, "geometry": {"type": "Polygon", "coordinates": [[[100.001, 29.999], [100.01, 29.999], [100.01, 29.99], [100.001, 29.99], [100.001, 29.999]]]}},
{"type": "Feature", "properties": {"label": ""}, "geometry": {"type": "MultiPolygon", "coordinates": [[[[100.001, 29.999], [100.002, 29.999], [100.002, 29.998], [100.001, 29.999]]]]}},
{"type": "Feature", "properties": {"label": "Birch"}, "geometry": {"type": "Point", "coordinates": [100.01, 29.99]}}
]
}`

const aoiJSON = `{
"type": "FeatureCollection",
"features": [
{"type": "Feature", "properties": {"status": "ready"}, "geometry": {"type": "Polygon", "coordinates": [[[100, 30], [100.064, 30], [100.064, 29.936], [100, 29.936], [100, 30]]]}}
]
}`

func TestRasterRoundTrip(t *testing.T) {
	g := NewGdalToolbox()
	defer g.Destroy()
	src := filepath.Join(t.TempDir(), "src.tif")
	writeRaster(t, g, src, 64, 2)

	ref, err := g.OpenRaster(src)
	require.NoError(t, err)
	meta := ref.Meta()
	assert.Equal(t, 64, meta.Width)
	assert.Equal(t, 64, meta.Height)
	assert.Equal(t, 2, meta.Bands)
	assert.Equal(t, "Byte", meta.DataType)
	assert.Equal(t, testGT, meta.GeoTransform)
	assert.NotEmpty(t, meta.Projection)

	w := grid.Window{XOff: 10, YOff: 20, Width: 8, Height: 4}
	buf, err := ref.ReadWindow(w, []int{2, 1})
	require.NoError(t, err)
	require.Len(t, buf, 2)
	require.Len(t, buf[0], 32)
	assert.Equal(t, float64((10+20*3+80)%256), buf[0][0])
	assert.Equal(t, float64((17+23*3+40)%256), buf[1][31])

	_, err = ref.ReadWindow(w, []int{3})
	assert.Error(t, err)

	entries, err := os.ReadDir(filepath.Dir(src))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging file must not survive")
}

func TestOpenRasterMissing(t *testing.T) {
	g := NewGdalToolbox()
	_, err := g.OpenRaster(filepath.Join(t.TempDir(), "none.tif"))
	assert.ErrorIs(t, err, ErrInvalidTif)
}

func TestWriteRasterWrongSize(t *testing.T) {
	g := NewGdalToolbox()
	tpl := grid.Template{Width: 4, Height: 4, GeoTransform: testGT}
	err := g.NewGTiffWriter("DEFLATE").WriteRaster(filepath.Join(t.TempDir(), "a.tif"), tpl, wktOf(t, 4326), [][]uint8{make([]uint8, 15)})
	assert.ErrorIs(t, err, ErrWrongBufferSize)
}

func TestLoadLayer(t *testing.T) {
	g := NewGdalToolbox()
	defer g.Destroy()
	path := writeFile(t, filepath.Join(t.TempDir(), "ann.geojson"), annotationsJSON)

	fs, err := g.LoadLayer(LayerOptions{Path: path, Field: "label"}, wktOf(t, 4326))
	require.NoError(t, err)
	require.Len(t, fs, 3, "point feature is skipped")
	assert.Equal(t, "Oak", fs[0].Attr)
	assert.False(t, fs[0].Null)
	assert.True(t, fs[1].Null)
	assert.True(t, fs[2].Null)
	assert.Less(t, fs[0].FID, fs[1].FID)
	b := fs[0].Geom.Bounds()
	assert.InDelta(t, 100.032, b.Min.X, 1e-9)
	assert.InDelta(t, 29.968, b.Max.Y, 1e-9)
}

func TestLoadLayerReprojects(t *testing.T) {
	g := NewGdalToolbox()
	defer g.Destroy()
	path := writeFile(t, filepath.Join(t.TempDir(), "ann.json"), annotationsJSON)

	fs, err := g.LoadLayer(LayerOptions{Path: path, Field: "label"}, wktOf(t, 3857))
	require.NoError(t, err)
	require.NotEmpty(t, fs)
	b := fs[0].Geom.Bounds()
	// 经度100.032在Web墨卡托下的x坐标
	assert.InDelta(t, 11135511.3, b.Min.X, 1)
}

func TestLoadLayerErrors(t *testing.T) {
	g := NewGdalToolbox()
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "ann.geojson"), annotationsJSON)

	_, err := g.LoadLayer(LayerOptions{Path: path, Field: "class"}, wktOf(t, 4326))
	assert.ErrorIs(t, err, ErrFieldMissing)

	_, err = g.LoadLayer(LayerOptions{Path: filepath.Join(dir, "ann.kml"), Field: "label"}, wktOf(t, 4326))
	assert.ErrorIs(t, err, ErrUnsupportedVector)

	_, err = g.LoadLayer(LayerOptions{Path: filepath.Join(dir, "none.geojson"), Field: "label"}, wktOf(t, 4326))
	assert.ErrorIs(t, err, ErrGdalDriverOpen)

	_, err = g.LoadLayer(LayerOptions{Path: path, Field: "label", Encoding: "latin1"}, wktOf(t, 4326))
	assert.ErrorIs(t, err, ErrUnknownEncoding)

	_, err = g.LoadLayer(LayerOptions{Path: path, Field: "label"}, "")
	assert.ErrorIs(t, err, ErrVoidSrs)
}

func TestDecodeAttr(t *testing.T) {
	g := NewGdalToolbox()
	gbk, err := utils.Utf8StrToGbk("橡树")
	require.NoError(t, err)
	assert.Equal(t, "橡树", g.decodeAttr(gbk, ZH_ENC))
	assert.Equal(t, "橡树", g.decodeAttr(" 橡树 ", ZH_ENC))
	assert.Equal(t, "Oak", g.decodeAttr("Oak\x00", SHAPE_ENCODING))
}

func TestRunWithGdal(t *testing.T) {
	g := NewGdalToolbox()
	defer g.Destroy()
	dir := t.TempDir()
	files := InputFiles{
		Raster:      filepath.Join(dir, "src.tif"),
		AOI:         LayerOptions{Path: writeFile(t, filepath.Join(dir, "aoi.geojson"), aoiJSON), Field: "status"},
		Annotations: LayerOptions{Path: writeFile(t, filepath.Join(dir, "ann.geojson"), annotationsJSON), Field: "label"},
	}
	writeRaster(t, g, files.Raster, 64, 3)

	in, err := g.LoadInputs(files)
	require.NoError(t, err)
	out := filepath.Join(dir, "out")
	res, err := pipeline.Run(context.Background(), in, g.NewGTiffWriter(""), pipeline.Options{OutDir: out, TileSize: 32, Workers: 2})
	require.NoError(t, err)
	require.NoError(t, res.Report.Err())
	assert.Equal(t, []int{1, 2, 3, 4}, res.Report.Processed)
	assert.Equal(t, []int{1}, res.Report.DegradedIndices())

	oak, ok := res.Catalog.ID("Oak")
	require.True(t, ok)
	for i := 1; i <= 4; i++ {
		tl, err := g.OpenRaster(utils.TilePath(out, i, utils.FILE_EXT_TIF))
		require.NoError(t, err)
		mk, err := g.OpenRaster(utils.MaskPath(out, i, utils.FILE_EXT_TIF))
		require.NoError(t, err)
		assert.Equal(t, 3, tl.Meta().Bands)
		assert.Equal(t, 1, mk.Meta().Bands)
		assert.Equal(t, tl.Meta().GeoTransform, mk.Meta().GeoTransform)
		assert.Equal(t, 32, mk.Meta().Width)

		pix, err := mk.ReadWindow(grid.Window{Width: 32, Height: 32}, []int{1})
		require.NoError(t, err)
		want := 0.0
		if i == 4 {
			want = float64(oak)
		}
		for _, v := range pix[0] {
			if v != want {
				t.Fatalf("mask %d: got %v, want %v", i, v, want)
			}
		}
	}

	tl, err := g.OpenRaster(utils.TilePath(out, 4, utils.FILE_EXT_TIF))
	require.NoError(t, err)
	pix, err := tl.ReadWindow(grid.Window{Width: 1, Height: 1}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, float64((32+32*3+40)%256), pix[0][0])
}

func TestLoadLayerRepairsInvalidPolygon(t *testing.T) {
	g := NewGdalToolbox()
	defer g.Destroy()
	bowtie := `{"type": "FeatureCollection", "features": [
{"type": "Feature", "properties": {"label": "Oak"}, "geometry": {"type": "Polygon", "coordinates": [[[100, 30], [100.01, 29.99], [100.01, 30], [100, 29.99], [100, 30]]]}}
]}`
	path := writeFile(t, filepath.Join(t.TempDir(), "bowtie.geojson"), bowtie)
	fs, err := g.LoadLayer(LayerOptions{Path: path, Field: "label"}, wktOf(t, 4326))
	require.NoError(t, err)
	require.Len(t, fs, 1)
	require.NotNil(t, fs[0].Geom)
	assert.NotEmpty(t, fs[0].Geom.Polygons())
}
