package mask

import (
	"errors"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/wgdzlh/segtile/catalog"
	"github.com/wgdzlh/segtile/grid"
	"github.com/wgdzlh/segtile/vector"
)

var (
	ErrUnresolvedClass = errors.New("annotation without class id")
	ErrEmptyTemplate   = errors.New("empty mask template")
)

// 已解析类别编号的标注多边形
type Annotation struct {
	FID     int64
	Geom    geom.Polygonal
	ClassID uint8
	order   int
}

// 单波段类别掩膜，像素按行优先存放
type Mask struct {
	Template grid.Template
	Pix      []uint8
}

// Resolve maps annotation labels to catalog ids. Features with a null or
// unknown label are returned in unresolved and never become annotations.
func Resolve(features []vector.Feature, cat *catalog.Catalog) (anns []Annotation, unresolved []vector.Feature) {
	anns = make([]Annotation, 0, len(features))
	for _, f := range features {
		if f.Geom == nil {
			continue
		}
		id, ok := 0, false
		if !f.Null {
			id, ok = cat.ID(f.Attr)
		}
		if !ok || id <= catalog.Background || id > math.MaxUint8 {
			unresolved = append(unresolved, f)
			continue
		}
		anns = append(anns, Annotation{FID: f.FID, Geom: f.Geom, ClassID: uint8(id)})
	}
	return
}

type indexed struct {
	geom.Polygonal
	ann *Annotation
}

// 标注空间索引，查询结果按输入顺序返回
type Index struct {
	tree *rtree.Rtree
	anns []Annotation
}

func NewIndex(anns []Annotation) *Index {
	idx := &Index{
		tree: rtree.NewTree(25, 50),
		anns: make([]Annotation, len(anns)),
	}
	copy(idx.anns, anns)
	for i := range idx.anns {
		idx.anns[i].order = i
		idx.tree.Insert(indexed{Polygonal: idx.anns[i].Geom, ann: &idx.anns[i]})
	}
	return idx
}

func (idx *Index) Len() int {
	return len(idx.anns)
}

// 与外包框相交的标注，按输入顺序排列
func (idx *Index) Search(b *geom.Bounds) []*Annotation {
	hits := idx.tree.SearchIntersect(b)
	out := make([]*Annotation, 0, len(hits))
	for _, h := range hits {
		if it, ok := h.(indexed); ok {
			out = append(out, it.ann)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// 新建以背景值填充的掩膜
func New(tpl grid.Template, background uint8) (*Mask, error) {
	if tpl.Width <= 0 || tpl.Height <= 0 {
		return nil, ErrEmptyTemplate
	}
	m := &Mask{Template: tpl, Pix: make([]uint8, tpl.Width*tpl.Height)}
	if background != 0 {
		for i := range m.Pix {
			m.Pix[i] = background
		}
	}
	return m, nil
}

// Rasterize burns every annotation intersecting the cell into a mask built on
// tpl. Annotations are clipped to the cell first and burned in input order, so
// later annotations overwrite earlier ones where they overlap.
func Rasterize(idx *Index, cell grid.Cell, tpl grid.Template, background uint8) (m *Mask, err error) {
	if m, err = New(tpl, background); err != nil {
		return
	}
	for _, ann := range idx.Search(&cell.Bounds) {
		if ann.ClassID == catalog.Background {
			err = ErrUnresolvedClass
			return
		}
		for _, part := range vector.Clip(&cell.Bounds, ann.Geom) {
			m.Burn(part, ann.ClassID)
		}
	}
	return
}

// Burn sets every pixel whose center falls inside poly (even-odd rule over
// all rings) to value.
func (m *Mask) Burn(poly geom.Polygon, value uint8) {
	gt := m.Template.GeoTransform
	w, h := m.Template.Width, m.Template.Height

	type edge struct{ x0, y0, x1, y1 float64 }
	edges := make([]edge, 0, 64)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, ring := range poly {
		n := len(ring)
		for i := 0; i < n; i++ {
			x0, y0 := gt.WorldToPixel(ring[i].X, ring[i].Y)
			x1, y1 := gt.WorldToPixel(ring[(i+1)%n].X, ring[(i+1)%n].Y)
			if y0 == y1 {
				continue
			}
			edges = append(edges, edge{x0, y0, x1, y1})
			minY = math.Min(minY, math.Min(y0, y1))
			maxY = math.Max(maxY, math.Max(y0, y1))
		}
	}
	if len(edges) == 0 {
		return
	}
	rowStart := max(0, int(math.Floor(minY-0.5)))
	rowEnd := min(h-1, int(math.Ceil(maxY-0.5)))
	xs := make([]float64, 0, 16)
	for row := rowStart; row <= rowEnd; row++ {
		cy := float64(row) + 0.5
		xs = xs[:0]
		for _, e := range edges {
			if (e.y0 > cy) != (e.y1 > cy) {
				xs = append(xs, e.x0+(cy-e.y0)*(e.x1-e.x0)/(e.y1-e.y0))
			}
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)
		line := m.Pix[row*w : (row+1)*w]
		for k := 0; k+1 < len(xs); k += 2 {
			// 像元中心 c+0.5 落在 [xs[k], xs[k+1]) 内
			c0 := max(0, int(math.Ceil(xs[k]-0.5)))
			c1 := min(w, int(math.Ceil(xs[k+1]-0.5)))
			for c := c0; c < c1; c++ {
				line[c] = value
			}
		}
	}
}

// 统计与单元相交的未解析标注个数
func CountTouching(unresolved []vector.Feature, cell grid.Cell) (n int) {
	for _, f := range unresolved {
		if vector.Intersects(&cell.Bounds, f.Geom) {
			n++
		}
	}
	return
}

func (m *Mask) Uniform() (v uint8, ok bool) {
	if len(m.Pix) == 0 {
		return
	}
	v = m.Pix[0]
	for _, p := range m.Pix[1:] {
		if p != v {
			return v, false
		}
	}
	return v, true
}
