package vector

import (
	"github.com/ctessum/geom"
)

// 矢量要素，Geom已转换至影像坐标系
type Feature struct {
	FID  int64
	Geom geom.Polygonal
	Attr string // 属性字段值（label或status）
	Null bool   // 属性字段未设置或为空
}

// 外包框是否相交（含边界接触）
func BoundsTouch(a, b *geom.Bounds) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y
}

func inBounds(b *geom.Bounds, p geom.Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Intersects reports whether the polygon shares at least one point with the
// rectangle, boundary contact included.
func Intersects(b *geom.Bounds, pg geom.Polygonal) bool {
	if pg == nil || !BoundsTouch(b, pg.Bounds()) {
		return false
	}
	corners := [4]geom.Point{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Max.Y},
	}
	for _, poly := range pg.Polygons() {
		for _, ring := range poly {
			n := len(ring)
			for i, p := range ring {
				if inBounds(b, p) {
					return true
				}
				q := ring[(i+1)%n]
				for k := range corners {
					if segmentsTouch(p, q, corners[k], corners[(k+1)%4]) {
						return true
					}
				}
			}
		}
		// 矩形完全位于多边形内部
		if containsPoint(poly, corners[0]) {
			return true
		}
	}
	return false
}

// 偶奇规则判断点是否在多边形（含洞）内
func containsPoint(poly geom.Polygon, p geom.Point) bool {
	in := false
	for _, ring := range poly {
		n := len(ring)
		for i, j := 0, n-1; i < n; j, i = i, i+1 {
			a, b := ring[i], ring[j]
			if (a.Y > p.Y) != (b.Y > p.Y) &&
				p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
				in = !in
			}
		}
	}
	return in
}

func orient(a, b, c geom.Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func onSegment(a, b, p geom.Point) bool {
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}

func segmentsTouch(p1, p2, q1, q2 geom.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

// 矩形外包框转多边形
func BoundsPolygon(b *geom.Bounds) geom.Polygon {
	return geom.Polygon{{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Max.Y},
	}}
}

func boundsWithin(inner, outer *geom.Bounds) bool {
	return inner.Min.X >= outer.Min.X && inner.Max.X <= outer.Max.X &&
		inner.Min.Y >= outer.Min.Y && inner.Max.Y <= outer.Max.Y
}

// Clip returns the parts of pg inside the rectangle, one polygon per
// non-empty part. Each ring is clipped on its own, which keeps even-odd
// membership unchanged for every point inside the rectangle.
func Clip(b *geom.Bounds, pg geom.Polygonal) (parts []geom.Polygon) {
	if pg == nil || !BoundsTouch(b, pg.Bounds()) {
		return
	}
	for _, poly := range pg.Polygons() {
		if len(poly) == 0 {
			continue
		}
		if boundsWithin(poly.Bounds(), b) {
			parts = append(parts, poly)
			continue
		}
		clipped := make(geom.Polygon, 0, len(poly))
		for _, ring := range poly {
			if r := clipRing(b, ring); len(r) >= 3 {
				clipped = append(clipped, r)
			}
		}
		if len(clipped) > 0 {
			parts = append(parts, clipped)
		}
	}
	return
}

// Sutherland-Hodgman，依次对矩形四条边裁剪
func clipRing(b *geom.Bounds, ring geom.Path) geom.Path {
	out := append(geom.Path(nil), ring...)
	planes := [4]struct {
		inside func(p geom.Point) bool
		cross  func(p, q geom.Point) geom.Point
	}{
		{
			func(p geom.Point) bool { return p.X >= b.Min.X },
			func(p, q geom.Point) geom.Point { return atX(p, q, b.Min.X) },
		},
		{
			func(p geom.Point) bool { return p.X <= b.Max.X },
			func(p, q geom.Point) geom.Point { return atX(p, q, b.Max.X) },
		},
		{
			func(p geom.Point) bool { return p.Y >= b.Min.Y },
			func(p, q geom.Point) geom.Point { return atY(p, q, b.Min.Y) },
		},
		{
			func(p geom.Point) bool { return p.Y <= b.Max.Y },
			func(p, q geom.Point) geom.Point { return atY(p, q, b.Max.Y) },
		},
	}
	for _, pl := range planes {
		in := out
		if len(in) == 0 {
			break
		}
		out = make(geom.Path, 0, len(in)+4)
		prev := in[len(in)-1]
		for _, cur := range in {
			curIn, prevIn := pl.inside(cur), pl.inside(prev)
			if curIn {
				if !prevIn {
					out = append(out, pl.cross(prev, cur))
				}
				out = append(out, cur)
			} else if prevIn {
				out = append(out, pl.cross(prev, cur))
			}
			prev = cur
		}
	}
	return out
}

func atX(p, q geom.Point, x float64) geom.Point {
	t := (x - p.X) / (q.X - p.X)
	return geom.Point{X: x, Y: p.Y + t*(q.Y-p.Y)}
}

func atY(p, q geom.Point, y float64) geom.Point {
	t := (y - p.Y) / (q.Y - p.Y)
	return geom.Point{X: p.X + t*(q.X-p.X), Y: y}
}
