package aoi

import (
	"github.com/wgdzlh/segtile/grid"
	"github.com/wgdzlh/segtile/vector"
)

// Active keeps the AOI polygons whose status attribute is set.
func Active(features []vector.Feature) []vector.Feature {
	out := make([]vector.Feature, 0, len(features))
	for _, f := range features {
		if f.Null || f.Geom == nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Filter returns the cells touching at least one active polygon, in their
// grid order with their indices unchanged.
func Filter(cells []grid.Cell, active []vector.Feature) (selected []grid.Cell) {
	for _, c := range cells {
		for _, f := range active {
			if vector.Intersects(&c.Bounds, f.Geom) {
				selected = append(selected, c)
				break
			}
		}
	}
	return
}
