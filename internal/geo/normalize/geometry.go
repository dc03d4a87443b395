package normalize

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// parses one of the six supported geometry kinds; any malformed position
// rejects the whole geometry
func parseGeometry(v any) (orb.Geometry, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	typ, _ := m["type"].(string)
	coords := m["coordinates"]
	switch typ {
	case "Point":
		p, ok := position(coords)
		if !ok {
			return nil, false
		}
		return p, true
	case "MultiPoint":
		pts, ok := positions(coords)
		if !ok {
			return nil, false
		}
		return orb.MultiPoint(pts), true
	case "LineString":
		pts, ok := positions(coords)
		if !ok {
			return nil, false
		}
		return orb.LineString(pts), true
	case "MultiLineString":
		lines, ok := positions2(coords)
		if !ok {
			return nil, false
		}
		out := make(orb.MultiLineString, len(lines))
		for i, l := range lines {
			out[i] = orb.LineString(l)
		}
		return out, true
	case "Polygon":
		rings, ok := positions2(coords)
		if !ok {
			return nil, false
		}
		return toPolygon(rings), true
	case "MultiPolygon":
		a, ok := coords.([]any)
		if !ok {
			return nil, false
		}
		out := make(orb.MultiPolygon, 0, len(a))
		for _, pv := range a {
			rings, ok := positions2(pv)
			if !ok {
				return nil, false
			}
			out = append(out, toPolygon(rings))
		}
		return out, true
	default:
		return nil, false
	}
}

func toPolygon(rings [][]orb.Point) orb.Polygon {
	out := make(orb.Polygon, len(rings))
	for i, r := range rings {
		out[i] = orb.Ring(r)
	}
	return out
}

// reads an [x, y, ...] position, dropping z/m
func position(v any) (orb.Point, bool) {
	a, ok := v.([]any)
	if !ok || len(a) < 2 {
		return orb.Point{}, false
	}
	x, okx := a[0].(float64)
	y, oky := a[1].(float64)
	if !okx || !oky || math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return orb.Point{}, false
	}
	return orb.Point{x, y}, true
}

func positions(v any) ([]orb.Point, bool) {
	a, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]orb.Point, 0, len(a))
	for _, pv := range a {
		p, ok := position(pv)
		if !ok {
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

func positions2(v any) ([][]orb.Point, bool) {
	a, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([][]orb.Point, 0, len(a))
	for _, lv := range a {
		pts, ok := positions(lv)
		if !ok {
			return nil, false
		}
		out = append(out, pts)
	}
	return out, true
}

// accepts 2D and 3D bboxes, keeping the 2D extent
func parseBBox(v any) geojson.BBox {
	a, ok := v.([]any)
	if !ok || (len(a) != 4 && len(a) != 6) {
		return nil
	}
	nums := make([]float64, len(a))
	for i := range a {
		f, ok := a[i].(float64)
		if !ok {
			return nil
		}
		nums[i] = f
	}
	if len(nums) == 6 {
		return geojson.BBox{nums[0], nums[1], nums[3], nums[4]}
	}
	return geojson.BBox(nums)
}
