// Package reproject converts spherical Web-Mercator coordinates to WGS84.
package reproject

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/mohammed-shakir/layer-ingest/internal/core/model"
)

// ToWGS84 is the inverse spherical Mercator projection (R = 6378137 m).
var ToWGS84 orb.Projection = project.Mercator.ToWGS84

// Geometry returns a reprojected copy of g. Kinds other than the six GeoJSON
// primitives are returned unchanged.
func Geometry(g orb.Geometry) orb.Geometry {
	switch g.(type) {
	case orb.Point, orb.MultiPoint, orb.LineString, orb.MultiLineString, orb.Polygon, orb.MultiPolygon:
		return project.Geometry(orb.Clone(g), ToWGS84)
	default:
		return g
	}
}

// Collection returns a copy of fc with every geometry and the bbox
// reprojected; the declared CRS is rewritten to EPSG:4326.
func Collection(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := model.ShallowCopy(fc)
	for _, f := range out.Features {
		if f.Geometry != nil {
			f.Geometry = Geometry(f.Geometry)
		}
		f.BBox = nil
	}
	if len(out.BBox) == 4 {
		lo := ToWGS84(orb.Point{out.BBox[0], out.BBox[1]})
		hi := ToWGS84(orb.Point{out.BBox[2], out.BBox[3]})
		out.BBox = geojson.BBox{lo[0], lo[1], hi[0], hi[1]}
	}
	model.SetDeclaredCRS(out, model.EPSG4326)
	return out
}
