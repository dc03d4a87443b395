package ingest

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultValidationSample is the number of features checked per layer.
const DefaultValidationSample = 5

// Validate checks that every coordinate of up to sample features, spread
// evenly across the collection, is a finite WGS84 position.
func Validate(fc *geojson.FeatureCollection, sample int) error {
	if fc == nil || len(fc.Features) == 0 {
		return nil
	}
	if sample <= 0 {
		sample = DefaultValidationSample
	}
	n := len(fc.Features)
	if sample > n {
		sample = n
	}
	for i := range sample {
		idx := i * n / sample
		f := fc.Features[idx]
		if f == nil {
			continue
		}
		if p, ok := firstInvalid(f.Geometry); ok {
			return fmt.Errorf("%w: feature %d has [%g, %g]", ErrValidation, idx, p[0], p[1])
		}
	}
	return nil
}

func validWGS84(p orb.Point) bool {
	lon, lat := p[0], p[1]
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return math.Abs(lon) <= 180 && math.Abs(lat) <= 90
}

func firstInvalid(g orb.Geometry) (orb.Point, bool) {
	var bad orb.Point
	found := false
	eachPoint(g, func(p orb.Point) bool {
		if !validWGS84(p) {
			bad, found = p, true
			return false
		}
		return true
	})
	return bad, found
}

// eachPoint visits every position of g until fn returns false.
func eachPoint(g orb.Geometry, fn func(orb.Point) bool) bool {
	switch g := g.(type) {
	case orb.Point:
		return fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			if !fn(p) {
				return false
			}
		}
	case orb.LineString:
		return eachPoint(orb.MultiPoint(g), fn)
	case orb.Ring:
		return eachPoint(orb.MultiPoint(g), fn)
	case orb.MultiLineString:
		for _, ls := range g {
			if !eachPoint(ls, fn) {
				return false
			}
		}
	case orb.Polygon:
		for _, r := range g {
			if !eachPoint(r, fn) {
				return false
			}
		}
	case orb.MultiPolygon:
		for _, p := range g {
			if !eachPoint(p, fn) {
				return false
			}
		}
	case orb.Collection:
		for _, c := range g {
			if !eachPoint(c, fn) {
				return false
			}
		}
	case orb.Bound:
		return fn(g.Min) && fn(g.Max)
	}
	return true
}
