// Package crs classifies a layer's coordinates as WGS84 or Web-Mercator.
//
// Declared metadata always wins over the numeric heuristic. The heuristic
// looks at a single coordinate pair and can misfire for projected local
// systems whose numbers happen to fall inside the Mercator envelope; that
// trade-off is accepted.
package crs

import (
	"math"
	"regexp"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/layer-ingest/internal/core/model"
)

type Kind string

const (
	WGS84       Kind = "WGS84"
	WebMercator Kind = "WebMercator"
	Unknown     Kind = "unknown"
)

// MercatorExtent bounds the spherical Mercator world, with some slack.
const MercatorExtent = 20_050_000.0

var (
	mercatorPattern = regexp.MustCompile(`(?i)(\b(3857|900913|3785|102100|102113)\b|web[_ ]?mercator|google)`)
	wgs84Pattern    = regexp.MustCompile(`(?i)(\b4326\b|crs:?84\b|wgs[_ ]?84)`)
)

// locations of a declared CRS name in the payloads we see in the wild
var declaredPaths = []string{
	"crs.properties.name",
	"crs.name",
	"features.0.crs.properties.name",
	"features.0.crs.name",
	"0.crs.properties.name",
	"0.crs.name",
}

// Detect classifies the collection using, in order, the CRS declared in raw
// or fc, the magnitude of the first coordinate pair, and finally Unknown.
func Detect(raw []byte, fc *geojson.FeatureCollection) Kind {
	if k, ok := FromName(DeclaredName(raw, fc)); ok {
		return k
	}
	p, ok := FirstPoint(fc)
	if !ok {
		return Unknown
	}
	return Classify(p)
}

// DeclaredName returns the first CRS name declared by the payload.
func DeclaredName(raw []byte, fc *geojson.FeatureCollection) string {
	if len(raw) > 0 {
		for _, path := range declaredPaths {
			if r := gjson.GetBytes(raw, path); r.Exists() && r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
	}
	return model.DeclaredCRS(fc)
}

// FromName maps a declared CRS name onto a Kind.
func FromName(name string) (Kind, bool) {
	if name == "" {
		return Unknown, false
	}
	switch {
	case mercatorPattern.MatchString(name):
		return WebMercator, true
	case wgs84Pattern.MatchString(name):
		return WGS84, true
	}
	return Unknown, false
}

// Classify applies the magnitude heuristic to one coordinate pair.
func Classify(p orb.Point) Kind {
	x, y := math.Abs(p[0]), math.Abs(p[1])
	inMercator := x <= MercatorExtent && y <= MercatorExtent
	outsideLonLat := x > 180 || y > 90
	if inMercator && outsideLonLat {
		return WebMercator
	}
	return WGS84
}

// FirstPoint descends into the first feature carrying a geometry until a
// coordinate pair is reached.
func FirstPoint(fc *geojson.FeatureCollection) (orb.Point, bool) {
	if fc == nil {
		return orb.Point{}, false
	}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		return firstPoint(f.Geometry)
	}
	return orb.Point{}, false
}

func firstPoint(g orb.Geometry) (orb.Point, bool) {
	switch t := g.(type) {
	case orb.Point:
		return t, true
	case orb.MultiPoint:
		if len(t) > 0 {
			return t[0], true
		}
	case orb.LineString:
		if len(t) > 0 {
			return t[0], true
		}
	case orb.Ring:
		if len(t) > 0 {
			return t[0], true
		}
	case orb.MultiLineString:
		for _, l := range t {
			if len(l) > 0 {
				return l[0], true
			}
		}
	case orb.Polygon:
		for _, r := range t {
			if len(r) > 0 {
				return r[0], true
			}
		}
	case orb.MultiPolygon:
		for _, poly := range t {
			if p, ok := firstPoint(poly); ok {
				return p, true
			}
		}
	case orb.Collection:
		for _, m := range t {
			if p, ok := firstPoint(m); ok {
				return p, true
			}
		}
	}
	return orb.Point{}, false
}
