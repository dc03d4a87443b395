// Package model defines the canonical layer types shared across the service.
package model

import (
	"strings"

	"github.com/paulmach/orb/geojson"
)

// EPSG4326 is the CRS name written onto collections after reprojection.
const EPSG4326 = "EPSG:4326"

// EmptyCollectionJSON is the body served for layers reported as empty.
const EmptyCollectionJSON = `{"type":"FeatureCollection","features":[]}`

// NewCollection returns an empty canonical FeatureCollection.
func NewCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0)
	return fc
}

// DeclaredCRS returns the CRS name carried in the collection's "crs" member,
// accepting the GeoJSON-2008 named form as well as a bare {"name": ...} or a
// plain string.
func DeclaredCRS(fc *geojson.FeatureCollection) string {
	if fc == nil || fc.ExtraMembers == nil {
		return ""
	}
	return CRSName(fc.ExtraMembers["crs"])
}

// CRSName extracts a CRS name from a decoded "crs" member.
func CRSName(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if props, ok := t["properties"].(map[string]any); ok {
			if s, ok := props["name"].(string); ok {
				return strings.TrimSpace(s)
			}
		}
		if s, ok := t["name"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// SetDeclaredCRS stores name as a GeoJSON-2008 named CRS; an empty name
// removes the member.
func SetDeclaredCRS(fc *geojson.FeatureCollection, name string) {
	if fc == nil {
		return
	}
	if name == "" {
		if fc.ExtraMembers != nil {
			delete(fc.ExtraMembers, "crs")
		}
		return
	}
	if fc.ExtraMembers == nil {
		fc.ExtraMembers = geojson.Properties{}
	}
	fc.ExtraMembers["crs"] = map[string]any{
		"type":       "name",
		"properties": map[string]any{"name": name},
	}
}

// ShallowCopy returns a collection sharing geometries with fc but owning its
// feature slice, property maps and members.
func ShallowCopy(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := NewCollection()
	if fc == nil {
		return out
	}
	if len(fc.BBox) > 0 {
		out.BBox = append(geojson.BBox(nil), fc.BBox...)
	}
	if len(fc.ExtraMembers) > 0 {
		out.ExtraMembers = make(geojson.Properties, len(fc.ExtraMembers))
		for k, v := range fc.ExtraMembers {
			out.ExtraMembers[k] = v
		}
	}
	out.Features = make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		cp := *f
		cp.Properties = f.Properties.Clone()
		out.Features = append(out.Features, &cp)
	}
	return out
}
