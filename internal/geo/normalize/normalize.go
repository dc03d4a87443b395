// Package normalize converts the JSON shapes returned by third-party geodata
// servers into one canonical GeoJSON FeatureCollection.
package normalize

import (
	"errors"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/layer-ingest/internal/core/model"
)

// ErrUnusablePayload reports a payload that yields no features.
var ErrUnusablePayload = errors.New("normalize: unusable payload")

type shape int

const (
	shapeUnknown shape = iota
	shapeFeatureCollection
	shapeFeature
	shapeGeometry
	shapeGeometryCollection
	shapeArray
)

func (s shape) String() string {
	switch s {
	case shapeFeatureCollection:
		return "FeatureCollection"
	case shapeFeature:
		return "Feature"
	case shapeGeometry:
		return "Geometry"
	case shapeGeometryCollection:
		return "GeometryCollection"
	case shapeArray:
		return "Array"
	default:
		return "Unknown"
	}
}

var geometryKinds = map[string]bool{
	"Point":           true,
	"MultiPoint":      true,
	"LineString":      true,
	"MultiLineString": true,
	"Polygon":         true,
	"MultiPolygon":    true,
}

// Result is the outcome of a normalization run.
type Result struct {
	Collection *geojson.FeatureCollection
	// Shape is the detected input shape, for logging.
	Shape string
	// Dropped counts input elements that could not be converted.
	Dropped int
}

// Normalize converts a decoded JSON value into a FeatureCollection.
// Accepted shapes, in order of precedence: FeatureCollection, Feature, bare
// geometry, GeometryCollection, and arrays of features/geometries. Every
// other value returns ErrUnusablePayload.
func Normalize(raw any) (Result, error) {
	s := classify(raw)
	res := Result{Shape: s.String()}
	b := &builder{}

	switch s {
	case shapeFeatureCollection:
		m := raw.(map[string]any)
		feats, _ := m["features"].([]any)
		for _, el := range feats {
			b.element(el)
		}
		res.Collection = b.collection(m)
		res.Dropped = b.dropped
		// an empty but well-formed collection is a valid (empty) layer
		return res, nil

	case shapeFeature:
		b.feature(raw.(map[string]any))
		res.Collection = b.collection(raw.(map[string]any))

	case shapeGeometry:
		b.geometry(raw.(map[string]any))
		res.Collection = b.collection(raw.(map[string]any))

	case shapeGeometryCollection:
		m := raw.(map[string]any)
		b.geometryCollection(m, asProps(m["properties"]), nil)
		res.Collection = b.collection(m)

	case shapeArray:
		for _, el := range raw.([]any) {
			switch classify(el) {
			case shapeFeature, shapeGeometry, shapeGeometryCollection:
				b.element(el)
			default:
				b.dropped++
			}
		}
		res.Collection = b.collection(nil)

	default:
		return res, ErrUnusablePayload
	}

	res.Dropped = b.dropped
	if len(res.Collection.Features) == 0 {
		return res, ErrUnusablePayload
	}
	return res, nil
}

// computes the discriminant used by Normalize
func classify(v any) shape {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return shapeUnknown
		}
		return shapeArray
	case map[string]any:
		typ, _ := t["type"].(string)
		if _, ok := t["features"].([]any); ok && (typ == "FeatureCollection" || typ == "") {
			return shapeFeatureCollection
		}
		if _, ok := t["geometry"]; ok && (typ == "Feature" || typ == "") {
			return shapeFeature
		}
		if _, ok := t["geometries"].([]any); ok && typ == "GeometryCollection" {
			return shapeGeometryCollection
		}
		if _, ok := t["coordinates"]; ok && geometryKinds[typ] {
			return shapeGeometry
		}
	}
	return shapeUnknown
}

type builder struct {
	features []*geojson.Feature
	dropped  int
}

func (b *builder) element(el any) {
	switch classify(el) {
	case shapeFeature:
		b.feature(el.(map[string]any))
	case shapeGeometry:
		b.geometry(el.(map[string]any))
	case shapeGeometryCollection:
		m := el.(map[string]any)
		b.geometryCollection(m, asProps(m["properties"]), nil)
	default:
		b.dropped++
	}
}

func (b *builder) feature(m map[string]any) {
	props := asProps(m["properties"])
	if gm, ok := m["geometry"].(map[string]any); ok && classify(gm) == shapeGeometryCollection {
		b.geometryCollection(gm, props, featureID(m["id"]))
		return
	}
	g, ok := parseGeometry(m["geometry"])
	if !ok {
		b.dropped++
		return
	}
	f := geojson.NewFeature(g)
	f.ID = featureID(m["id"])
	f.Properties = props
	b.features = append(b.features, f)
}

func (b *builder) geometry(m map[string]any) {
	g, ok := parseGeometry(m)
	if !ok {
		b.dropped++
		return
	}
	b.features = append(b.features, geojson.NewFeature(g))
}

// explodes a GeometryCollection into one feature per member geometry;
// nested collections are flattened. A non-nil parentID is kept on every
// member unless shared already names an id.
func (b *builder) geometryCollection(m map[string]any, shared geojson.Properties, parentID any) {
	members := flattenCollection(m, nil)
	if len(members) == 0 {
		b.dropped++
		return
	}
	for i, gm := range members {
		g, ok := parseGeometry(gm)
		if !ok {
			b.dropped++
			continue
		}
		f := geojson.NewFeature(g)
		props := shared.Clone()
		if props == nil {
			props = geojson.Properties{}
		}
		props["index"] = i + 1
		if parentID != nil {
			f.ID = parentID
			if _, ok := props["id"]; !ok {
				props["id"] = parentID
			}
		}
		f.Properties = props
		b.features = append(b.features, f)
	}
}

func flattenCollection(m map[string]any, out []any) []any {
	geoms, _ := m["geometries"].([]any)
	for _, g := range geoms {
		if gm, ok := g.(map[string]any); ok && classify(gm) == shapeGeometryCollection {
			out = flattenCollection(gm, out)
			continue
		}
		out = append(out, g)
	}
	return out
}

// builds the collection, injecting default properties and carrying the
// top-level crs/bbox members of src
func (b *builder) collection(src map[string]any) *geojson.FeatureCollection {
	fc := model.NewCollection()
	for i, f := range b.features {
		if len(f.Properties) == 0 {
			f.Properties = geojson.Properties{}
			if f.ID != nil {
				f.Properties["id"] = f.ID
			} else {
				f.Properties["id"] = i + 1
			}
		}
		fc.Features = append(fc.Features, f)
	}
	if src == nil {
		return fc
	}
	if c, ok := src["crs"]; ok && model.CRSName(c) != "" {
		fc.ExtraMembers = geojson.Properties{"crs": c}
	}
	if bb := parseBBox(src["bbox"]); bb != nil {
		fc.BBox = bb
	}
	return fc
}

func asProps(v any) geojson.Properties {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(geojson.Properties, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}

// GeoJSON ids are strings or numbers; anything else is ignored
func featureID(v any) any {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return t
	case float64:
		return t
	}
	return nil
}
