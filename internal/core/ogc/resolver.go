// Package ogc parses OGC service URLs (WFS, WMS, WMTS, WCS) and builds the
// derived legend and tile URLs used when rendering layers.
package ogc

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type Kind string

const (
	KindWMS  Kind = "wms"
	KindWMTS Kind = "wmts"
	KindWCS  Kind = "wcs"
)

// ErrUnparseableServiceURL marks URLs the resolver could not make sense of.
var ErrUnparseableServiceURL = errors.New("ogc: unparseable service url")

const defaultImageFormat = "image/png"

// DefaultMatrixSet is the GeoServer gridset used when none is given.
const DefaultMatrixSet = "EPSG:900913"

// ServiceInfo is derived per request and never cached. An empty LayerName
// means no legend can be shown.
type ServiceInfo struct {
	Kind        Kind   `json:"kind"`
	BaseURL     string `json:"baseUrl"`
	LayerName   string `json:"layerName"`
	Workspace   string `json:"workspace,omitempty"`
	Version     string `json:"version,omitempty"`
	LegendURL   string `json:"legendUrl,omitempty"`
	Format      string `json:"format,omitempty"`
	Transparent bool   `json:"transparent,omitempty"`
	MatrixSet   string `json:"matrixSet,omitempty"`
}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindWMS, KindWMTS, KindWCS:
		return k, nil
	default:
		return "", fmt.Errorf("unknown service kind %q", s)
	}
}

// ParseServiceURL never fails: unusable input yields an info with empty
// identifiers.
func ParseServiceURL(raw string, kind Kind) ServiceInfo {
	info, err := ParseService(raw, kind)
	if err != nil {
		return ServiceInfo{Kind: kind}
	}
	return info
}

// ParseService splits a service URL into its base and layer identifiers.
func ParseService(raw string, kind Kind) (ServiceInfo, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ServiceInfo{}, fmt.Errorf("%w: %w", ErrUnparseableServiceURL, err)
	}
	if u.Host == "" && !strings.HasPrefix(u.Path, "/") {
		return ServiceInfo{}, fmt.Errorf("%w: %q has no host or absolute path", ErrUnparseableServiceURL, raw)
	}
	q := foldQuery(u.Query())

	switch kind {
	case KindWMS:
		return parseWMS(u, q), nil
	case KindWMTS:
		return parseWMTS(u, q), nil
	case KindWCS:
		return parseWCS(u, q), nil
	default:
		return ServiceInfo{}, fmt.Errorf("%w: unknown kind %q", ErrUnparseableServiceURL, kind)
	}
}

func parseWMS(u *url.URL, q map[string]string) ServiceInfo {
	info := ServiceInfo{
		Kind:        KindWMS,
		BaseURL:     baseOf(u, u.Path),
		Version:     q["version"],
		Format:      orDefault(q["format"], defaultImageFormat),
		Transparent: true,
	}
	if v, ok := q["transparent"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			info.Transparent = b
		}
	}
	info.LayerName = q["layers"]
	// legend of a layer group shows its first member
	first, _, _ := strings.Cut(info.LayerName, ",")
	info.Workspace = workspaceOf(first)
	info.LegendURL = LegendURL(info.BaseURL, first)
	return info
}

func parseWMTS(u *url.URL, q map[string]string) ServiceInfo {
	info := ServiceInfo{
		Kind:      KindWMTS,
		Version:   q["version"],
		Format:    orDefault(q["format"], defaultImageFormat),
		MatrixSet: q["tilematrixset"],
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	info.LayerName = q["layer"]
	if info.LayerName == "" {
		info.LayerName = restLayer(segs)
	}
	if info.LayerName == "" {
		for _, s := range segs {
			if isQualifiedName(s) {
				info.LayerName = s
				break
			}
		}
	}
	info.Workspace = workspaceOf(info.LayerName)

	prefix, isGWC := cutGWC(u.Path)
	if isGWC {
		info.BaseURL = baseOf(u, prefix+"/gwc/service/wmts")
	} else {
		info.BaseURL = baseOf(u, u.Path)
	}
	info.LegendURL = LegendURL(baseOf(u, wmtsLegendPath(u.Path)), info.LayerName)
	return info
}

func parseWCS(u *url.URL, q map[string]string) ServiceInfo {
	info := ServiceInfo{
		Kind:    KindWCS,
		BaseURL: baseOf(u, u.Path),
		Version: q["version"],
		Format:  q["format"],
	}
	coverage := q["coverageid"]
	if coverage == "" {
		coverage = q["coverage"]
	}
	// WCS 2.0 ids replace the workspace separator with "__"
	if ws, name, ok := strings.Cut(coverage, "__"); ok && ws != "" && name != "" && !strings.Contains(coverage, ":") {
		coverage = ws + ":" + name
	}
	info.LayerName = coverage
	info.Workspace = workspaceOf(coverage)
	info.LegendURL = LegendURL(baseOf(u, wcsLegendPath(u.Path)), coverage)
	return info
}

// LegendURL builds a WMS GetLegendGraphic request for layer on base.
func LegendURL(base, layer string) string {
	if base == "" || layer == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "service=WMS&version=1.1.0&request=GetLegendGraphic&format=image/png&layer=" +
		url.QueryEscape(layer)
}

// WMTSTileTemplate returns a KVP GetTile URL with literal {z}, {x} and {y}
// placeholders, as consumed by XYZ tile layers.
func WMTSTileTemplate(info ServiceInfo, matrixSet string) string {
	if info.Kind != KindWMTS || info.BaseURL == "" || info.LayerName == "" {
		return ""
	}
	if matrixSet == "" {
		matrixSet = orDefault(info.MatrixSet, DefaultMatrixSet)
	}
	v := orDefault(info.Version, "1.0.0")
	ms := url.QueryEscape(matrixSet)
	var b strings.Builder
	b.WriteString(info.BaseURL)
	b.WriteString("?service=WMTS&request=GetTile&version=")
	b.WriteString(url.QueryEscape(v))
	b.WriteString("&layer=")
	b.WriteString(url.QueryEscape(info.LayerName))
	b.WriteString("&style=&tilematrixset=")
	b.WriteString(ms)
	b.WriteString("&format=")
	b.WriteString(url.QueryEscape(orDefault(info.Format, defaultImageFormat)))
	b.WriteString("&tilematrix=")
	b.WriteString(ms)
	b.WriteString(":{z}&tilerow={y}&tilecol={x}")
	return b.String()
}

func foldQuery(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k, vs := range v {
		if len(vs) == 0 {
			continue
		}
		k = strings.ToLower(k)
		if _, dup := out[k]; dup {
			continue
		}
		out[k] = strings.TrimSpace(vs[0])
	}
	return out
}

func baseOf(u *url.URL, path string) string {
	b := url.URL{Scheme: u.Scheme, Host: u.Host, User: u.User, Path: path}
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func isQualifiedName(s string) bool {
	ws, name, ok := strings.Cut(s, ":")
	return ok && ws != "" && name != "" && !strings.Contains(name, ":")
}

func workspaceOf(layer string) string {
	if isQualifiedName(layer) {
		ws, _, _ := strings.Cut(layer, ":")
		return ws
	}
	return ""
}

// segment after "rest" in GeoWebCache REST paths, e.g. gwc/rest/wmts/ws:layer/...
func restLayer(segs []string) string {
	for i, s := range segs {
		if !strings.EqualFold(s, "rest") || i+1 >= len(segs) {
			continue
		}
		next := segs[i+1]
		if strings.EqualFold(next, "wmts") && i+2 < len(segs) {
			next = segs[i+2]
		}
		if d, err := url.PathUnescape(next); err == nil {
			next = d
		}
		return next
	}
	return ""
}

// splits a path at its GeoWebCache segment, keeping any workspace prefix
func cutGWC(path string) (string, bool) {
	i := strings.Index(strings.ToLower(path), "/gwc/")
	if i < 0 {
		return path, false
	}
	return path[:i], true
}

func wmtsLegendPath(path string) string {
	if prefix, ok := cutGWC(path); ok {
		return prefix + "/wms"
	}
	trimmed := strings.TrimRight(path, "/")
	if i := strings.LastIndex(strings.ToLower(trimmed), "/wmts"); i >= 0 {
		return trimmed[:i] + "/wms" + trimmed[i+len("/wmts"):]
	}
	return trimmed + "/wms"
}

func wcsLegendPath(path string) string {
	trimmed := strings.TrimRight(path, "/")
	lower := strings.ToLower(trimmed)
	for _, suffix := range []string{"/wcs", "/ows"} {
		if strings.HasSuffix(lower, suffix) {
			return trimmed[:len(trimmed)-len(suffix)] + "/wms"
		}
	}
	return trimmed + "/wms"
}
