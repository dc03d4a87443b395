package ogc

import (
	"errors"
	"strings"
	"testing"
)

func TestParseServiceURL_WMS(t *testing.T) {
	info := ParseServiceURL("https://maps.example.org/geoserver/wms?SERVICE=WMS&LAYERS=topp:states&VERSION=1.3.0&TRANSPARENT=false&FORMAT=image/jpeg", KindWMS)

	if info.BaseURL != "https://maps.example.org/geoserver/wms" {
		t.Fatalf("BaseURL=%q", info.BaseURL)
	}
	if info.LayerName != "topp:states" || info.Workspace != "topp" {
		t.Fatalf("layer=%q workspace=%q", info.LayerName, info.Workspace)
	}
	if info.Version != "1.3.0" || info.Format != "image/jpeg" || info.Transparent {
		t.Fatalf("version=%q format=%q transparent=%v", info.Version, info.Format, info.Transparent)
	}
	want := "https://maps.example.org/geoserver/wms?service=WMS&version=1.1.0&request=GetLegendGraphic&format=image/png&layer=topp%3Astates"
	if info.LegendURL != want {
		t.Fatalf("LegendURL=%q\nwant      %q", info.LegendURL, want)
	}
}

func TestParseServiceURL_WMSDefaults(t *testing.T) {
	info := ParseServiceURL("http://gs/geoserver/wms?layers=roads", KindWMS)
	if info.Format != "image/png" || !info.Transparent {
		t.Fatalf("format=%q transparent=%v want image/png,true", info.Format, info.Transparent)
	}
	if info.Workspace != "" {
		t.Fatalf("workspace=%q want empty", info.Workspace)
	}
}

func TestParseServiceURL_WMTS(t *testing.T) {
	cases := []struct {
		name, raw         string
		layer, workspace  string
		base, legendBase  string
	}{
		{
			name:       "kvp layer param",
			raw:        "https://gs/geoserver/gwc/service/wmts?REQUEST=GetCapabilities&LAYER=ne:countries",
			layer:      "ne:countries",
			workspace:  "ne",
			base:       "https://gs/geoserver/gwc/service/wmts",
			legendBase: "https://gs/geoserver/wms",
		},
		{
			name:       "rest path",
			raw:        "https://gs/geoserver/gwc/rest/wmts/ne:rivers/default/EPSG:900913/EPSG:900913:{z}/{y}/{x}?format=image/png",
			layer:      "ne:rivers",
			workspace:  "ne",
			base:       "https://gs/geoserver/gwc/service/wmts",
			legendBase: "https://gs/geoserver/wms",
		},
		{
			name:       "workspace-scoped endpoint",
			raw:        "https://gs/geoserver/ne/gwc/service/wmts?layer=ne:lakes",
			layer:      "ne:lakes",
			workspace:  "ne",
			base:       "https://gs/geoserver/ne/gwc/service/wmts",
			legendBase: "https://gs/geoserver/ne/wms",
		},
		{
			name:       "plain wmts with qualified segment",
			raw:        "https://tiles.example.org/wmts/osm:roads/tiles",
			layer:      "osm:roads",
			workspace:  "osm",
			base:       "https://tiles.example.org/wmts/osm:roads/tiles",
			legendBase: "https://tiles.example.org/wms/osm:roads/tiles",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := ParseServiceURL(tc.raw, KindWMTS)
			if info.LayerName != tc.layer || info.Workspace != tc.workspace {
				t.Fatalf("layer=%q workspace=%q", info.LayerName, info.Workspace)
			}
			if info.BaseURL != tc.base {
				t.Fatalf("BaseURL=%q want %q", info.BaseURL, tc.base)
			}
			if !strings.HasPrefix(info.LegendURL, tc.legendBase+"?service=WMS&") {
				t.Fatalf("LegendURL=%q want prefix %q", info.LegendURL, tc.legendBase)
			}
		})
	}
}

func TestParseServiceURL_WCS(t *testing.T) {
	cases := []struct {
		raw, layer, workspace, legendBase string
	}{
		{"https://gs/geoserver/wcs?service=WCS&version=2.0.1&coverageId=nurc__Arc_Sample", "nurc:Arc_Sample", "nurc", "https://gs/geoserver/wms"},
		{"https://gs/geoserver/ows?service=WCS&coverage=dem", "dem", "", "https://gs/geoserver/wms"},
		{"https://gs/coverages?service=WCS&COVERAGEID=sf:sfdem", "sf:sfdem", "sf", "https://gs/coverages/wms"},
	}
	for _, tc := range cases {
		info := ParseServiceURL(tc.raw, KindWCS)
		if info.LayerName != tc.layer || info.Workspace != tc.workspace {
			t.Fatalf("%s: layer=%q workspace=%q", tc.raw, info.LayerName, info.Workspace)
		}
		if !strings.HasPrefix(info.LegendURL, tc.legendBase+"?service=WMS&") {
			t.Fatalf("%s: LegendURL=%q want base %q", tc.raw, info.LegendURL, tc.legendBase)
		}
	}
}

func TestParseService_Unparseable(t *testing.T) {
	for _, raw := range []string{"", "not a url", "http://[::1", "%%"} {
		_, err := ParseService(raw, KindWMS)
		if !errors.Is(err, ErrUnparseableServiceURL) {
			t.Fatalf("ParseService(%q) err=%v want ErrUnparseableServiceURL", raw, err)
		}
		info := ParseServiceURL(raw, KindWMS)
		if info.LayerName != "" || info.LegendURL != "" {
			t.Fatalf("ParseServiceURL(%q) should degrade to empty info, got %+v", raw, info)
		}
	}
	if _, err := ParseService("http://gs/wms", Kind("wfs")); !errors.Is(err, ErrUnparseableServiceURL) {
		t.Fatalf("unknown kind err=%v", err)
	}
}

func TestParseService_MissingLayerHasNoLegend(t *testing.T) {
	info := ParseServiceURL("http://gs/geoserver/wms?service=WMS", KindWMS)
	if info.LayerName != "" || info.LegendURL != "" {
		t.Fatalf("want no layer and no legend, got %+v", info)
	}
}

func TestWMTSTileTemplate(t *testing.T) {
	info := ParseServiceURL("https://gs/geoserver/gwc/service/wmts?layer=ne:countries", KindWMTS)
	got := WMTSTileTemplate(info, "")
	want := "https://gs/geoserver/gwc/service/wmts?service=WMTS&request=GetTile&version=1.0.0" +
		"&layer=ne%3Acountries&style=&tilematrixset=EPSG%3A900913&format=image%2Fpng" +
		"&tilematrix=EPSG%3A900913:{z}&tilerow={y}&tilecol={x}"
	if got != want {
		t.Fatalf("template=\n%q\nwant\n%q", got, want)
	}
	if g := WMTSTileTemplate(info, "EPSG:4326"); !strings.Contains(g, "tilematrixset=EPSG%3A4326") {
		t.Fatalf("explicit matrix set ignored: %q", g)
	}
	if g := WMTSTileTemplate(ServiceInfo{Kind: KindWMS, BaseURL: "x", LayerName: "y"}, ""); g != "" {
		t.Fatalf("non-WMTS info produced %q", g)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(" WMTS "); err != nil || k != KindWMTS {
		t.Fatalf("ParseKind=%q,%v", k, err)
	}
	if _, err := ParseKind("wfs"); err == nil {
		t.Fatal("expected error for wfs")
	}
}
