package ogc

import (
	"net/url"
	"testing"
)

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return u
}

func TestIsWFS(t *testing.T) {
	cases := map[string]bool{
		"http://gs/ows?service=WFS&request=GetFeature&typeNames=a": true,
		"http://gs/ows?SERVICE=wfs":                                true,
		"http://gs/wfs?Request=getfeature":                         true,
		"http://gs/wms?service=WMS&request=GetMap":                 false,
		"http://gs/layers/roads.geojson":                           false,
	}
	for raw, want := range cases {
		if got := IsWFS(mustURL(t, raw)); got != want {
			t.Fatalf("IsWFS(%q)=%v want %v", raw, got, want)
		}
	}
	if IsWFS(nil) {
		t.Fatal("IsWFS(nil) should be false")
	}
}

func TestHasSRSName_AnyCase(t *testing.T) {
	for _, raw := range []string{
		"http://gs/ows?service=WFS&srsName=EPSG:3857",
		"http://gs/ows?service=WFS&SRSNAME=EPSG:3857",
		"http://gs/ows?service=WFS&srsname=",
	} {
		if !HasSRSName(mustURL(t, raw)) {
			t.Fatalf("HasSRSName(%q)=false", raw)
		}
	}
	if HasSRSName(mustURL(t, "http://gs/ows?service=WFS")) {
		t.Fatal("unexpected srsName")
	}
}

func TestFetchCandidates(t *testing.T) {
	raw := "http://gs/ows?service=WFS&request=GetFeature&typeNames=demo%3Aroads&outputFormat=application/json"
	got := FetchCandidates(raw)
	if len(got) != 2 {
		t.Fatalf("candidates=%v want 2", got)
	}
	if want := raw + "&srsName=EPSG:4326"; got[0] != want {
		t.Fatalf("first=%q want %q", got[0], want)
	}
	if got[1] != raw {
		t.Fatalf("last=%q want original", got[1])
	}

	for _, raw := range []string{
		"http://gs/ows?service=WFS&srsName=EPSG:3857",
		"http://static/roads.geojson",
		"%zz",
	} {
		if got := FetchCandidates(raw); len(got) != 1 || got[0] != raw {
			t.Fatalf("FetchCandidates(%q)=%v want only original", raw, got)
		}
	}
}
