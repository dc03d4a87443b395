package keys

import (
	"regexp"
	"strings"
	"testing"
)

func TestFingerprint_DeterministicAndDistinct(t *testing.T) {
	a := Fingerprint("http://gs/ows?service=WFS&typeNames=demo:roads")
	b := Fingerprint("  http://gs/ows?service=WFS&typeNames=demo:roads ")
	c := Fingerprint("http://gs/ows?service=WFS&typeNames=demo:rivers")
	if a != b {
		t.Fatalf("surrounding whitespace changed fingerprint: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("different URLs share fingerprint %s", a)
	}
	if !regexp.MustCompile(`^[0-9a-f]{16}$`).MatchString(a) {
		t.Fatalf("fingerprint %q is not 16 hex chars", a)
	}
}

func TestETag_QuotedAndContentSensitive(t *testing.T) {
	e1 := ETag([]byte(`{"type":"FeatureCollection","features":[]}`))
	e2 := ETag([]byte(`{"type":"FeatureCollection","features":[ ]}`))
	if !strings.HasPrefix(e1, `"`) || !strings.HasSuffix(e1, `"`) || len(e1) != 18 {
		t.Fatalf("etag %q not a quoted 16-char tag", e1)
	}
	if e1 == e2 {
		t.Fatal("different bodies share an etag")
	}
}

func TestLabel(t *testing.T) {
	got := Label("https://maps.example.org/geoserver/ows?service=WFS&typeNames=demo:roads&outputFormat=application/json")
	want := "maps.example.org_geoserver_ows_demo-roads"
	if got != want {
		t.Fatalf("Label=%q want %q", got, want)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9._\-]*$`).MatchString(Label("not a url / ünïcode?")) {
		t.Fatal("label contains unsafe characters")
	}
	long := Label("http://h/" + strings.Repeat("segment/", 40))
	if len(long) > maxLabelLen {
		t.Fatalf("label length %d exceeds %d", len(long), maxLabelLen)
	}
}
