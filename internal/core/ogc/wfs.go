package ogc

import (
	"net/url"
	"strings"
)

// SRSWGS84 is the srsName requested from WFS endpoints that did not ask for one.
const SRSWGS84 = "EPSG:4326"

// IsWFS reports whether the query looks like a WFS request: service=WFS or
// request=GetFeature, with keys and values matched case-insensitively.
func IsWFS(u *url.URL) bool {
	if u == nil {
		return false
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			v = strings.TrimSpace(v)
			switch {
			case strings.EqualFold(k, "service") && strings.EqualFold(v, "WFS"):
				return true
			case strings.EqualFold(k, "request") && strings.EqualFold(v, "GetFeature"):
				return true
			}
		}
	}
	return false
}

// HasSRSName reports whether any casing of srsName is present.
func HasSRSName(u *url.URL) bool {
	if u == nil {
		return false
	}
	for k := range u.Query() {
		if strings.EqualFold(k, "srsname") {
			return true
		}
	}
	return false
}

// FetchCandidates lists the URLs to try for a layer source, in order. WFS
// URLs without an srsName get an EPSG:4326 variant first; the original URL
// is always the last candidate. The existing query string is kept verbatim.
func FetchCandidates(raw string) []string {
	u, err := url.Parse(raw)
	if err != nil || !IsWFS(u) || HasSRSName(u) {
		return []string{raw}
	}
	withSRS := *u
	if withSRS.RawQuery == "" {
		withSRS.RawQuery = "srsName=" + SRSWGS84
	} else {
		withSRS.RawQuery = strings.TrimRight(withSRS.RawQuery, "&") + "&srsName=" + SRSWGS84
	}
	return []string{withSRS.String(), raw}
}
