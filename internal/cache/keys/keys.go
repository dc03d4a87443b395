// Package keys derives stable identifiers from layer source URLs.
package keys

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const maxLabelLen = 80

// Fingerprint is a short hash of the source URL, used in logs and file names.
// The cache itself is keyed by the full URL.
func Fingerprint(rawURL string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.TrimSpace(rawURL)))
}

// ETag returns a strong entity tag for a serialized layer body.
func ETag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// Label is a readable, filesystem-safe rendering of host, path and the
// layer-ish query parameters of a URL.
func Label(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return truncate(sanitize(raw))
	}
	parts := []string{u.Host}
	if p := strings.Trim(u.Path, "/"); p != "" {
		parts = append(parts, p)
	}
	q := u.Query()
	for _, k := range slices.Sorted(maps.Keys(q)) {
		switch strings.ToLower(k) {
		case "typename", "typenames", "layers", "layer", "coverageid":
			parts = append(parts, q.Get(k))
		}
	}
	return truncate(sanitize(strings.Join(parts, "_")))
}

func truncate(s string) string {
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return strings.Trim(s, "-_")
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' || r == '/':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// any other rune (including ':' and non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
