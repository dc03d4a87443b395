// Package health serves the liveness and readiness probes.
package health

import "net/http"

// Liveness only proves the process serves HTTP; it never checks upstream
// layer sources.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte("ok"))
	}
}
