package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessReporter is implemented by the invalidation consumer.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

type readyBody struct {
	Status     string  `json:"status"`
	Reason     string  `json:"reason,omitempty"`
	Partitions []int32 `json:"partitions,omitempty"`
}

// Readiness reports 503 until the invalidation consumer holds a group
// session; before that, cached layers can miss invalidations.
func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		code := http.StatusOK
		body := readyBody{Status: "ready"}
		if ready, parts := rr.Readiness(); ready {
			body.Partitions = parts
		} else {
			code = http.StatusServiceUnavailable
			body.Status = "not_ready"
			body.Reason = "invalidation consumer has no partition assignment"
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}
