package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/layer-ingest/internal/cache/keys"
	"github.com/mohammed-shakir/layer-ingest/internal/core/model"
	"github.com/mohammed-shakir/layer-ingest/internal/core/observability"
	"github.com/mohammed-shakir/layer-ingest/internal/core/ogc"
	"github.com/mohammed-shakir/layer-ingest/internal/ingest"
)

// status recorded when the client went away before the layer was ready
const statusClientClosed = 499

// Ingester produces the canonical collection for a layer source URL.
type Ingester interface {
	Ingest(ctx context.Context, rawURL string) (ingest.Result, error)
}

// Invalidator drops cached layers for a source URL.
type Invalidator interface {
	Invalidate(rawURL string) bool
}

// HandleLayer serves GET /layers?url=<source>.
func HandleLayer(logger *slog.Logger, in Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/layers", sw.code, time.Since(start).Seconds())
		}()

		src, err := ParseSourceURL(r)
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}

		res, err := in.Ingest(r.Context(), src)
		switch {
		case err == nil:
			writeLayer(sw, r, res)
		case errors.Is(err, context.Canceled):
			sw.code = statusClientClosed
		case errors.Is(err, ingest.ErrEmptyLayer):
			writeEmpty(sw, "empty")
		case errors.Is(err, ingest.ErrNormalization):
			writeEmpty(sw, "unusable")
		case errors.Is(err, context.DeadlineExceeded):
			http.Error(sw, "layer source timed out", http.StatusGatewayTimeout)
		default:
			logger.Debug("layer unavailable", "url", src, "err", err)
			http.Error(sw, "layer source unavailable: "+err.Error(), http.StatusBadGateway)
		}
	}
}

// HandleInvalidate serves DELETE /layers?url=<source>.
func HandleInvalidate(logger *slog.Logger, inv Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/layers", sw.code, time.Since(start).Seconds())
		}()

		src, err := ParseSourceURL(r)
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}
		removed := inv.Invalidate(src)
		observability.IncInvalidation("http", removed)
		logger.Info("layer invalidated", "url", src, "removed", removed)
		if !removed {
			http.Error(sw, "layer not cached", http.StatusNotFound)
			return
		}
		sw.WriteHeader(http.StatusNoContent)
	}
}

type resolveResponse struct {
	ogc.ServiceInfo
	TileTemplate string `json:"tileTemplate,omitempty"`
}

// HandleResolve serves GET /services/resolve?url=&kind=[&matrixSet=].
func HandleResolve(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/services/resolve", sw.code, time.Since(start).Seconds())
		}()

		q := r.URL.Query()
		raw := strings.TrimSpace(q.Get("url"))
		if raw == "" {
			http.Error(sw, "missing required parameter: url", http.StatusBadRequest)
			return
		}
		kind, err := ogc.ParseKind(q.Get("kind"))
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}

		info, err := ogc.ParseService(raw, kind)
		if err != nil {
			// degrade to "no legend"
			logger.Debug("unparseable service url", "url", raw, "err", err)
			info = ogc.ServiceInfo{Kind: kind}
		}
		out := resolveResponse{ServiceInfo: info}
		if kind == ogc.KindWMTS {
			out.TileTemplate = ogc.WMTSTileTemplate(info, strings.TrimSpace(q.Get("matrixSet")))
		}
		sw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(sw).Encode(out)
	}
}

// ParseSourceURL reads and checks the url query parameter.
func ParseSourceURL(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		return "", errors.New("missing required parameter: url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid url: scheme must be http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("invalid url: missing host")
	}
	return raw, nil
}

func writeLayer(w http.ResponseWriter, r *http.Request, res ingest.Result) {
	etag := keys.ETag(res.Body)
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("X-Cache", cacheLabel(res.FromCache))
	h.Set("X-Layer-CRS", string(res.CRS))
	h.Set("X-Layer-Reprojected", strconv.FormatBool(res.Reprojected))
	h.Set("X-Layer-Fallback", strconv.FormatBool(res.FellBack))
	h.Set("X-Layer-Dropped", strconv.Itoa(res.Dropped))
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Type", "application/geo+json")
	h.Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

// failed layers render as "no data"
func writeEmpty(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("X-Layer-Status", status)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(model.EmptyCollectionJSON))
}

func cacheLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
