package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/layer-ingest/internal/cache/layercache"
	"github.com/mohammed-shakir/layer-ingest/internal/core/config"
	"github.com/mohammed-shakir/layer-ingest/internal/core/executor"
	"github.com/mohammed-shakir/layer-ingest/internal/ingest"
)

type notReady struct{}

func (notReady) Readiness() (bool, []int32) { return false, nil }

func newTestServer(t *testing.T, d Deps) *httptest.Server {
	t.Helper()
	cfg := config.Config{MetricsEnabled: true}
	srv := httptest.NewServer(NewHandler(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), d))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestServer_LayerRoundTripAndInvalidate(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"type":"Point","coordinates":[18.07,59.33]}`)
	}))
	defer upstream.Close()

	p := ingest.New(executor.New(nil, nil, 0), layercache.New(layercache.Config{}), ingest.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := newTestServer(t, Deps{Layers: p, Invalidator: p})
	layerURL := srv.URL + "/layers?url=" + upstream.URL + "/point.json"

	resp, body := get(t, layerURL)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Cache") != "miss" {
		t.Fatalf("status=%d x-cache=%q", resp.StatusCode, resp.Header.Get("X-Cache"))
	}
	if !strings.Contains(body, `"coordinates":[18.07,59.33]`) || !strings.Contains(body, `"id":1`) {
		t.Fatalf("unexpected body %s", body)
	}

	resp, _ = get(t, layerURL)
	if resp.Header.Get("X-Cache") != "hit" {
		t.Fatalf("second request x-cache=%q want hit", resp.Header.Get("X-Cache"))
	}

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodDelete, layerURL, nil)
	dresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	_ = dresp.Body.Close()
	if dresp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status=%d want 204", dresp.StatusCode)
	}

	resp, _ = get(t, layerURL)
	if resp.Header.Get("X-Cache") != "miss" {
		t.Fatalf("after invalidate x-cache=%q want miss", resp.Header.Get("X-Cache"))
	}
}

func TestServer_HealthReadyAndMetrics(t *testing.T) {
	srv := newTestServer(t, Deps{Layers: nil, Ready: notReady{}})

	if resp, body := get(t, srv.URL+"/healthz"); resp.StatusCode != http.StatusOK || body != "ok" {
		t.Fatalf("healthz status=%d body=%q", resp.StatusCode, body)
	}
	if resp, _ := get(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d want 503", resp.StatusCode)
	}
	if resp, body := get(t, srv.URL+"/metrics"); resp.StatusCode != http.StatusOK || !strings.Contains(body, "go_goroutines") {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}
}

func TestRun_ListenErrorReturnedImmediately(t *testing.T) {
	cfg := config.Config{Addr: "no-port"}
	err := Run(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{})
	if err == nil || !strings.Contains(err.Error(), "listen") {
		t.Fatalf("err=%v want listen error", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.Config{Addr: "127.0.0.1:0"}
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{}) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(ShutdownGrace):
		t.Fatal("Run did not return after cancel")
	}
}
