package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammed-shakir/layer-ingest/internal/core/httpclient"
)

const fcBody = `{"type":"FeatureCollection","features":[]}`

type upstreamRecorder struct {
	mu         sync.Mutex
	lastHeader http.Header
	calls      int
}

func (u *upstreamRecorder) record(r *http.Request) {
	u.mu.Lock()
	u.lastHeader = r.Header.Clone()
	u.calls++
	u.mu.Unlock()
}

func newExecutor() *Executor {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), httpclient.NewOutbound(5*time.Second), 0)
}

func TestFetch_SendsAcceptAndDecodesJSON(t *testing.T) {
	up := &upstreamRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up.record(r)
		w.Header().Set("Content-Type", "application/geo+json; charset=utf-8")
		_, _ = w.Write([]byte(fcBody))
	}))
	defer srv.Close()

	p, err := newExecutor().Fetch(context.Background(), srv.URL+"/layer")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := up.lastHeader.Get("Accept"); got != AcceptHeader {
		t.Fatalf("Accept=%q want %q", got, AcceptHeader)
	}
	m, ok := p.Decoded.(map[string]any)
	if !ok || m["type"] != "FeatureCollection" {
		t.Fatalf("decoded=%#v", p.Decoded)
	}
	if string(p.Body) != fcBody || p.URL != srv.URL+"/layer" {
		t.Fatalf("payload body=%q url=%q", p.Body, p.URL)
	}
}

func TestFetch_TextFallbackForMislabelledGeoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("\xef\xbb\xbf  " + fcBody + "\n"))
	}))
	defer srv.Close()

	p, err := newExecutor().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, ok := p.Decoded.(map[string]any); !ok {
		t.Fatalf("text fallback did not decode: %#v", p.Decoded)
	}
}

func TestFetch_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	_, err := newExecutor().Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrUndecodable) {
		t.Fatalf("err=%v want ErrUndecodable", err)
	}
	var te *TruncatedError
	if errors.As(err, &te) {
		t.Fatal("complete body must not be reported as truncated")
	}
}

func TestFetch_TruncatedBody(t *testing.T) {
	full := `{"type":"FeatureCollection","features":[` + strings.Repeat(`{"type":"Feature","geometry":null,"properties":{}},`, 50)
	partial := full[:200]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(full)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(partial))
	}))
	defer srv.Close()

	_, err := newExecutor().Fetch(context.Background(), srv.URL)
	var te *TruncatedError
	if !errors.As(err, &te) {
		t.Fatalf("err=%v want *TruncatedError", err)
	}
	if te.Expected != int64(len(full)) || te.Received != int64(len(partial)) {
		t.Fatalf("expected=%d received=%d want %d/%d", te.Expected, te.Received, len(full), len(partial))
	}
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "srsName not supported", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newExecutor().Fetch(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("err=%v want StatusError 400", err)
	}
	if !strings.Contains(se.Snippet, "srsName") {
		t.Fatalf("snippet=%q", se.Snippet)
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fcBody))
	}))
	defer srv.Close()

	e := New(nil, nil, 10)
	if _, err := e.Fetch(context.Background(), srv.URL); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("err=%v want ErrBodyTooLarge", err)
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := newExecutor().Fetch(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestIsJSONContentType(t *testing.T) {
	cases := map[string]bool{
		"application/json":                  true,
		"application/geo+json":              true,
		"application/vnd.geo+json; q=1":     true,
		"Application/JSON; charset=UTF-8":   true,
		"text/plain":                        false,
		"text/xml; subtype=gml/3.1.1":       false,
		"":                                  false,
	}
	for ct, want := range cases {
		if got := IsJSONContentType(ct); got != want {
			t.Fatalf("IsJSONContentType(%q)=%v want %v", ct, got, want)
		}
	}
}
