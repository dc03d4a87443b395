// Package executor performs upstream layer fetches and decodes their bodies.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/layer-ingest/internal/core/observability"
)

const (
	// AcceptHeader prefers GeoJSON but tolerates anything.
	AcceptHeader = "application/json, application/geo+json, */*;q=0.1"

	DefaultMaxBody = 256 << 20
)

var (
	// ErrUndecodable means the body was received in full but is not JSON.
	ErrUndecodable  = errors.New("executor: response body is not json")
	ErrBodyTooLarge = errors.New("executor: response body exceeds limit")
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code    int
	Snippet string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("upstream status %d", e.Code)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Snippet)
}

// TruncatedError reports a body that failed to parse and was shorter than
// its declared Content-Length.
type TruncatedError struct {
	Expected int64
	Received int64
	Err      error
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated response: received %d of %d bytes: %v", e.Received, e.Expected, e.Err)
}

func (e *TruncatedError) Unwrap() error { return e.Err }

// Payload is one fetched body. Decoded holds the generic JSON value.
type Payload struct {
	URL           string
	Body          []byte
	ContentType   string
	ContentLength int64
	Decoded       any
}

type Interface interface {
	Fetch(ctx context.Context, rawURL string) (Payload, error)
}

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	maxBody  int64
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, maxBody int64) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Executor{
		logger:   logger,
		client:   client,
		maxBody:  maxBody,
		startNow: time.Now,
	}
}

// Fetch GETs rawURL and decodes the body as JSON. JSON content types are
// decoded directly; anything else is retried as text in case the server
// mislabelled GeoJSON.
func (e *Executor) Fetch(ctx context.Context, rawURL string) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", AcceptHeader)

	start := e.startNow()
	resp, err := e.client.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency("layer_source", err, time.Since(start).Seconds())
		return Payload{}, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		serr := &StatusError{Code: resp.StatusCode, Snippet: strings.TrimSpace(string(b))}
		observability.ObserveUpstreamLatency("layer_source", serr, time.Since(start).Seconds())
		return Payload{}, serr
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, e.maxBody+1))
	observability.ObserveUpstreamLatency("layer_source", readErr, time.Since(start).Seconds())
	if int64(len(body)) > e.maxBody {
		return Payload{}, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, e.maxBody)
	}
	if readErr != nil && ctx.Err() != nil {
		return Payload{}, fmt.Errorf("read body: %w", ctx.Err())
	}

	p := Payload{
		URL:           rawURL,
		Body:          body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}

	decoded, perr := decode(body, p.ContentType)
	if perr == nil {
		p.Decoded = decoded
		return p, nil
	}

	received := int64(len(body))
	if p.ContentLength > received {
		return Payload{}, &TruncatedError{Expected: p.ContentLength, Received: received, Err: perr}
	}
	if readErr != nil {
		return Payload{}, fmt.Errorf("read body: %w", readErr)
	}
	e.logger.Debug("undecodable layer body",
		"content_type", p.ContentType,
		"bytes", received,
		"host", hostOf(rawURL))
	return Payload{}, fmt.Errorf("%w: %w", ErrUndecodable, perr)
}

func decode(body []byte, contentType string) (any, error) {
	var v any
	if IsJSONContentType(contentType) {
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return v, nil
	}
	text := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if err := json.Unmarshal(text, &v); err != nil {
		return nil, fmt.Errorf("parse text as json: %w", err)
	}
	return v, nil
}

// IsJSONContentType accepts application/json, application/geo+json and any
// other +json media type.
func IsJSONContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
