// Package invalidation defines the events that tell the service a layer
// source has changed upstream.
package invalidation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	OpChanged = "changed"
	OpRemoved = "removed"
)

var (
	ErrUndecodable = errors.New("invalidation: undecodable event")
	ErrInvalid     = errors.New("invalidation: invalid event")
)

// Event announces that every cached layer fetched from URL is stale.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	URL     string    `json:"url"`
	TS      time.Time `json:"ts"`
	// Seq orders events per URL; zero disables dedupe for the event.
	Seq    uint64 `json:"seq,omitempty"`
	Source string `json:"source,omitempty"`
}

// Decode parses and validates one event. Errors wrap ErrUndecodable or
// ErrInvalid.
func Decode(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	ev.URL = ev.Key()
	return ev, nil
}

// Key is the source URL the event applies to, as passed to the cache.
func (e Event) Key() string { return strings.TrimSpace(e.URL) }

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("%w: version %d, want 1", ErrInvalid, e.Version)
	}
	if e.Op != OpChanged && e.Op != OpRemoved {
		return fmt.Errorf("%w: op %q, want %s or %s", ErrInvalid, e.Op, OpChanged, OpRemoved)
	}
	raw := e.Key()
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrInvalid)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be absolute http(s), got %q", ErrInvalid, raw)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("%w: ts is required", ErrInvalid)
	}
	return nil
}
