package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammed-shakir/layer-ingest/internal/core/executor"
)

// Terminal failures for a single layer. None of them affect other layers.
var (
	ErrNormalization = errors.New("ingest: unusable payload")
	ErrNetwork       = errors.New("ingest: fetch failed")
	ErrTruncated     = errors.New("ingest: truncated response")
	ErrEmptyLayer    = errors.New("ingest: no valid data after fallback")
)

// ErrValidation is recovered by the fallback path and never returned from
// Ingest.
var ErrValidation = errors.New("ingest: coordinates outside WGS84 bounds")

func classifyFetchErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var te *executor.TruncatedError
	switch {
	case errors.As(err, &te):
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	case errors.Is(err, executor.ErrUndecodable):
		return fmt.Errorf("%w: %w", ErrNormalization, err)
	default:
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
}

// outcome label for metrics
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrEmptyLayer):
		return "empty"
	case errors.Is(err, ErrNormalization):
		return "unusable"
	case errors.Is(err, ErrTruncated):
		return "truncated"
	default:
		return "network"
	}
}
