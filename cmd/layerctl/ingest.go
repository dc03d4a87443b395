package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/layer-ingest/internal/cache/keys"
	"github.com/mohammed-shakir/layer-ingest/internal/cache/layercache"
	"github.com/mohammed-shakir/layer-ingest/internal/core/executor"
	"github.com/mohammed-shakir/layer-ingest/internal/core/httpclient"
	"github.com/mohammed-shakir/layer-ingest/internal/ingest"
)

type ingestOptions struct {
	outDir      string
	timeout     time.Duration
	concurrency int
	sample      int
}

type ingestOutcome struct {
	url  string
	res  ingest.Result
	path string
	err  error
}

func newIngestCmd(newLogger func() *slog.Logger) *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest URL...",
		Short: "Fetch layers and convert them to WGS84 GeoJSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, newLogger(), opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.outDir, "out", "o", "", "Write each layer to DIR/<label>-<fingerprint>.geojson")
	f.DurationVar(&opts.timeout, "timeout", 60*time.Second, "Per-request fetch timeout (0 disables)")
	f.IntVarP(&opts.concurrency, "concurrency", "c", 4, "Number of layers fetched in parallel")
	f.IntVar(&opts.sample, "validation-sample", ingest.DefaultValidationSample, "Features checked after reprojection")
	return cmd
}

func runIngest(cmd *cobra.Command, log *slog.Logger, opts *ingestOptions, urls []string) error {
	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	exec := executor.New(log, httpclient.NewOutbound(opts.timeout), executor.DefaultMaxBody)
	p := ingest.New(exec, layercache.New(layercache.Config{}), ingest.Options{
		Logger:           log,
		ValidationSample: opts.sample,
	})

	outcomes := make([]ingestOutcome, len(urls))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(1, opts.concurrency))
	for i, u := range urls {
		g.Go(func() error {
			o := ingestOutcome{url: u}
			o.res, o.err = p.Ingest(ctx, u)
			if o.err == nil && opts.outDir != "" {
				o.path = filepath.Join(opts.outDir, keys.Label(u)+"-"+keys.Fingerprint(u)+".geojson")
				if err := os.WriteFile(o.path, o.res.Body, 0o644); err != nil {
					// a broken output dir fails every layer, stop early
					return fmt.Errorf("write %s: %w", o.path, err)
				}
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	w := cmd.OutOrStdout()
	for _, o := range outcomes {
		switch {
		case errors.Is(o.err, ingest.ErrEmptyLayer):
			fmt.Fprintf(w, "empty %s\n", o.url)
		case o.err != nil:
			failed++
			fmt.Fprintf(w, "fail  %s: %v\n", o.url, o.err)
		default:
			fmt.Fprintf(w, "ok    %s features=%d crs=%s reprojected=%t fallback=%t dropped=%d",
				o.url, len(o.res.Collection.Features), o.res.CRS, o.res.Reprojected, o.res.FellBack, o.res.Dropped)
			if o.path != "" {
				fmt.Fprintf(w, " out=%s", o.path)
			}
			fmt.Fprintln(w)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d layers failed", failed, len(urls))
	}
	return nil
}
