package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/layer-ingest/internal/logger"
)

type rootOptions struct {
	logLevel string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "layerctl",
		Short:         "Ingest map layers and resolve OGC service URLs",
		Long:          `Fetches vector layers in any supported format, converts them to WGS84 GeoJSON and inspects WMS, WMTS and WCS service URLs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	newLogger := func() *slog.Logger {
		zl := logger.Build(logger.Config{
			Level:     opts.logLevel,
			Console:   true,
			Component: "layerctl",
		}, stderr)
		return logger.NewSlog(&zl)
	}

	root.AddCommand(newIngestCmd(newLogger), newResolveCmd())
	return root
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
