package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/layer-ingest/internal/core/ogc"
)

type resolveOutput struct {
	ogc.ServiceInfo
	TileTemplate string `json:"tileTemplate,omitempty"`
}

func newResolveCmd() *cobra.Command {
	var kind, matrixSet string
	cmd := &cobra.Command{
		Use:   "resolve URL",
		Short: "Derive base URL, layer name and legend for an OGC service URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := ogc.ParseKind(kind)
			if err != nil {
				return err
			}
			out := resolveOutput{ServiceInfo: ogc.ParseServiceURL(args[0], k)}
			if k == ogc.KindWMTS {
				out.TileTemplate = ogc.WMTSTileTemplate(out.ServiceInfo, matrixSet)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "wms", "Service kind (wms, wmts, wcs)")
	cmd.Flags().StringVar(&matrixSet, "matrix-set", "", "WMTS tile matrix set (default from URL or "+ogc.DefaultMatrixSet+")")
	return cmd
}
