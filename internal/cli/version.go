package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lexcache/internal/ir"
)

// VersionInfo is the JSON shape of the version command.
type VersionInfo struct {
	Engine       string `json:"engine"`
	SchemaFormat string `json:"schema_format"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lexcache version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			if formatter.Format == "json" {
				return formatter.Success(VersionInfo{Engine: ir.EngineVersion, SchemaFormat: ir.SchemaFormat})
			}
			fmt.Fprintf(formatter.Writer, "lexcache %s (schema format %s)\n", ir.EngineVersion, ir.SchemaFormat)
			return nil
		},
	}
}
