package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nwbio/internal/app"
)

type exportOptions struct {
	CoreVersion string
	Extensions  []string
}

func newExportCommand() *cobra.Command {
	opts := exportOptions{}
	cmd := &cobra.Command{
		Use:   "export SOURCE DEST",
		Short: "Copy a file into a new one written against the current schema",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), cmd, args[0], args[1], opts)
		},
	}
	cmd.Flags().StringVar(&opts.CoreVersion, "core-version", "", "Bundled core version to write (default: newest)")
	cmd.Flags().StringSliceVar(&opts.Extensions, "extension", nil, "Extension namespace files to load")
	_ = viper.BindPFlag("core_version", cmd.Flags().Lookup("core-version"))
	_ = viper.BindPFlag("extensions", cmd.Flags().Lookup("extension"))
	return cmd
}

func runExport(ctx context.Context, cmd *cobra.Command, src string, dst string, opts exportOptions) error {
	service := newAppService()
	result, err := service.Export(ctx, app.ExportRequest{
		SourcePath:  src,
		DestPath:    dst,
		CoreVersion: resolveString(cmd, opts.CoreVersion, "core_version", "core-version"),
		Extensions:  resolveStrings(cmd, opts.Extensions, "extensions", "extension"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d nodes to %s (%s %s)\n",
		result.Nodes, result.DestPath, result.Namespace, result.SchemaVersion)
	return nil
}
