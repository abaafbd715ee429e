package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nwbio/internal/app"
	"nwbio/internal/types"
)

type inspectOptions struct {
	Extensions []string
}

func newInspectCommand() *cobra.Command {
	opts := inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the tree of a file without reading dataset payloads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), cmd, args[0], opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.Extensions, "extension", nil, "Extension namespace files to load")
	_ = viper.BindPFlag("extensions", cmd.Flags().Lookup("extension"))
	return cmd
}

func runInspect(ctx context.Context, cmd *cobra.Command, path string, opts inspectOptions) error {
	service := newAppService()
	result, err := service.Inspect(ctx, app.InspectRequest{
		Path:       path,
		Extensions: resolveStrings(cmd, opts.Extensions, "extensions", "extension"),
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "root: %s/%s (schema %s)\n", result.Namespace, result.RootType, result.SchemaVersion)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tKIND\tTYPE\tDETAIL")
	for _, node := range result.Nodes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", node.Path, node.Kind, node.Type, nodeDetail(node))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "payload chunks read: %d\n", result.Stats.ChunksRead)
	return nil
}

func nodeDetail(node app.InspectNode) string {
	switch node.Kind {
	case types.NodeKindDataset:
		return strings.TrimSpace(fmt.Sprintf("%s %s", node.DType, types.FormatShape(node.Shape)))
	case types.NodeKindLink:
		return "-> " + node.Target
	}
	return ""
}
