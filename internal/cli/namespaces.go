package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nwbio/internal/app"
)

type namespacesOptions struct {
	Bundled bool
}

func newNamespacesCommand() *cobra.Command {
	opts := namespacesOptions{}
	cmd := &cobra.Command{
		Use:   "namespaces [FILE]",
		Short: "List loaded namespaces, or those cached in a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runNamespaces(cmd.Context(), cmd, path, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Bundled, "bundled", false, "List every bundled namespace version")
	return cmd
}

func runNamespaces(ctx context.Context, cmd *cobra.Command, path string, opts namespacesOptions) error {
	service := newAppService()
	result, err := service.ListNamespaces(ctx, app.NamespacesRequest{
		Path:    path,
		Bundled: resolveBool(cmd, opts.Bundled, "bundled", "bundled"),
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, ns := range result.Namespaces {
		fmt.Fprintf(out, "%s %s: %d types", ns.Name, ns.Version, ns.Types)
		if len(ns.Includes) > 0 {
			fmt.Fprintf(out, " (includes %s)", strings.Join(ns.Includes, ", "))
		}
		fmt.Fprintln(out)
	}
	return nil
}
