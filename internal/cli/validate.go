package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nwbio/internal/app"
)

type validateOptions struct {
	Namespace      string
	Extensions     []string
	ListNamespaces bool
	NoCached       bool
}

func newValidateCommand() *cobra.Command {
	opts := validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate files against their schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Namespace, "ns", "n", "", "Namespace to validate against (default: the namespace of the file root)")
	cmd.Flags().StringSliceVar(&opts.Extensions, "extension", nil, "Extension namespace files to load")
	cmd.Flags().BoolVar(&opts.ListNamespaces, "list-namespaces", false, "List the namespaces cached in each file and exit")
	cmd.Flags().BoolVar(&opts.NoCached, "no-cached", false, "Ignore the namespaces cached in the files")
	_ = viper.BindPFlag("namespace", cmd.Flags().Lookup("ns"))
	_ = viper.BindPFlag("extensions", cmd.Flags().Lookup("extension"))
	_ = viper.BindPFlag("no_cached", cmd.Flags().Lookup("no-cached"))
	return cmd
}

func runValidate(ctx context.Context, cmd *cobra.Command, paths []string, opts validateOptions) error {
	service := newAppService()
	out := cmd.OutOrStdout()
	if opts.ListNamespaces {
		for _, path := range paths {
			result, err := service.ListNamespaces(ctx, app.NamespacesRequest{Path: path})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s:\n", path)
			for _, ns := range result.Namespaces {
				fmt.Fprintf(out, "- %s %s\n", ns.Name, ns.Version)
			}
		}
		return nil
	}

	result, err := service.Validate(ctx, app.ValidateRequest{
		Paths:      paths,
		Namespace:  resolveString(cmd, opts.Namespace, "namespace", "ns"),
		Extensions: resolveStrings(cmd, opts.Extensions, "extensions", "extension"),
		UseCached:  !resolveBool(cmd, opts.NoCached, "no_cached", "no-cached"),
	})
	if err != nil {
		return err
	}
	for _, file := range result.Files {
		if len(file.Errors) == 0 {
			fmt.Fprintf(out, "%s: valid against %s\n", file.Path, file.Namespace)
			continue
		}
		fmt.Fprintf(out, "%s: %d errors against %s\n", file.Path, len(file.Errors), file.Namespace)
		for _, violation := range file.Errors {
			fmt.Fprintf(out, "- %s\n", violation.Error())
		}
	}
	if n := result.ErrorCount(); n > 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("validation found %d errors", n))
	}
	return nil
}

func resolveString(cmd *cobra.Command, value string, key string, flagName string) string {
	if cmd == nil {
		if value != "" {
			return value
		}
		return viper.GetString(key)
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetString(key)
}

func resolveStrings(cmd *cobra.Command, values []string, key string, flagName string) []string {
	if cmd == nil {
		if len(values) > 0 {
			return values
		}
		return viper.GetStringSlice(key)
	}
	if flagChanged(cmd, flagName) {
		return values
	}
	return viper.GetStringSlice(key)
}

func resolveBool(cmd *cobra.Command, value bool, key string, flagName string) bool {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetBool(key)
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil || strings.TrimSpace(name) == "" {
		return false
	}
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag.Changed
	}
	if flag := cmd.PersistentFlags().Lookup(name); flag != nil {
		return flag.Changed
	}
	return false
}
