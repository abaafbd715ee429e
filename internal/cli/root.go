package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nwbio/internal/app"
	"nwbio/internal/errs"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "NWBIO"

type RootConfig struct {
	ConfigFile  string
	LogLevel    string
	ChunkBytes  int
	CacheChunks int
	LockTimeout time.Duration
	CacheSpec   bool
}

func Execute() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nwbio: %s\n", errorMessage(err))
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	defaults := app.DefaultConfig()
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "nwbio",
		Short:         "Read, write, validate and export schema-governed data files",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"))
			cmd.SetContext(log.Logger.WithContext(cmd.Context()))
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	flags.IntVar(&cfg.ChunkBytes, "chunk-bytes", defaults.ChunkBytes, "Upper bound on the size of one stored chunk")
	flags.IntVar(&cfg.CacheChunks, "cache-chunks", defaults.CacheChunks, "Decoded chunks kept in memory per session")
	flags.DurationVar(&cfg.LockTimeout, "lock-timeout", defaults.LockTimeout, "How long to wait for a file held by another process")
	flags.BoolVar(&cfg.CacheSpec, "cache-spec", defaults.CacheSpec, "Store the loaded namespaces in written files")
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("chunk_bytes", flags.Lookup("chunk-bytes"))
	_ = viper.BindPFlag("cache_chunks", flags.Lookup("cache-chunks"))
	_ = viper.BindPFlag("lock_timeout", flags.Lookup("lock-timeout"))
	_ = viper.BindPFlag("cache_spec", flags.Lookup("cache-spec"))

	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newInspectCommand())
	cmd.AddCommand(newExportCommand())
	cmd.AddCommand(newNamespacesCommand())
	return cmd
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("nwbio")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/nwbio")
	if err := viper.ReadInConfig(); err != nil {
		return nil
	}
	return nil
}

// setupLogging writes to stderr so command output on stdout stays
// machine readable.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.DefaultContextLogger = &log.Logger
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func newAppService() app.Service {
	return app.NewService(app.Config{
		ChunkBytes:  viper.GetInt("chunk_bytes"),
		CacheChunks: viper.GetInt("cache_chunks"),
		LockTimeout: viper.GetDuration("lock_timeout"),
		CacheSpec:   viper.GetBool("cache_spec"),
	})
}

// exitCodeForError maps failures to exit codes: 2 for bad input or
// schema conflicts, 3 for mode violations, 4 for invalid files and
// failed validation, 5 for anything missing.
func exitCodeForError(err error) int {
	switch errs.KindOf(err) {
	case errs.KindFormat:
		return 4
	case errs.KindUnknownType:
		return 5
	}
	switch errs.CodeOf(err) {
	case errbuilder.CodeInvalidArgument, errbuilder.CodeAlreadyExists:
		return 2
	case errbuilder.CodePermissionDenied:
		return 3
	case errbuilder.CodeFailedPrecondition:
		return 4
	case errbuilder.CodeNotFound, errbuilder.CodeInternal:
		return 5
	default:
		return 1
	}
}

func errorMessage(err error) string {
	var engine *errs.Error
	if errors.As(err, &engine) {
		return engine.Message()
	}
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}
