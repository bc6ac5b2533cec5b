// Package cli implements the bio command line.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/basicio/internal/config"
	"github.com/roach88/basicio/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	DBPath      string
	DatabaseURL string

	// Settings are loaded from the environment before any subcommand runs,
	// with the global flags above applied on top.
	Settings config.Settings
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the bio CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bio",
		Short: "bio - batch import with reference resolution",
		Long: "Imports batches of records whose foreign keys are given as lookup values,\n" +
			"resolving them against stored resources and other records of the same batch.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			settings, err := config.LoadSettings()
			if err != nil {
				return WrapExitError(ExitCommandError, "load settings", err)
			}
			flags := cmd.Flags()
			if flags.Changed("db") {
				settings.DBPath = opts.DBPath
			}
			if flags.Changed("database-url") {
				settings.DatabaseURL = opts.DatabaseURL
			}
			if opts.Verbose {
				settings.LogLevel = "debug"
			}
			opts.Settings = settings

			logging.Setup(settings.LogLevel, settings.LogFormat, cmd.ErrOrStderr())
			slog.Debug("settings loaded", "db", settings.DBPath, "postgres", settings.DatabaseURL != "")
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path (overrides BIO_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "PostgreSQL URL for resources (overrides BIO_DATABASE_URL)")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the root command with os.Args and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// newFormatter builds the formatter for one command invocation.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
