package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/basicio/internal/config"
	"github.com/roach88/basicio/internal/engine"
	"github.com/roach88/basicio/internal/input"
	"github.com/roach88/basicio/internal/ir"
)

// BatchOptions are the flags shared by import and validate.
type BatchOptions struct {
	ResourceType string
	FileFormat   string
	ProfilePath  string
	AllowEmpty   bool
	TreeField    string
}

func (o *BatchOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.ResourceType, "type", "t", "", "resource type for entries without _resource_type")
	cmd.Flags().StringVar(&o.FileFormat, "file-format", "", "input format (json|csv); inferred from the file name when empty")
	cmd.Flags().StringVar(&o.ProfilePath, "profile", "", "profile file (.yaml or .cue) declaring reference fields")
	cmd.Flags().BoolVar(&o.AllowEmpty, "allow-empty", false, "accept a batch with no entries")
	cmd.Flags().StringVar(&o.TreeField, "tree-field", "", `parent field linking records of one type by original id; default from BIO_TREE_FIELD, "" disables`)
}

// treeField returns the flag when it was given, else the settings default.
func (o *BatchOptions) treeField(cmd *cobra.Command, settings config.Settings) string {
	if cmd.Flags().Changed("tree-field") {
		return o.TreeField
	}
	return settings.TreeField
}

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	BatchOptions

	Mode        string
	OnMissing   string
	OnAmbiguous string
	Workers     int
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a JSON or CSV batch",
		Long: `Import a batch of entries, resolving references by lookup value.

Entries are committed in dependency order: a record that points to another
record of the same batch is written after it. Use "-" to read from stdin.

Exit codes:
  0  every record committed
  1  the batch was rejected, aborted, failed or partially failed
  2  the command itself failed (unreadable input, bad flags, database error)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	opts.BatchOptions.register(cmd)
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "commit mode (atomic|best_effort); default from BIO_MODE")
	cmd.Flags().StringVar(&opts.OnMissing, "on-missing", "", "policy for missing references (fail|skip)")
	cmd.Flags().StringVar(&opts.OnAmbiguous, "on-ambiguous", "", "policy for ambiguous references (fail|skip)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker pool size; default from BIO_WORKERS")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, path string) error {
	formatter := newFormatter(cmd, opts.RootOptions)
	settings := opts.Settings
	if opts.Workers > 0 {
		settings.Workers = opts.Workers
	}

	batch, err := loadBatch(cmd, &opts.BatchOptions, path)
	if err != nil {
		return err
	}
	batch.Config = opts.batchConfig(settings)
	batch.TreeField = opts.treeField(cmd, settings)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, settings)
	if err != nil {
		formatter.Error(ErrCodeStore, "database unavailable", err.Error())
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer b.Close()

	warnReimport(ctx, formatter, b, batch.Entries)

	eng := engine.New(b.repo, engineOptions(settings, b.runs)...)
	report, importErr := eng.Import(ctx, batch)
	if report == nil {
		return WrapExitError(ExitCommandError, "import failed", importErr)
	}

	if formatter.JSON() {
		if err := formatter.Success(report); err != nil {
			return WrapExitError(ExitCommandError, "write output", err)
		}
	} else {
		writeReportText(formatter.Writer, report, opts.Verbose)
	}

	if errors.Is(importErr, context.Canceled) {
		return WrapExitError(ExitFailure, "import interrupted", importErr)
	}
	if report.Outcome != ir.OutcomeSucceeded {
		return NewExitError(ExitFailure, fmt.Sprintf("import %s (batch %s)", report.Outcome, report.BatchID))
	}
	return nil
}

// batchConfig overlays the policy flags on the settings defaults.
func (o *ImportOptions) batchConfig(settings config.Settings) ir.BatchConfig {
	cfg := settings.BatchConfig()
	if o.Mode != "" {
		cfg.Mode = ir.Mode(o.Mode)
	}
	if o.OnMissing != "" {
		cfg.OnMissing = ir.Policy(o.OnMissing)
	}
	if o.OnAmbiguous != "" {
		cfg.OnAmbiguous = ir.Policy(o.OnAmbiguous)
	}
	return cfg
}

// loadBatch reads and decodes the input file and loads the profile.
// Errors are ExitErrors with ExitCommandError.
func loadBatch(cmd *cobra.Command, opts *BatchOptions, path string) (engine.Batch, error) {
	format := input.FormatFromName(path)
	if opts.FileFormat != "" {
		f, err := input.ParseFormat(opts.FileFormat)
		if err != nil {
			return engine.Batch{}, WrapExitError(ExitCommandError, "invalid --file-format", err)
		}
		format = f
	}

	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return engine.Batch{}, WrapExitError(ExitCommandError, "open input", err)
		}
		defer f.Close()
		r = f
	}

	entries, err := input.Decode(r, format)
	if err != nil {
		return engine.Batch{}, WrapExitError(ExitCommandError, fmt.Sprintf("decode %s", path), err)
	}

	batch := engine.Batch{
		Entries:      entries,
		ResourceType: opts.ResourceType,
		AllowEmpty:   opts.AllowEmpty,
	}
	if opts.ProfilePath != "" {
		profile, err := config.LoadProfile(opts.ProfilePath)
		if err != nil {
			return engine.Batch{}, WrapExitError(ExitCommandError, "load profile", err)
		}
		batch.Profile = profile
	}
	return batch, nil
}

// warnReimport notes earlier runs of the same batch content. It never blocks
// the import: an earlier partial run is a reason to re-import.
func warnReimport(ctx context.Context, formatter *OutputFormatter, b *backend, entries []map[string]any) {
	digest, err := ir.BatchDigest(entries)
	if err != nil {
		return
	}
	prior, err := b.runs.RunsByDigest(ctx, digest)
	if err != nil {
		formatter.VerboseLog("run log lookup failed: %v", err)
		return
	}
	for _, run := range prior {
		formatter.Warn("identical batch already imported as %s (outcome %s)", run.BatchID, run.Outcome)
	}
}
