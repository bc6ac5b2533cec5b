package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/basicio/internal/config"
	"github.com/roach88/basicio/internal/engine"
	"github.com/roach88/basicio/internal/input"
	"github.com/roach88/basicio/internal/ir"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Enrich      bool
	ProfilePath string
	Output      string
	FileFormat  string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export [resource-type]",
		Short: "Write stored resources as an importable batch",
		Long: `Export every resource of a type as import entries.

With --enrich, each reference field named in the profile gets a _references
descriptor carrying the lookup value of its target, so the file can be
re-imported into another database.

Without a resource type, lists the types present in the database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListTypes(cmd, opts)
			}
			return runExport(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Enrich, "enrich", false, "add _references descriptors for profile reference fields")
	cmd.Flags().StringVar(&opts.ProfilePath, "profile", "", "profile file (.yaml or .cue)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "-", "output file, - for stdout")
	cmd.Flags().StringVar(&opts.FileFormat, "file-format", "", "output format (json|csv); inferred from --output when empty")

	return cmd
}

// typeLister is implemented by repositories that can enumerate resource types.
type typeLister interface {
	ResourceTypes(ctx context.Context) ([]string, error)
}

func runListTypes(cmd *cobra.Command, opts *ExportOptions) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	ctx := cmd.Context()
	b, err := openBackend(ctx, opts.Settings)
	if err != nil {
		formatter.Error(ErrCodeStore, "database unavailable", err.Error())
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer b.Close()

	lister, ok := b.repo.(typeLister)
	if !ok {
		return NewExitError(ExitCommandError, "this backend cannot list resource types; name one")
	}
	types, err := lister.ResourceTypes(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list resource types", err)
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"resource_types": types})
	}
	for _, rt := range types {
		fmt.Fprintln(formatter.Writer, rt)
	}
	return nil
}

func runExport(cmd *cobra.Command, opts *ExportOptions, resourceType string) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	format := input.FormatFromName(opts.Output)
	if opts.FileFormat != "" {
		f, err := input.ParseFormat(opts.FileFormat)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --file-format", err)
		}
		format = f
	}

	var profile *ir.Profile
	if opts.ProfilePath != "" {
		p, err := config.LoadProfile(opts.ProfilePath)
		if err != nil {
			formatter.Error(ErrCodeProfile, "invalid profile", err.Error())
			return WrapExitError(ExitCommandError, "load profile", err)
		}
		profile = p
	}

	ctx := cmd.Context()
	b, err := openBackend(ctx, opts.Settings)
	if err != nil {
		formatter.Error(ErrCodeStore, "database unavailable", err.Error())
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer b.Close()

	entries, err := engine.NewExporter(b.repo).Export(ctx, resourceType, profile, opts.Enrich)
	if err != nil {
		return WrapExitError(ExitCommandError, "export", err)
	}

	var w io.Writer = formatter.Writer
	if opts.Output != "-" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "create output", err)
		}
		defer f.Close()
		w = f
	}

	if format == input.FormatCSV {
		err = input.EncodeCSV(w, entries)
	} else {
		err = input.EncodeJSON(w, entries)
	}
	if err != nil {
		formatter.Error(ErrCodeWriteFailed, "write export", err.Error())
		return WrapExitError(ExitCommandError, "write export", err)
	}
	formatter.VerboseLog("exported %d %s resources", len(entries), resourceType)
	return nil
}
