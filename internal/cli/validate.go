package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/basicio/internal/compiler"
	"github.com/roach88/basicio/internal/engine"
	"github.com/roach88/basicio/internal/ir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	BatchOptions
}

// ValidateResult is the JSON payload of a successful validation.
type ValidateResult struct {
	Records     int        `json:"records"`
	CommitWaves [][]string `json:"commit_waves"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check a batch and print its commit order without touching the database",
		Long: `Normalize and plan a batch without lookups or writes.

Prints the commit waves: records in the same wave have no dependency on each
other. A reference cycle is reported with every record involved in it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
	}

	opts.BatchOptions.register(cmd)

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions, path string) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	batch, err := loadBatch(cmd, &opts.BatchOptions, path)
	if err != nil {
		return err
	}
	batch.TreeField = opts.treeField(cmd, opts.Settings)

	if err := engine.NewBatchQuota(opts.Settings.MaxBatchSize).Check(len(batch.Entries)); err != nil {
		return invalidBatch(formatter, err, nil)
	}
	records, err := compiler.Normalize(batch.Entries, compiler.NormalizeOptions{
		ResourceType: batch.ResourceType,
		Profile:      batch.Profile,
		AllowEmpty:   batch.AllowEmpty,
		TreeField:    batch.TreeField,
	})
	if err != nil {
		return invalidBatch(formatter, err, nil)
	}
	plan, err := compiler.NewPlan(records)
	if err != nil {
		var components [][]string
		if ir.IsCycleError(err) {
			if g, gerr := compiler.BuildGraph(records); gerr == nil {
				components = compiler.CyclicComponents(g)
			}
		}
		return invalidBatch(formatter, err, components)
	}

	result := ValidateResult{Records: len(plan.Records), CommitWaves: plan.WaveIDs()}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d records in %d commit waves\n", result.Records, len(result.CommitWaves))
	for i, wave := range result.CommitWaves {
		fmt.Fprintf(formatter.Writer, "  %d: %s\n", i+1, strings.Join(wave, ", "))
	}
	return nil
}

// invalidBatch reports a rejection and returns exit code 1.
func invalidBatch(formatter *OutputFormatter, err error, components [][]string) error {
	var details any
	if len(components) > 0 {
		details = map[string]any{"cyclic_components": components}
	}
	if formatter.JSON() {
		formatter.Error(ErrCodeInvalid, err.Error(), details)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %v\n", err)
		for _, c := range components {
			fmt.Fprintf(formatter.Writer, "  cycle members: %s\n", strings.Join(c, ", "))
		}
	}
	return WrapExitError(ExitFailure, "batch is invalid", err)
}
