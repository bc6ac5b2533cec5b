package harness

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/basicio/internal/config"
	"github.com/roach88/basicio/internal/ir"
)

// Scenario defines one conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// BatchID is the fixed batch id. Defaults to "scenario-batch".
	BatchID string `yaml:"batch_id,omitempty"`

	// ResourceType applies to entries without _resource_type.
	ResourceType string `yaml:"resource_type,omitempty"`

	Config ir.BatchConfig `yaml:"config,omitempty"`

	// Profile is an inline import profile.
	Profile *ir.Profile `yaml:"profile,omitempty"`

	// ProfileFile names a YAML or CUE profile, relative to the scenario file.
	ProfileFile string `yaml:"profile_file,omitempty"`

	// AllowEmpty accepts an empty batch.
	AllowEmpty bool `yaml:"allow_empty,omitempty"`

	// Seed lists resources that exist before the import.
	Seed []SeedResource `yaml:"seed,omitempty"`

	// Faults injects collaborator failures.
	Faults Faults `yaml:"faults,omitempty"`

	// Entries is the batch, as it would arrive decoded from JSON.
	Entries []map[string]any `yaml:"entries"`

	// Assertions validate the report and the commit log.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedResource is a resource present in the repository before the import.
type SeedResource struct {
	ResourceType string         `yaml:"resource_type"`
	ID           string         `yaml:"id"`
	Fields       map[string]any `yaml:"fields"`
}

// Faults configures failure injection.
type Faults struct {
	Persist []PersistFault `yaml:"persist,omitempty"`
	Lookup  []LookupFault  `yaml:"lookup,omitempty"`
}

// PersistFault fails Persist for resources whose field equals value.
type PersistFault struct {
	ResourceType string `yaml:"resource_type"`
	Field        string `yaml:"field"`
	Value        string `yaml:"value"`
	Error        string `yaml:"error"`
}

// LookupFault fails every lookup of a resource type.
type LookupFault struct {
	ResourceType string `yaml:"resource_type"`
	Error        string `yaml:"error"`
}

// Assertion validates the report or the commit log.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// OriginalID names the record (record, error, warning, stored).
	OriginalID string `yaml:"original_id,omitempty"`

	// Outcome is the expected batch outcome (outcome).
	Outcome ir.BatchOutcome `yaml:"outcome,omitempty"`

	// PartialCommit is checked when set (outcome).
	PartialCommit *bool `yaml:"partial_commit,omitempty"`

	// Counts are the expected record counts (counts).
	Counts *ir.Counts `yaml:"counts,omitempty"`

	// State is the expected terminal record state (record).
	State ir.RecordState `yaml:"state,omitempty"`

	// Code is the expected error code (record, error).
	Code ir.ErrorCode `yaml:"code,omitempty"`

	// Field narrows error and warning assertions to one field.
	Field string `yaml:"field,omitempty"`

	// Contains must be a substring of the error or warning message.
	Contains string `yaml:"contains,omitempty"`

	// Order lists original ids in expected commit order (commit_order).
	Order []string `yaml:"order,omitempty"`

	// Fields is a subset of the persisted field map (stored).
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome     = "outcome"
	AssertCounts      = "counts"
	AssertRecord      = "record"
	AssertCommitOrder = "commit_order"
	AssertError       = "error"
	AssertWarning     = "warning"
	AssertStored      = "stored"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected, and a profile_file is loaded relative to the
// scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.ProfileFile != "" {
		if scenario.Profile != nil {
			return nil, fmt.Errorf("invalid scenario: profile and profile_file are mutually exclusive")
		}
		profilePath := scenario.ProfileFile
		if !filepath.IsAbs(profilePath) {
			profilePath = filepath.Join(filepath.Dir(path), profilePath)
		}
		scenario.Profile, err = config.LoadProfile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: %w", err)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios lists the .yaml and .yml files under dir, sorted. A non-empty
// filter is a glob matched against the file name without extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Entries) == 0 && !s.AllowEmpty {
		return fmt.Errorf("entries list is required and must be non-empty (set allow_empty for an empty batch)")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if err := s.Profile.Validate(); err != nil {
		return err
	}

	for i, r := range s.Seed {
		if r.ResourceType == "" || r.ID == "" {
			return fmt.Errorf("seed[%d]: resource_type and id are required", i)
		}
	}
	for i, f := range s.Faults.Persist {
		if f.ResourceType == "" || f.Field == "" || f.Error == "" {
			return fmt.Errorf("faults.persist[%d]: resource_type, field and error are required", i)
		}
	}
	for i, f := range s.Faults.Lookup {
		if f.ResourceType == "" || f.Error == "" {
			return fmt.Errorf("faults.lookup[%d]: resource_type and error are required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutcome:
		if a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: outcome is required for outcome", index)
		}
	case AssertCounts:
		if a.Counts == nil {
			return fmt.Errorf("assertions[%d]: counts is required for counts", index)
		}
	case AssertRecord:
		if a.OriginalID == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: original_id and state are required for record", index)
		}
	case AssertCommitOrder:
		if len(a.Order) < 2 {
			return fmt.Errorf("assertions[%d]: order needs at least two ids for commit_order", index)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	case AssertWarning:
		if a.OriginalID == "" {
			return fmt.Errorf("assertions[%d]: original_id is required for warning", index)
		}
	case AssertStored:
		if a.OriginalID == "" || len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: original_id and fields are required for stored", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
