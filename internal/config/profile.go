package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/basicio/internal/ir"
)

//go:embed profile.cue
var profileSchema string

// ProfileError reports an invalid profile file, with a source position
// when one is known.
type ProfileError struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *ProfileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadProfile reads a profile from a .yaml, .yml, .json or .cue file.
// The result has passed Profile.Validate.
func LoadProfile(path string) (*ir.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p *ir.Profile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		p, err = ParseCUEProfile(path, data)
	case ".yaml", ".yml", ".json":
		// JSON is a subset of YAML.
		p, err = ParseYAMLProfile(path, data)
	default:
		return nil, &ProfileError{Path: path, Message: "unsupported profile format (want .yaml, .yml, .json or .cue)"}
	}
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, &ProfileError{Path: path, Message: err.Error()}
	}
	return p, nil
}

// ParseYAMLProfile decodes a YAML profile. Unknown keys are errors.
func ParseYAMLProfile(path string, data []byte) (*ir.Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p ir.Profile
	if err := dec.Decode(&p); err != nil {
		return nil, &ProfileError{Path: path, Message: err.Error()}
	}
	return &p, nil
}

// ParseCUEProfile unifies a CUE profile with the embedded #Profile schema,
// requires it to be concrete, and decodes it.
func ParseCUEProfile(path string, data []byte) (*ir.Profile, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(profileSchema, cue.Filename("profile.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile profile schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(path, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Profile")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(path, err)
	}

	var p ir.Profile
	if err := unified.Decode(&p); err != nil {
		return nil, formatCUEError(path, err)
	}
	return &p, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(path string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ProfileError{Path: path, Message: err.Error()}
	}

	first := errs[0]
	pe := &ProfileError{Path: path, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		pe.Pos = positions[0]
	}
	return pe
}
