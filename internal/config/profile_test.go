package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basicio/internal/ir"
)

var wantProfile = &ir.Profile{Resources: map[string]ir.ResourceSchema{
	"users": {
		Optional: []string{"manager_id"},
		References: map[string]ir.ReferenceRule{
			"position_id": {ResourceType: "positions", LookupField: "title"},
			"manager_id":  {ResourceType: "users", LookupField: "email", SameBatch: true},
		},
	},
	"organization_units": {
		References: map[string]ir.ReferenceRule{
			"parent_id": {ResourceType: "organization_units", LookupField: "name", SameBatch: true, Optional: true},
		},
	},
}}

func TestLoadProfile_YAMLAndCUEAgree(t *testing.T) {
	for _, name := range []string{"profile.yaml", "profile.cue"} {
		t.Run(name, func(t *testing.T) {
			p, err := LoadProfile(filepath.Join("testdata", name))
			require.NoError(t, err)
			assert.Equal(t, wantProfile, p)
			assert.True(t, p.Schema("users").IsOptional("manager_id"))
		})
	}
}

func writeProfile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadProfile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{
			name:    "yaml unknown key",
			file:    "p.yaml",
			content: "resources:\n  users:\n    refs: {}\n",
			want:    "refs",
		},
		{
			name:    "yaml missing lookup field",
			file:    "p.yml",
			content: "resources:\n  users:\n    references:\n      position_id: {resource_type: positions}\n",
			want:    "users.position_id: lookup_field is required",
		},
		{
			name:    "cue missing lookup field",
			file:    "p.cue",
			content: "resources: users: references: position_id: resource_type: \"positions\"\n",
			want:    "lookup_field",
		},
		{
			name:    "cue closed schema",
			file:    "p.cue",
			content: "resources: users: colour: \"blue\"\n",
			want:    "colour",
		},
		{
			name:    "cue syntax",
			file:    "p.cue",
			content: "resources: {\n",
			want:    "p.cue",
		},
		{
			name:    "unsupported",
			file:    "p.toml",
			content: "",
			want:    "unsupported profile format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadProfile(writeProfile(t, tt.file, tt.content))
			require.Error(t, err)
			var pe *ProfileError
			assert.ErrorAs(t, err, &pe)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadProfile_JSON(t *testing.T) {
	path := writeProfile(t, "p.json", `{"resources": {"tasks": {"references": {"owner_id": {"resource_type": "users", "lookup_field": "email"}}}}}`)
	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "users", p.Schema("tasks").References["owner_id"].ResourceType)
}

func TestLoadProfile_NotFound(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
