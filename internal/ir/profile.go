package ir

import (
	"fmt"
	"slices"
)

// Profile describes how entries of each resource type are imported: which
// fields are optional and which fields hold symbolic references.
type Profile struct {
	Resources map[string]ResourceSchema `json:"resources" yaml:"resources"`
}

// ResourceSchema is the per-resource-type part of a Profile.
type ResourceSchema struct {
	Optional   []string                 `json:"optional,omitempty" yaml:"optional,omitempty"`
	References map[string]ReferenceRule `json:"references,omitempty" yaml:"references,omitempty"`
}

// ReferenceRule declares that a field holds a reference to another resource.
//
// With SameBatch set, the field value is first taken as the original id of
// another entry in the batch (tree imports, parent_id). When no such entry
// exists the value is looked up externally by LookupField.
type ReferenceRule struct {
	ResourceType string `json:"resource_type" yaml:"resource_type"`
	LookupField  string `json:"lookup_field" yaml:"lookup_field"`
	Optional     bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	SameBatch    bool   `json:"same_batch,omitempty" yaml:"same_batch,omitempty"`
}

// Validate checks that every reference rule names a target type and a lookup field.
func (p *Profile) Validate() error {
	if p == nil {
		return nil
	}
	for _, rt := range SortedKeys(p.Resources) {
		if rt == "" {
			return fmt.Errorf("profile: empty resource type")
		}
		schema := p.Resources[rt]
		for _, field := range SortedKeys(schema.References) {
			rule := schema.References[field]
			if rule.ResourceType == "" {
				return fmt.Errorf("profile: %s.%s: resource_type is required", rt, field)
			}
			if rule.LookupField == "" {
				return fmt.Errorf("profile: %s.%s: lookup_field is required", rt, field)
			}
		}
	}
	return nil
}

// Schema returns the schema for resourceType, or the zero schema.
func (p *Profile) Schema(resourceType string) ResourceSchema {
	if p == nil {
		return ResourceSchema{}
	}
	return p.Resources[resourceType]
}

// IsOptional reports whether field may be nulled by a skip policy.
func (s ResourceSchema) IsOptional(field string) bool {
	if rule, ok := s.References[field]; ok && rule.Optional {
		return true
	}
	return slices.Contains(s.Optional, field)
}
