// Package harness runs import scenarios for conformance testing.
//
// A scenario is one batch plus the repository state it runs against and the
// assertions its report must satisfy. Every scenario runs against a fresh
// in-memory repository with a fixed batch id and a single worker, so the
// persisted ids, the report and the commit log are identical across runs and
// can be compared with golden files.
//
// # Scenario Format
//
//	name: tree_import
//	description: "Children listed before their parents still commit parents first"
//	batch_id: tree-batch
//	resource_type: units
//	config: {mode: best_effort, on_missing: fail, on_ambiguous: fail}
//	profile:
//	  resources:
//	    units:
//	      references:
//	        parent_id: {resource_type: units, lookup_field: name, same_batch: true, optional: true}
//	seed:
//	  - {resource_type: positions, id: pos-1, fields: {title: Engineer}}
//	faults:
//	  persist: [{resource_type: units, field: name, value: Broken, error: "disk full"}]
//	  lookup:  [{resource_type: positions, error: "connection refused"}]
//	entries:
//	  - {_original_id: team, name: Team, parent_id: dept}
//	  - {_original_id: dept, name: Dept}
//	assertions:
//	  - type: outcome
//	    outcome: succeeded
//	  - type: commit_order
//	    order: [dept, team]
//	  - type: stored
//	    original_id: team
//	    fields: {parent_id: "${dept}"}
//
// profile_file may name a YAML or CUE profile instead of an inline profile;
// it is resolved relative to the scenario file.
//
// # Assertion Types
//
//   - outcome: batch outcome, and partial_commit when given
//   - counts: attempted, succeeded, failed and skipped record counts
//   - record: terminal state of one record, and its error code when given
//   - commit_order: the listed records committed in this relative order
//   - error: a report error with the given code for a record (and field)
//   - warning: a report warning for a record (and field)
//   - stored: subset match on the fields a record was persisted with;
//     "${id}" stands for the persisted id of record id
package harness
