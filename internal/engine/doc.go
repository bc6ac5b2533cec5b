// Package engine implements the import resolution and commit engine.
//
// An import runs in four stages, each recorded in the report timing:
//
//	normalize  entries -> records (compiler.Normalize)
//	plan       records -> dependency graph -> commit waves (compiler.NewPlan)
//	resolve    external references -> outcomes -> policy (Resolver, ApplyPolicy)
//	commit     wave by wave, intra-batch ids substituted, then Persist
//
// CONCURRENCY:
//
// Lookups and commits run on a bounded errgroup pool. Waves are barriers: a
// record is submitted only after every predecessor committed. Workers write
// only their own result slot and the IDMap; the scheduler goroutine applies
// slots to the Aggregator in input-position order, which keeps the report
// deterministic.
//
// FAILURE MODES:
//
//   - best_effort: a failed record fails alone; its dependents fail with
//     DEPENDENCY_ABORTED ("dependency not committed")
//   - atomic: the first failure cancels the wave in flight and marks every
//     record not yet terminal as skipped_due_to_abort. Records already
//     committed stay committed; the report sets partial_commit.
package engine
