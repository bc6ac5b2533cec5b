// Package ir provides the data model shared by every stage of an import.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Policy, Mode, ResolutionStatus and RecordState are closed string enums
//   - The dependency graph is index-based, never record-to-record pointers
//   - All JSON tags use snake_case
//   - Resolution log ordering uses a logical sequence, never wall-clock time
package ir
