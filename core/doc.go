// Package core defines the domain model for the Argus logtest service.
//
// The core package provides:
//   - Domain types (Event, ProcessingResult, MatchResult)
//   - Sentinel errors surfaced at the session and transport boundary
//   - Constants for severity levels and engine limits
//
// Matching outcomes ("no decoder matched", "decoded but no rule
// matched") are first-class results carried on ProcessingResult, never
// errors. The sentinel errors in this package cover session lifecycle
// and request framing only.
package core
