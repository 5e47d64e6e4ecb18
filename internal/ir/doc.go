// Package ir provides the shared vocabulary types for lexcache.
//
// This package holds type definitions plus canonical JSON and schema
// fingerprinting. All other internal packages import ir; ir imports nothing
// internal. This keeps the identity, value and descriptor types at the
// bottom of the dependency graph.
//
// Key design constraints:
//   - Entity identity is a tagged EntityRef, never a bare integer. Real and
//     placeholder ids live in disjoint spaces and never compare equal.
//   - NO float types in IRValue - use int64 for numbers.
//   - PropertyDescriptor is immutable once registered.
//   - All JSON tags use snake_case
package ir
