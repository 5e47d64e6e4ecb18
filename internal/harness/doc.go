// Package harness runs lexcache conformance scenarios.
//
// A scenario seeds a fresh SQLite store with entities, drives the engine
// through a list of steps and checks assertions against the final state.
// Every scenario runs against the embedded domain model (internal/model).
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: word_count
//	description: "Word count follows paragraph contents"
//	entities:
//	  - name: text
//	    class: Text
//	  - name: para
//	    class: Paragraph
//	    owner: text
//	    field: Paragraphs
//	    values: { Contents: "the quick brown fox" }
//	steps:
//	  - op: get
//	    entity: para
//	    field: WordCount
//	    expect: 4
//	  - op: write
//	    entity: para
//	    field: Contents
//	    value: "a b"
//	assertions:
//	  - type: handler_calls
//	    property: Paragraph.WordCount
//	    count: 1
//
// Entities are referred to by name everywhere, including inside reference
// values. Multi-text values are written as a map from writing system to
// text.
//
// # Steps
//
//   - get: read a property; optional expect, error and bind
//   - set: write through the engine (propagates)
//   - write: write a raw field straight to the repository (no propagation)
//   - invalidate: report a raw change to the engine
//   - clear / reset: drop cached values without propagation
//   - bulk: toggle bulk mode for a (class, field)
//   - placeholder: create a placeholder, optionally owned, with provisional values
//   - promote: request promotion, optionally mandatory
//   - delete: delete an entity and everything it owns
//   - collect: collect unreferenced placeholders; expect is the removed count
//
// # Assertion Types
//
//   - value: a property reads as expect
//   - no_placeholder_refs: no cached value or provisional attribute holds entity
//   - handler_calls: a property's handler ran count times (and bulk_passes bulk passes)
//   - placeholder_state: provisional, promotion_requested, promoted or gone
//
// # Deterministic Testing
//
// Scenarios run with a fixed session id and a fresh in-memory database, so
// traces are identical across runs and can be compared against golden
// files with RunWithGolden.
package harness
