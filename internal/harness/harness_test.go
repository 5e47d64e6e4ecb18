package harness

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lexcache/internal/engine"
	"github.com/roach88/lexcache/internal/store"
)

func mustParse(t *testing.T, data string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(data))
	require.NoError(t, err)
	return scenario
}

const paragraphEntities = `
entities:
  - name: text
    class: Text
  - name: para
    class: Paragraph
    owner: text
    field: Paragraphs
    values:
      Contents: "one two three"
`

func TestRun_Passes(t *testing.T) {
	scenario := mustParse(t, `
name: count
description: "word count of a seeded paragraph"
`+paragraphEntities+`
steps:
  - op: get
    entity: para
    field: WordCount
    expect: 3
  - op: get
    entity: para
    field: WordCount
    expect: 3
assertions:
  - type: handler_calls
    property: Paragraph.WordCount
    count: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceEvent{Seq: 1, Op: OpGet, Entity: "para", Field: "WordCount", Value: int64(3)}, result.Trace[0])
	assert.Equal(t, int64(2), result.Trace[1].Seq)
	assert.Equal(t, map[string]int{"Paragraph.WordCount": 1}, result.Calls)
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := mustParse(t, `
name: mismatch
description: "wrong expectation"
`+paragraphEntities+`
steps:
  - op: get
    entity: para
    field: WordCount
    expect: 7
assertions:
  - type: handler_calls
    property: Paragraph.WordCount
    count: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] get para.WordCount: expected 7, got 3")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	scenario := mustParse(t, `
name: missing_error
description: "expects an error that never comes"
`+paragraphEntities+`
steps:
  - op: get
    entity: para
    field: WordCount
    error: LOAD_CYCLE
assertions:
  - type: handler_calls
    property: Paragraph.WordCount
    count: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error LOAD_CYCLE, got no error")
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := mustParse(t, `
name: read_only
description: "writing a read-only property"
`+paragraphEntities+`
steps:
  - op: set
    entity: para
    field: WordCount
    value: 1
assertions:
  - type: handler_calls
    property: Paragraph.WordCount
    count: 0
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "NOT_WRITABLE", result.Trace[0].Error)
	assert.Nil(t, result.Trace[0].Value)
}

func TestRun_UnknownEntity(t *testing.T) {
	scenario := mustParse(t, `
name: unknown
description: "refers to an entity that was never declared"
steps:
  - op: get
    entity: ghost
    field: WordCount
assertions:
  - type: no_placeholder_refs
    entity: ghost
`)

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown entity "ghost"`)
}

func TestRun_UnknownField(t *testing.T) {
	scenario := mustParse(t, `
name: unknown_field
description: "refers to a field the class lacks"
`+paragraphEntities+`
steps:
  - op: get
    entity: para
    field: Headword
assertions:
  - type: no_placeholder_refs
    entity: para
`)

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Paragraph has no field "Headword"`)
}

func TestRun_RecordsSpans(t *testing.T) {
	scenario := mustParse(t, `
name: spans
description: "bulk loads and promotions are traced"
entities:
  - name: a
    class: LexEntry
  - name: b
    class: LexEntry
    values:
      Components: [a]
steps:
  - op: bulk
    class: LexEntry
    field: BackReferences
    enabled: true
  - op: get
    entity: a
    field: BackReferences
    expect: [b]
  - op: placeholder
    class: LexSense
    owner: a
    field: Senses
    as: p
  - op: promote
    entity: p
    must_succeed: true
assertions:
  - type: placeholder_state
    entity: p
    state: promoted
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Contains(t, result.Spans, "lexcache.bulk_load")
	assert.Contains(t, result.Spans, "lexcache.promote")
	assert.Equal(t, map[string]int{"LexEntry.BackReferences": 1}, result.BulkPasses)

	bulk := result.Trace[0]
	assert.Equal(t, "LexEntry", bulk.Entity)
	assert.Equal(t, true, bulk.Value)
}

func TestRun_SeedsMultiText(t *testing.T) {
	scenario := mustParse(t, `
name: multi
description: "multi-text values are seeded per writing system"
entities:
  - name: entry
    class: LexEntry
    values:
      Headword: { en: "dog", fr: "chien" }
steps:
  - op: get
    entity: entry
    field: LexemeForm
    sub: fr
    expect: "chien"
  - op: write
    entity: entry
    field: Headword
    sub: en
    value: "hound"
assertions:
  - type: value
    entity: entry
    field: Headword
    sub: en
    expect: "hound"
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "fr", result.Trace[0].Sub)
	assert.Equal(t, "hound", result.Trace[1].Value)
}

func TestRun_Reset(t *testing.T) {
	scenario := mustParse(t, `
name: reset
description: "reset drops every cached value"
`+paragraphEntities+`
steps:
  - op: get
    entity: para
    field: WordCount
  - op: reset
  - op: get
    entity: para
    field: WordCount
  - op: clear
    entity: para
    field: WordCount
  - op: get
    entity: para
    field: WordCount
assertions:
  - type: handler_calls
    property: Paragraph.WordCount
    count: 3
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&engine.Error{Code: engine.CodeNotWritable}, "NOT_WRITABLE"},
		{fmt.Errorf("wrapped: %w", &engine.Error{Code: engine.CodeLoadCycle}), "LOAD_CYCLE"},
		{fmt.Errorf("class of x: %w", store.ErrNotFound), "NOT_FOUND"},
		{fmt.Errorf("boom"), "ERROR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err))
	}
}
