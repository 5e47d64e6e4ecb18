package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/lexcache/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, describe(ev))
		}
	}
	return buf.String()
}

// describe renders a trace event on one line.
func describe(ev TraceEvent) string {
	var b strings.Builder
	b.WriteString(ev.Op)
	if ev.Entity != "" {
		b.WriteString(" " + ev.Entity)
		if ev.Field != "" {
			b.WriteString("." + ev.Field)
		}
	}
	if ev.Sub != "" {
		fmt.Fprintf(&b, "[%s]", ev.Sub)
	}
	if ev.Value != nil {
		fmt.Fprintf(&b, " = %v", ev.Value)
	}
	if ev.Error != "" {
		b.WriteString(" ! " + ev.Error)
	}
	return b.String()
}

// evaluate checks one assertion against the engine and the recorded result.
func (h *Harness) evaluate(ctx context.Context, a Assertion, result *Result) error {
	switch a.Type {
	case AssertValue:
		return h.assertValue(ctx, a, result.Trace)
	case AssertNoPlaceholderRefs:
		return h.assertNoPlaceholderRefs(a, result.Trace)
	case AssertHandlerCalls:
		return assertHandlerCalls(a, result)
	case AssertPlaceholderState:
		return h.assertPlaceholderState(a, result.Trace)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertValue reads Entity.Field through the engine and compares it.
func (h *Harness) assertValue(ctx context.Context, a Assertion, trace []TraceEvent) error {
	ref, err := h.ref(a.Entity)
	if err != nil {
		return err
	}
	tag, kind, _, err := h.property(ctx, ref, a.Field)
	if err != nil {
		return err
	}
	want, err := h.value(kind, a.Expect)
	if err != nil {
		return err
	}

	got, err := h.engine.Get(ctx, ref, tag, ir.SubKey(a.Sub))
	if err != nil {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s.%s = %v", a.Entity, a.Field, h.render(want)),
			Actual:   fmt.Sprintf("error: %v", err),
			Trace:    trace,
		}
	}
	if !equalValues(want, got) {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s.%s = %v", a.Entity, a.Field, h.render(want)),
			Actual:   fmt.Sprintf("%v", h.render(got)),
			Trace:    trace,
		}
	}
	return nil
}

// assertNoPlaceholderRefs checks that nothing cached or provisional still
// holds Entity.
func (h *Harness) assertNoPlaceholderRefs(a Assertion, trace []TraceEvent) error {
	ref, err := h.ref(a.Entity)
	if err != nil {
		return err
	}
	if h.engine.HoldsRef(ref) {
		return &AssertionError{
			Type:     AssertNoPlaceholderRefs,
			Expected: fmt.Sprintf("no references to %s", a.Entity),
			Actual:   fmt.Sprintf("%s (%s) is still held", a.Entity, ref),
			Trace:    trace,
		}
	}
	return nil
}

// assertHandlerCalls compares the load and bulk pass counts recorded
// while the steps ran.
func assertHandlerCalls(a Assertion, result *Result) error {
	if a.Count != nil && result.Calls[a.Property] != *a.Count {
		return &AssertionError{
			Type:     AssertHandlerCalls,
			Expected: fmt.Sprintf("%d loads of %s", *a.Count, a.Property),
			Actual:   fmt.Sprintf("%d loads", result.Calls[a.Property]),
			Trace:    result.Trace,
		}
	}
	if a.BulkPasses != nil && result.BulkPasses[a.Property] != *a.BulkPasses {
		return &AssertionError{
			Type:     AssertHandlerCalls,
			Expected: fmt.Sprintf("%d bulk passes of %s", *a.BulkPasses, a.Property),
			Actual:   fmt.Sprintf("%d bulk passes", result.BulkPasses[a.Property]),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertPlaceholderState reports a live placeholder's state, "promoted"
// for a retired one and "gone" for one that was collected or deleted.
func (h *Harness) assertPlaceholderState(a Assertion, trace []TraceEvent) error {
	ref, err := h.ref(a.Entity)
	if err != nil {
		return err
	}
	state := "gone"
	if rec, ok := h.engine.Placeholder(ref); ok {
		state = rec.State.String()
	} else if _, ok := h.engine.Retired(ref); ok {
		state = "promoted"
	}
	if state != a.State {
		return &AssertionError{
			Type:     AssertPlaceholderState,
			Expected: fmt.Sprintf("%s is %s", a.Entity, a.State),
			Actual:   state,
			Trace:    trace,
		}
	}
	return nil
}
