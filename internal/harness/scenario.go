package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is the engine session id. Defaults to "test-session".
	Session string `yaml:"session,omitempty"`

	// Entities are created in order before any step runs; their values are
	// written once every entity exists, so values may refer forward.
	Entities []EntitySpec `yaml:"entities,omitempty"`

	// Steps drive the engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// EntitySpec seeds one durable entity.
type EntitySpec struct {
	Name  string `yaml:"name"`
	Class string `yaml:"class"`

	// Owner and Field attach the entity to an earlier entity's owning field.
	Owner string `yaml:"owner,omitempty"`
	Field string `yaml:"field,omitempty"`

	// Values maps raw field names to values.
	Values map[string]any `yaml:"values,omitempty"`
}

// Step is one engine operation. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	Entity string `yaml:"entity,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Sub    string `yaml:"sub,omitempty"`
	Value  any    `yaml:"value,omitempty"`

	// Class, Owner and Values describe a new placeholder; Class and
	// Enabled also serve bulk.
	Class   string         `yaml:"class,omitempty"`
	Owner   string         `yaml:"owner,omitempty"`
	Values  map[string]any `yaml:"values,omitempty"`
	Enabled *bool          `yaml:"enabled,omitempty"`

	// MustSucceed makes a promote request mandatory.
	MustSucceed bool `yaml:"must_succeed,omitempty"`

	// Working is the collect working set.
	Working []string `yaml:"working,omitempty"`

	// As names the entity a placeholder or promote step produced.
	As string `yaml:"as,omitempty"`

	// Bind names the references a get returned, in order.
	Bind []string `yaml:"bind,omitempty"`

	// Expect checks the step's value; Error expects an engine error code.
	Expect any    `yaml:"expect,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Step operations.
const (
	OpGet         = "get"
	OpSet         = "set"
	OpWrite       = "write"
	OpInvalidate  = "invalidate"
	OpClear       = "clear"
	OpReset       = "reset"
	OpBulk        = "bulk"
	OpPlaceholder = "placeholder"
	OpPromote     = "promote"
	OpDelete      = "delete"
	OpCollect     = "collect"
)

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "value": Entity.Field (at Sub) reads as Expect
	// - "no_placeholder_refs": nothing cached or provisional holds Entity
	// - "handler_calls": Property's handler loaded Count times
	// - "placeholder_state": Entity is in State
	Type string `yaml:"type"`

	Entity string `yaml:"entity,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Sub    string `yaml:"sub,omitempty"`
	Expect any    `yaml:"expect,omitempty"`

	// Property is "Class.Field" (used by handler_calls).
	Property   string `yaml:"property,omitempty"`
	Count      *int   `yaml:"count,omitempty"`
	BulkPasses *int   `yaml:"bulk_passes,omitempty"`

	// State is provisional, promotion_requested, promoted or gone.
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertValue             = "value"
	AssertNoPlaceholderRefs = "no_placeholder_refs"
	AssertHandlerCalls      = "handler_calls"
	AssertPlaceholderState  = "placeholder_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	names := make(map[string]bool)
	for i, e := range s.Entities {
		if e.Name == "" || e.Class == "" {
			return fmt.Errorf("entities[%d]: name and class are required", i)
		}
		if names[e.Name] {
			return fmt.Errorf("entities[%d]: duplicate name %q", i, e.Name)
		}
		if e.Owner != "" && !names[e.Owner] {
			return fmt.Errorf("entities[%d]: owner %q must be declared earlier", i, e.Owner)
		}
		if (e.Owner == "") != (e.Field == "") {
			return fmt.Errorf("entities[%d]: owner and field go together", i)
		}
		names[e.Name] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the fields an operation needs.
func validateStep(index int, s *Step) error {
	need := func(ok bool, what string) error {
		if !ok {
			return fmt.Errorf("steps[%d]: %s is required for %s", index, what, s.Op)
		}
		return nil
	}

	switch s.Op {
	case OpGet, OpSet, OpWrite, OpInvalidate, OpClear:
		if err := need(s.Entity != "", "entity"); err != nil {
			return err
		}
		return need(s.Field != "", "field")
	case OpReset:
		return nil
	case OpBulk:
		if err := need(s.Class != "", "class"); err != nil {
			return err
		}
		if err := need(s.Field != "", "field"); err != nil {
			return err
		}
		return need(s.Enabled != nil, "enabled")
	case OpPlaceholder:
		if err := need(s.Class != "", "class"); err != nil {
			return err
		}
		if s.Owner != "" && s.Field == "" {
			return fmt.Errorf("steps[%d]: field is required with owner", index)
		}
		return need(s.As != "", "as")
	case OpPromote, OpDelete:
		return need(s.Entity != "", "entity")
	case OpCollect:
		return nil
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertValue:
		if a.Entity == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: entity and field are required for value", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for value", index)
		}
	case AssertNoPlaceholderRefs:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for no_placeholder_refs", index)
		}
	case AssertHandlerCalls:
		if a.Property == "" {
			return fmt.Errorf("assertions[%d]: property is required for handler_calls", index)
		}
		if a.Count == nil && a.BulkPasses == nil {
			return fmt.Errorf("assertions[%d]: count or bulk_passes is required for handler_calls", index)
		}
		if (a.Count != nil && *a.Count < 0) || (a.BulkPasses != nil && *a.BulkPasses < 0) {
			return fmt.Errorf("assertions[%d]: counts must be non-negative for handler_calls", index)
		}
	case AssertPlaceholderState:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for placeholder_state", index)
		}
		switch a.State {
		case "provisional", "promotion_requested", "promoted", "gone":
		default:
			return fmt.Errorf("assertions[%d]: unknown placeholder state %q", index, a.State)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
