package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Op     string `json:"op"`
	Entity string `json:"entity,omitempty"`
	Field  string `json:"field,omitempty"`
	Sub    string `json:"sub,omitempty"`

	// Value is the rendered value read, written or returned. References
	// render as entity names.
	Value any `json:"value,omitempty"`

	// Error is the engine error code, if the step failed.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains every step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Calls counts handler loads per "Class.Field".
	Calls map[string]int `json:"calls"`

	// BulkPasses counts bulk passes per "Class.Field".
	BulkPasses map[string]int `json:"bulk_passes"`

	// Spans lists the names of finished engine spans in end order.
	Spans []string `json:"spans,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []TraceEvent{},
		Errors:     []string{},
		Calls:      make(map[string]int),
		BulkPasses: make(map[string]int),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev, numbering it.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
