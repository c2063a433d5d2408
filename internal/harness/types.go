package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step     int      `json:"step"`
	Action   string   `json:"action"`
	User     string   `json:"user,omitempty"`
	Key      string   `json:"key,omitempty"`
	Outcome  string   `json:"outcome"`
	EntryID  string   `json:"entry_id,omitempty"`
	Attempts int      `json:"attempts,omitempty"`
	Holdings []string `json:"holdings,omitempty"` // "symbol:category" after a reconcile
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
