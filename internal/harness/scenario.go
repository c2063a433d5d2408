package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run against a fresh ledger store.
// Steps drive the real components; assertions check the resulting trace
// and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Retry configures the executor's retry policy. Absent means no retries.
	Retry *RetrySettings `yaml:"retry,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// RetrySettings mirrors the retry section of the ledger config.
type RetrySettings struct {
	MaxAttempts int  `yaml:"max_attempts"`
	RetryFailed bool `yaml:"retry_failed"`
}

// Step is one action. Which fields apply depends on Action.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	User   string `yaml:"user,omitempty"`
	Module string `yaml:"module,omitempty"` // defaults to "trade"
	Key    string `yaml:"key,omitempty"`

	// Instruction fields (execute).
	Symbol   string  `yaml:"symbol,omitempty"`
	Side     string  `yaml:"side,omitempty"`
	Diff     float64 `yaml:"diff,omitempty"`
	Category string  `yaml:"category,omitempty"`
	Quantity string  `yaml:"quantity,omitempty"`
	Price    string  `yaml:"price,omitempty"`

	// Age backdates the instruction's generation time; ExpiresIn is
	// measured from there (execute, claim).
	Age       time.Duration `yaml:"age,omitempty"`
	ExpiresIn time.Duration `yaml:"expires_in,omitempty"`

	// Reject makes the exchange refuse the order with this reason (execute).
	Reject string `yaml:"reject,omitempty"`

	// Payload is hashed for a bare claim.
	Payload map[string]any `yaml:"payload,omitempty"`

	// Reason is the failure reason (fail).
	Reason string `yaml:"reason,omitempty"`

	// Executions are folded into holdings (reconcile). When empty, the
	// user's executed instructions since the last reconcile are settled.
	Executions []ExecutionStep `yaml:"executions,omitempty"`

	// By is the clock advance (advance).
	By time.Duration `yaml:"by,omitempty"`

	// Expect is the expected outcome of the step. Empty skips the check.
	Expect string `yaml:"expect,omitempty"`
}

// ExecutionStep is one settled execution for a reconcile step.
type ExecutionStep struct {
	Symbol   string  `yaml:"symbol"`
	Diff     float64 `yaml:"diff"`
	Category string  `yaml:"category,omitempty"`
	Trade    string  `yaml:"trade,omitempty"`
}

// Step actions.
const (
	ActionExecute   = "execute"
	ActionClaim     = "claim"
	ActionComplete  = "complete"
	ActionFail      = "fail"
	ActionReconcile = "reconcile"
	ActionAdvance   = "advance"
	ActionSweep     = "sweep"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "holdings": the user's snapshot equals Positions, in order
	// - "ledger_entry": the entry for (Module, Key, User) has Status and Attempts
	// - "trace_count": steps with Action (and Outcome, if set) occur Count times
	// - "table_count": Table holds Count rows (for User, if set)
	Type string `yaml:"type"`

	User      string     `yaml:"user,omitempty"`
	Module    string     `yaml:"module,omitempty"`
	Key       string     `yaml:"key,omitempty"`
	Positions []Position `yaml:"positions,omitempty"`
	Status    string     `yaml:"status,omitempty"`
	Attempts  int        `yaml:"attempts,omitempty"`
	Action    string     `yaml:"action,omitempty"`
	Outcome   string     `yaml:"outcome,omitempty"`
	Table     string     `yaml:"table,omitempty"`
	Count     int        `yaml:"count"`
}

// Position is an expected holding.
type Position struct {
	Symbol   string `yaml:"symbol"`
	Category string `yaml:"category"`
}

// Assertion type constants.
const (
	AssertHoldings    = "holdings"
	AssertLedgerEntry = "ledger_entry"
	AssertTraceCount  = "trace_count"
	AssertTableCount  = "table_count"
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
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

func validateStep(index int, st *Step) error {
	switch st.Action {
	case ActionExecute:
		if st.User == "" || st.Key == "" || st.Symbol == "" || st.Side == "" || st.Quantity == "" {
			return fmt.Errorf("steps[%d]: execute needs user, key, symbol, side and quantity", index)
		}
	case ActionClaim, ActionComplete, ActionFail:
		if st.User == "" || st.Key == "" {
			return fmt.Errorf("steps[%d]: %s needs user and key", index, st.Action)
		}
		if st.Action == ActionFail && st.Reason == "" {
			return fmt.Errorf("steps[%d]: fail needs a reason", index)
		}
	case ActionReconcile:
		if st.User == "" {
			return fmt.Errorf("steps[%d]: reconcile needs user", index)
		}
	case ActionAdvance:
		if st.By <= 0 {
			return fmt.Errorf("steps[%d]: advance needs a positive duration", index)
		}
	case ActionSweep:
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertHoldings:
		if a.User == "" {
			return fmt.Errorf("assertions[%d]: user is required for holdings", index)
		}
	case AssertLedgerEntry:
		if a.User == "" || a.Key == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: user, key and status are required for ledger_entry", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTableCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for table_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
