package harness

import "encoding/json"

const (
	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
)

// TraceEvent is one webhook attempt made by the engine.
type TraceEvent struct {
	Seq  int `json:"seq"`
	Poll int `json:"poll"`
	// At is the engine clock at dispatch, as an offset from the start.
	At      string          `json:"at"`
	URL     string          `json:"url"`
	Record  string          `json:"record,omitempty"`
	Payload json.RawMessage `json:"payload"`
	Outcome string          `json:"outcome"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every webhook attempt in dispatch order.
	Trace []TraceEvent `json:"trace"`

	// Polls is the number of fetches the engine made.
	Polls int `json:"polls"`

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

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
