package harness

// TraceEvent records what one step did to the manager.
type TraceEvent struct {
	Step     int          `json:"step"`
	Action   string       `json:"action"`
	Frame    int          `json:"frame"`
	Computed []string     `json:"computed"`
	Layers   []LayerTrace `json:"layers,omitempty"`
	Errors   []ErrorTrace `json:"errors,omitempty"`
}

// LayerTrace is the refresh a layer needed after a step.
type LayerTrace struct {
	Layer   string   `json:"layer"`
	Perform []string `json:"perform"`
}

// ErrorTrace is a composition error present after a step.
type ErrorTrace struct {
	Code     string `json:"code"`
	Node     string `json:"node,omitempty"`
	Property string `json:"property,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, starting with the initial reset.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Values holds the final computed value of every leaf of the
	// composition, in plain Go form.
	Values map[string]any `json:"values"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Values: make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(event TraceEvent) {
	if event.Computed == nil {
		event.Computed = []string{}
	}
	r.Trace = append(r.Trace, event)
}

// Last returns the most recent trace event.
func (r *Result) Last() (TraceEvent, bool) {
	if len(r.Trace) == 0 {
		return TraceEvent{}, false
	}
	return r.Trace[len(r.Trace)-1], true
}
