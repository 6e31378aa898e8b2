package emit

// Event represents an observability event emitted by the engine's
// validators and stores.
//
// Events cover:
//   - Dependency cycle pre-checks (accepted and refused)
//   - Workflow definition validation outcomes
//   - Status transition checks and refusals
//   - Readiness recomputation
//
// Events are emitted to an Emitter which can log them, convert them to
// OpenTelemetry spans, or buffer them for inspection in tests.
type Event struct {
	// GraphID identifies the graph, definition or run the event concerns.
	// Empty for events that are not scoped to a particular graph.
	GraphID string `json:"graph_id,omitempty"`

	// NodeID identifies the task or workflow node involved, if any.
	NodeID string `json:"node_id,omitempty"`

	// Msg is a short machine-greppable event name, e.g. "cycle_check",
	// "definition_validated", "transition_refused".
	Msg string `json:"msg"`

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "depends_on": prerequisite id in a dependency check
	//   - "would_cycle": result of a cycle pre-check
	//   - "errors": validation error list
	//   - "from", "to": statuses in a transition check
	//   - "error": error details
	Meta map[string]interface{} `json:"meta,omitempty"`
}
