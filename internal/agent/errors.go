package agent

import "fmt"

// ProtocolInconsistencyError reports a model reply that does not fit the
// tool-use contract: a stop reason the pipeline does not know, or a tool_use
// stop with no tool-use block to execute.
type ProtocolInconsistencyError struct {
	StopReason string
	Reason     string
}

func (e *ProtocolInconsistencyError) Error() string {
	return fmt.Sprintf("inconsistent model reply (stop reason %q): %s", e.StopReason, e.Reason)
}
