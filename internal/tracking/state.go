package tracking

// Status is the coarse state of the tracking engine.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusTracking  Status = "tracking"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// State is a snapshot of the engine. SessionID and RouteID are set while
// tracking and after completion; Session only once completed; Message only
// in the error state.
type State struct {
	Status     Status       `json:"status"`
	SessionID  string       `json:"session_id,omitempty"`
	RouteID    *int         `json:"route_id,omitempty"`
	CurrentFix *LocationFix `json:"current_fix,omitempty"`
	Paused     bool         `json:"paused,omitempty"`
	Session    *Session     `json:"session,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// IsTracking reports whether a session is active, paused or not.
func (s State) IsTracking() bool {
	return s.Status == StatusTracking
}
