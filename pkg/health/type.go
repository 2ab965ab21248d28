package health

import "time"

// Record is the per-source observability entry shown by the status view.
type Record struct {
	LastOK        *time.Time `json:"last_ok,omitempty"`
	LastError     *time.Time `json:"last_error,omitempty"`
	ErrorCount    int        `json:"error_count"`
	LastLatencyMs int64      `json:"last_latency_ms"`
	LastErrorMsg  string     `json:"last_error_msg,omitempty"`
	LastErrorKind string     `json:"last_error_kind,omitempty"`
	FutureCount   int        `json:"future_count"`
}
