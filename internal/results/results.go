// Package results is the read/write model over broker task state, backed
// by Redis: a key per finished (or in-progress) task plus a registry of
// reserved/active work that workers maintain themselves. Redis is the only
// coordination medium shared by dispatchers and workers.
package results

// Task states surfaced to callers. PENDING doubles as "unknown id": a
// result key only appears once a worker has picked the task up.
const (
	StatusPending   = "PENDING"
	StatusActive    = "ACTIVE"
	StatusScheduled = "SCHEDULED"
	StatusReserved  = "RESERVED"
	StatusSuccess   = "SUCCESS"
	StatusFailure   = "FAILURE"
	StatusError     = "ERROR"
)

// Meta is the stored record for one task execution.
type Meta struct {
	TaskID       string         `json:"task_id"`
	TaskName     string         `json:"task_name"`
	Status       string         `json:"status"`
	Args         []any          `json:"args,omitempty"`
	Result       any            `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	Progress     map[string]any `json:"progress,omitempty"`
	Worker       string         `json:"worker,omitempty"`
	DateReceived string         `json:"date_received,omitempty"` // RFC3339
	DateDone     string         `json:"date_done,omitempty"`     // RFC3339
}

// Raw is an undecoded result-store entry, used by the bulk listing so a
// corrupt record degrades to id-only output instead of failing the scan.
type Raw struct {
	TaskID string
	Data   []byte
}

// Snapshot is one entry in the in-flight registry.
type Snapshot struct {
	TaskID   string `json:"task_id"`
	TaskName string `json:"task_name"`
	Queue    string `json:"queue,omitempty"`
	Worker   string `json:"worker,omitempty"`
	State    string `json:"state,omitempty"`
	Since    string `json:"since,omitempty"` // RFC3339
}
