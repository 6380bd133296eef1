package broker

// Option keys the dispatcher merges into every envelope. Workers reject
// envelopes whose signature does not recompute over the task name and
// positional args, so holding broker access alone is not enough to get a
// task executed.
const (
	OptionSignedMessage = "signed_message"
	OptionInfoInternal  = "info_internal"
)

// Envelope is the wire form of one task invocation. It is produced by the
// dispatcher at send time and consumed exactly once by the worker that
// dequeues it.
type Envelope struct {
	TaskID       string            `json:"task_id"`
	TaskName     string            `json:"task_name"`
	Args         []any             `json:"args"`
	Options      map[string]any    `json:"options,omitempty"`
	Queue        string            `json:"queue"`
	PublishedAt  string            `json:"published_at"` // RFC3339
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// Signable returns the exact structure the internal signature covers.
// Dispatcher and worker must both build it from the envelope's task name
// and positional args, never from caller-provided copies.
func (e *Envelope) Signable() map[string]any {
	return SignableFor(e.TaskName, e.Args)
}

// SignableFor builds the signature payload for a task invocation.
func SignableFor(taskName string, args []any) map[string]any {
	return map[string]any{
		"task_name": taskName,
		"args":      args,
	}
}

// SignedMessage extracts the internal signature from the envelope options,
// or "" when absent.
func (e *Envelope) SignedMessage() string {
	if e.Options == nil {
		return ""
	}
	sig, _ := e.Options[OptionSignedMessage].(string)
	return sig
}
