package pipeline

// ProgressEvent represents a state transition during a run.
type ProgressEvent struct {
	Stage     State  `json:"stage"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Content   any    `json:"content,omitempty"`
}

// ProgressCallback is called on every transition. It runs on the pipeline's
// goroutine and should return quickly.
type ProgressCallback func(event ProgressEvent)
