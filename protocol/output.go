package protocol

// OutputMessageType defines server-to-client message types
type OutputMessageType string

const (
	// OutputResult carries the aggregated outcome of a multicast
	OutputResult OutputMessageType = "multicast.result"

	// OutputBranch carries a single branch copy, e.g. from a websocket sink
	OutputBranch OutputMessageType = "multicast.branch"

	// OutputError reports a failed request
	OutputError OutputMessageType = "error"
)

// OutputMessage represents a message to client
type OutputMessage struct {
	Type      OutputMessageType `json:"type"`
	ID        string            `json:"id"`                // Server-generated message ID
	ReplyTo   string            `json:"replyTo,omitempty"` // ID of the routed message
	Payload   any               `json:"payload"`
	Timestamp int64             `json:"timestamp"`
}

// MessagePayload for multicast.result and multicast.branch
type MessagePayload struct {
	Body    any            `json:"body"`
	Headers map[string]any `json:"headers,omitempty"`
	Branch  *int           `json:"branch,omitempty"`  // Branch index, only for branch copies
	Failure string         `json:"failure,omitempty"` // Failure kept on the message
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
