package models

// Stream event types. Every NDJSON object on a /query/stream response
// carries exactly one of these in its "type" field; "done" terminates
// the stream and is emitted exactly once.
const (
	EventPartial = "partial"
	EventParsed  = "parsed"
	EventError   = "error"
	EventDone    = "done"
)

// StreamEvent is one newline-delimited JSON object of the streaming
// wire protocol. Content is set for partials, Message for errors, and
// Response for a successfully parsed answer.
type StreamEvent struct {
	Type     string              `json:"type"`
	Content  string              `json:"content,omitempty"`
	Message  string              `json:"message,omitempty"`
	Response *StructuredResponse `json:"response,omitempty"`
}

// NotificationType values broadcast over the websocket channel.
const (
	ChangeNode   = "node"
	ChangeDomain = "domain"
)

// Notification is the server→client message on the notification channel.
type Notification struct {
	Type string `json:"type"`
}
