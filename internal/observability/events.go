package observability

const (
	RoutingKeyWSEvents      = "ws_events.rooms"
	RoutingKeyMessageEvents = "message_events.rooms"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// MessageCreated describes a stored message without its content.
type MessageCreated struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	SenderID  string `json:"sender_id"`
	Kind      string `json:"kind"`
	SizeBytes int    `json:"size_bytes"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
