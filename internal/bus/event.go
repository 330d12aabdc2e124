package bus

import "time"

// Event kinds published by the board.
const (
	KindMessageCreated = "message.created"
	KindPushOK         = "push.ok"
	KindPushFailed     = "push.failed"
	KindPullCompleted  = "pull.completed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
