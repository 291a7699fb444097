package ledger

import "time"

// Priority orders notification delivery on the consumer side.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Channel names the delivery medium for a notification.
type Channel string

const (
	// ChannelInApp is the default delivery channel.
	ChannelInApp Channel = "in-app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// NotificationEvent informs a user about a committed movement. Delivery is
// best-effort and never mutates ledger state.
type NotificationEvent struct {
	UserID    string         `json:"userId"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Priority  Priority       `json:"priority"`
	Channel   Channel        `json:"channel"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NotificationTypeTransaction marks movement notifications, matching the
// consumer-side contract.
const NotificationTypeTransaction = "TRANSACTION"

// NewMovementNotification builds the notification emitted to one affected
// party after a successful movement.
func NewMovementNotification(userID, message, txID string) NotificationEvent {
	return NotificationEvent{
		UserID: userID,
		Type:   NotificationTypeTransaction,
		Payload: map[string]any{
			"message": message,
			"txId":    txID,
		},
		Priority:  PriorityNormal,
		Channel:   ChannelInApp,
		CreatedAt: time.Now().UTC(),
	}
}

// ErrorEvent records a movement attempt that failed after validation passed.
// It is purely observational; it never drives retries.
type ErrorEvent struct {
	TxID      string    `json:"txId"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorEvent builds an error event for a candidate transaction that may
// never have committed.
func NewErrorEvent(txID string, err error) ErrorEvent {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}

	return ErrorEvent{
		TxID:      txID,
		Error:     message,
		Timestamp: time.Now().UTC(),
	}
}
