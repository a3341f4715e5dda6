package amqp

import (
	"encoding/json"
	"time"
)

// Action names what happened to an expense.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// ExpenseEvent is a lightweight change notification. It carries ids only;
// consumers fetch the current record from the store when they need it.
type ExpenseEvent struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEvent(id, ownerID string, action Action) *ExpenseEvent {
	return &ExpenseEvent{
		ID:        id,
		OwnerID:   ownerID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON decodes an event published by ToJSON.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var ev ExpenseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
