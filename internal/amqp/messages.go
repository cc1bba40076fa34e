package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// InvoiceDispatchMessage asks the invoice worker to email a child's invoice.
// Only the child id travels; the worker rebuilds the invoice from storage.
type InvoiceDispatchMessage struct {
	ChildID     string    `json:"childId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// NewInvoiceDispatchMessage creates a dispatch message for a child
func NewInvoiceDispatchMessage(childID string, requestedAt time.Time) *InvoiceDispatchMessage {
	if requestedAt.IsZero() {
		requestedAt = time.Now()
	}
	return &InvoiceDispatchMessage{
		ChildID:     childID,
		RequestedAt: requestedAt,
	}
}

// ToJSON converts the message to JSON bytes
func (m *InvoiceDispatchMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InvoiceDispatchMessageFromJSON creates a message from JSON bytes
func InvoiceDispatchMessageFromJSON(data []byte) (*InvoiceDispatchMessage, error) {
	var msg InvoiceDispatchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ChildID == "" {
		return nil, errors.New("message has no child id")
	}
	return &msg, nil
}
