package amqp

import (
	"encoding/json"
	"time"
)

// PaymentSyncMessage asks the worker to export one payment. It carries
// only the payment ID; the worker fetches the full row from the database
// so the queue never holds stale amounts.
type PaymentSyncMessage struct {
	PaymentID    string    `json:"payment_id"`
	CommitmentID string    `json:"commitment_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewPaymentSyncMessage creates a sync message for a recorded payment
func NewPaymentSyncMessage(paymentID, commitmentID string) *PaymentSyncMessage {
	return &PaymentSyncMessage{
		PaymentID:    paymentID,
		CommitmentID: commitmentID,
		Timestamp:    time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentSyncMessageFromJSON creates a message from JSON bytes
func PaymentSyncMessageFromJSON(data []byte) (*PaymentSyncMessage, error) {
	var msg PaymentSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
