package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ForecastRequestMessage asks a worker to compute and store a forecast.
// The worker reads the ledger itself; the message only carries parameters.
// BalanceCents, when set, replaces the ledger balance.
type ForecastRequestMessage struct {
	ID           string    `json:"id"`
	HorizonDays  int       `json:"horizon_days"`
	BalanceCents *int64    `json:"balance_cents,omitempty"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewForecastRequestMessage(horizonDays int, reason string) *ForecastRequestMessage {
	return &ForecastRequestMessage{
		ID:          uuid.NewString(),
		HorizonDays: horizonDays,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *ForecastRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ForecastRequestMessageFromJSON decodes and checks a message body.
func ForecastRequestMessageFromJSON(data []byte) (*ForecastRequestMessage, error) {
	var msg ForecastRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("message id is required")
	}
	if msg.HorizonDays < 0 {
		return nil, errors.New("horizon must not be negative")
	}
	return &msg, nil
}
