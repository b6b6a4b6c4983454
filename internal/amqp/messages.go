package amqp

import (
	"encoding/json"
	"time"
)

// BudgetSavedMessage announces that a full budget horizon was written to the
// remote sheet, so downstream consumers (dashboards, exports) can refresh.
type BudgetSavedMessage struct {
	Years       []int     `json:"years"`
	RecordCount int       `json:"record_count"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewBudgetSavedMessage(years []int, recordCount int) *BudgetSavedMessage {
	return &BudgetSavedMessage{
		Years:       years,
		RecordCount: recordCount,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BudgetSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetSavedMessageFromJSON creates a message from JSON bytes
func BudgetSavedMessageFromJSON(data []byte) (*BudgetSavedMessage, error) {
	var msg BudgetSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
