package amqp

import (
	"testing"
	"time"
)

func TestBudgetSavedMessageRoundTrip(t *testing.T) {
	msg := NewBudgetSavedMessage([]int{2025, 2026}, 24)
	if msg.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := BudgetSavedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Years) != 2 || got.Years[0] != 2025 || got.Years[1] != 2026 {
		t.Fatalf("unexpected years: %v", got.Years)
	}
	if got.RecordCount != 24 {
		t.Fatalf("expected 24 records, got %d", got.RecordCount)
	}
	if !got.Timestamp.Truncate(time.Second).Equal(msg.Timestamp.Truncate(time.Second)) {
		t.Fatalf("timestamp mangled: %v vs %v", got.Timestamp, msg.Timestamp)
	}
}

func TestBudgetSavedMessageFromJSONRejectsGarbage(t *testing.T) {
	if _, err := BudgetSavedMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
