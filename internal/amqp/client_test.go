package amqp

import (
	"testing"
	"time"
)

func TestNewBalanceReconcileMessage(t *testing.T) {
	msg := NewBalanceReconcileMessage(7, 42, 1001)

	if msg.GuardianID != 7 {
		t.Errorf("NewBalanceReconcileMessage() GuardianID = %v, want 7", msg.GuardianID)
	}
	if msg.KidID != 42 {
		t.Errorf("NewBalanceReconcileMessage() KidID = %v, want 42", msg.KidID)
	}
	if msg.EntryID != 1001 {
		t.Errorf("NewBalanceReconcileMessage() EntryID = %v, want 1001", msg.EntryID)
	}
	if msg.Timestamp.IsZero() {
		t.Error("NewBalanceReconcileMessage() Timestamp should not be zero")
	}
	if time.Since(msg.Timestamp) > time.Second {
		t.Error("NewBalanceReconcileMessage() Timestamp should be recent")
	}
}

func TestBalanceReconcileMessage_JSON(t *testing.T) {
	timestamp := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &BalanceReconcileMessage{
		GuardianID: 7,
		KidID:      42,
		EntryID:    1001,
		Timestamp:  timestamp,
	}

	jsonBytes, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsedMsg, err := BalanceReconcileMessageFromJSON(jsonBytes)
	if err != nil {
		t.Fatalf("BalanceReconcileMessageFromJSON() error = %v", err)
	}

	if parsedMsg.GuardianID != msg.GuardianID {
		t.Errorf("Parsed GuardianID = %v, want %v", parsedMsg.GuardianID, msg.GuardianID)
	}
	if parsedMsg.KidID != msg.KidID {
		t.Errorf("Parsed KidID = %v, want %v", parsedMsg.KidID, msg.KidID)
	}
	if parsedMsg.EntryID != msg.EntryID {
		t.Errorf("Parsed EntryID = %v, want %v", parsedMsg.EntryID, msg.EntryID)
	}
	if !parsedMsg.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Parsed Timestamp = %v, want %v", parsedMsg.Timestamp, msg.Timestamp)
	}
}

func TestBalanceReconcileMessage_InvalidJSON(t *testing.T) {
	invalidJSON := []byte(`{"kid_id": "not_a_number"}`)

	_, err := BalanceReconcileMessageFromJSON(invalidJSON)
	if err == nil {
		t.Error("BalanceReconcileMessageFromJSON() should fail with invalid JSON")
	}
}
