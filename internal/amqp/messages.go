package amqp

import (
	"encoding/json"
	"time"
)

// BalanceReconcileMessage asks the worker to rebuild one kid's bucket
// balances from the ledger. It carries only identifiers; the worker
// replays the ledger itself.
type BalanceReconcileMessage struct {
	GuardianID int64     `json:"guardian_id"`
	KidID      int64     `json:"kid_id"`
	EntryID    int64     `json:"entry_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewBalanceReconcileMessage creates a reconcile message for the given kid.
// EntryID is the ledger entry whose projection failed, for traceability.
func NewBalanceReconcileMessage(guardianID, kidID, entryID int64) *BalanceReconcileMessage {
	return &BalanceReconcileMessage{
		GuardianID: guardianID,
		KidID:      kidID,
		EntryID:    entryID,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BalanceReconcileMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BalanceReconcileMessageFromJSON creates a message from JSON bytes
func BalanceReconcileMessageFromJSON(data []byte) (*BalanceReconcileMessage, error) {
	var msg BalanceReconcileMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
