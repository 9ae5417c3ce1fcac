package domain

import (
	"encoding/json"
	"fmt"
)

// FailedMessage records one delivery failure. It is stored in the failure
// ledger as its JSON encoding, so two failures with the same fields are the
// same ledger entry.
type FailedMessage struct {
	ID       string `json:"id"`
	Stream   string `json:"stream"`
	Receiver string `json:"receiver"`
	Error    string `json:"error"`
}

// Encode returns the ledger member for the record.
// Field order is fixed by the struct, so equal records encode identically.
func (f FailedMessage) Encode() (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to marshal failed message: %w", err)
	}
	return string(data), nil
}

// DecodeFailedMessage parses a ledger member.
func DecodeFailedMessage(member string) (FailedMessage, error) {
	var f FailedMessage
	if err := json.Unmarshal([]byte(member), &f); err != nil {
		return FailedMessage{}, fmt.Errorf("failed to unmarshal failed message: %w", err)
	}
	return f, nil
}

// Matches reports whether the record refers to the given delivery.
func (f FailedMessage) Matches(stream, id, receiver string) bool {
	return f.Stream == stream && f.ID == id && f.Receiver == receiver
}
