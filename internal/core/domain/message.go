package domain

import "maps"

// Message is a single stream entry. It is immutable once built with NewMessage.
type Message struct {
	ID        string
	EventName string
	Payload   []byte
	Metadata  map[string]string
}

// NewMessage builds a message, copying payload and metadata so later mutation
// by the caller does not leak into the record.
func NewMessage(id, eventName string, payload []byte, metadata map[string]string) *Message {
	m := &Message{
		ID:        id,
		EventName: eventName,
		Payload:   append([]byte(nil), payload...),
	}
	if len(metadata) > 0 {
		m.Metadata = maps.Clone(metadata)
	}
	return m
}

// Meta returns a copy of the metadata fields.
func (m *Message) Meta() map[string]string {
	if m.Metadata == nil {
		return map[string]string{}
	}
	return maps.Clone(m.Metadata)
}

// WithID returns a copy of the message carrying a different id.
func (m *Message) WithID(id string) *Message {
	return NewMessage(id, m.EventName, m.Payload, m.Metadata)
}
