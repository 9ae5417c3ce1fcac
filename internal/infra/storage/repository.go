package storage

import (
	"context"
	"errors"

	"github.com/vietddude/streamkeeper/internal/core/domain"
)

var (
	// ErrInvalidMessage is returned when a message lacks its event name or id.
	ErrInvalidMessage = errors.New("message must have an event name and id")
)

// StreamAccessor reads and mutates one live stream.
type StreamAccessor interface {
	// Name returns the stream (event) name
	Name() string

	// Append adds a message under the given id; an empty id lets the store assign one
	Append(ctx context.Context, msg *domain.Message) (string, error)

	// Get retrieves a message by id, nil when absent
	Get(ctx context.Context, id string) (*domain.Message, error)

	// Delete removes a message by id
	Delete(ctx context.Context, id string) error

	// Range returns up to count messages with ids in [start, end]
	Range(ctx context.Context, start, end string, count int64) ([]*domain.Message, error)
}

// StreamFactory opens a StreamAccessor for a stream name.
type StreamFactory interface {
	Stream(name string) StreamAccessor
}

// FailureLedger is the durable set of encoded failure records.
type FailureLedger interface {
	// Add adds a member to the set
	Add(ctx context.Context, member string) error

	// Members lists every current member, in no particular order
	Members(ctx context.Context) ([]string, error)

	// Remove removes members from the set
	Remove(ctx context.Context, members ...string) error

	// Replace removes old members and adds member as one atomic step
	Replace(ctx context.Context, old []string, member string) error

	// Count returns the number of members
	Count(ctx context.Context) (int, error)
}

// ArchiveRepository stores messages removed from their live stream,
// keyed by (event name, id).
type ArchiveRepository interface {
	// Create stores a message, overwriting an existing entry with the same key
	Create(ctx context.Context, msg *domain.Message) error

	// Find retrieves one message, nil when absent
	Find(ctx context.Context, eventName, id string) (*domain.Message, error)

	// FindMany retrieves all messages of one event, ordered by id
	FindMany(ctx context.Context, eventName string) ([]*domain.Message, error)

	// All retrieves every archived message, ordered by event name then id
	All(ctx context.Context) ([]*domain.Message, error)

	// Delete removes a message; deleting a missing entry is not an error
	Delete(ctx context.Context, eventName, id string) error
}

// ValidateMessage checks that a message carries its archive key.
func ValidateMessage(msg *domain.Message) error {
	if msg == nil || msg.EventName == "" || msg.ID == "" {
		return ErrInvalidMessage
	}
	return nil
}
