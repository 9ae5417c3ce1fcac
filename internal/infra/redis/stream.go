package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/streamkeeper/internal/core/domain"
)

// Entry field names.
const (
	FieldName = "name"
	FieldData = "data"
)

// Stream implements storage.StreamAccessor on a Redis stream.
type Stream struct {
	rdb  *redis.Client
	name string
}

// NewStream creates an accessor for the stream stored under name.
func NewStream(client *Client, name string) *Stream {
	return &Stream{
		rdb:  client.rdb,
		name: name,
	}
}

// Name returns the stream key.
func (s *Stream) Name() string {
	return s.name
}

// Append adds the message with XADD. An empty id lets Redis assign one.
func (s *Stream) Append(ctx context.Context, msg *domain.Message) (string, error) {
	id := msg.ID
	if id == "" {
		id = "*"
	}

	eventName := msg.EventName
	if eventName == "" {
		eventName = s.name
	}

	values := make(map[string]any, len(msg.Metadata)+2)
	for k, v := range msg.Metadata {
		values[k] = v
	}
	if _, ok := values[FieldName]; !ok {
		values[FieldName] = eventName
	}
	values[FieldData] = string(msg.Payload)

	newID, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.name,
		ID:     id,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd failed: %w", err)
	}
	return newID, nil
}

// Get retrieves a single entry, nil when the stream has no such id. An id
// that is not a valid stream id cannot be on the stream either.
func (s *Stream) Get(ctx context.Context, id string) (*domain.Message, error) {
	entries, err := s.rdb.XRangeN(ctx, s.name, id, id, 1).Result()
	if err != nil {
		if isInvalidID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("xrange failed: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return s.toMessage(entries[0]), nil
}

// Delete removes an entry with XDEL.
func (s *Stream) Delete(ctx context.Context, id string) error {
	if err := s.rdb.XDel(ctx, s.name, id).Err(); err != nil {
		return fmt.Errorf("xdel failed: %w", err)
	}
	return nil
}

// Range returns entries between start and end inclusive. count <= 0 means no limit.
func (s *Stream) Range(ctx context.Context, start, end string, count int64) ([]*domain.Message, error) {
	var (
		entries []redis.XMessage
		err     error
	)
	if count > 0 {
		entries, err = s.rdb.XRangeN(ctx, s.name, start, end, count).Result()
	} else {
		entries, err = s.rdb.XRange(ctx, s.name, start, end).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("xrange failed: %w", err)
	}

	msgs := make([]*domain.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, s.toMessage(e))
	}
	return msgs, nil
}

// toMessage builds a message whose event name is always the stream key. A
// "name" field that differs from the key is kept in the metadata so it
// survives a later Append.
func (s *Stream) toMessage(e redis.XMessage) *domain.Message {
	var payload []byte
	meta := make(map[string]string)

	for k, v := range e.Values {
		str := fmt.Sprint(v)
		switch k {
		case FieldName:
			if str != "" && str != s.name {
				meta[FieldName] = str
			}
		case FieldData:
			payload = []byte(str)
		default:
			meta[k] = str
		}
	}
	return domain.NewMessage(e.ID, s.name, payload, meta)
}

func isInvalidID(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && strings.Contains(rerr.Error(), "Invalid stream ID")
}
