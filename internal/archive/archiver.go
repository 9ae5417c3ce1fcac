package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/streamkeeper/internal/core/domain"
	"github.com/vietddude/streamkeeper/internal/infra/storage"
	"github.com/vietddude/streamkeeper/internal/metrics"
)

var (
	// ErrStoreWrite means the archive write failed and the stream was left untouched.
	ErrStoreWrite = errors.New("archive write failed")
	// ErrStreamDelete means the message was archived but is still on the stream.
	ErrStreamDelete = errors.New("stream delete failed")
	// ErrStreamAppend means a restore could not put the message back on the stream.
	ErrStreamAppend = errors.New("stream append failed")
	// ErrArchiveDelete means a restored message is still in the archive.
	ErrArchiveDelete = errors.New("archive delete failed")
	// ErrNotArchived is returned when restoring a message that is not archived.
	ErrNotArchived = errors.New("message not archived")
)

// Archiver moves messages between live streams and the archive. Each move
// writes the destination first so a partial failure duplicates a message
// instead of losing it.
type Archiver struct {
	repo    storage.ArchiveRepository
	streams storage.StreamFactory
}

// NewArchiver creates a new archiver.
func NewArchiver(repo storage.ArchiveRepository, streams storage.StreamFactory) *Archiver {
	return &Archiver{
		repo:    repo,
		streams: streams,
	}
}

// Archive stores msg in the archive and then removes it from its stream.
func (a *Archiver) Archive(ctx context.Context, msg *domain.Message) error {
	if err := storage.ValidateMessage(msg); err != nil {
		return err
	}

	if err := a.repo.Create(ctx, msg); err != nil {
		metrics.ArchiveErrors.WithLabelValues(msg.EventName, "store").Inc()
		return fmt.Errorf("%w: %s/%s: %w", ErrStoreWrite, msg.EventName, msg.ID, err)
	}

	if err := a.streams.Stream(msg.EventName).Delete(ctx, msg.ID); err != nil {
		metrics.ArchiveErrors.WithLabelValues(msg.EventName, "stream").Inc()
		return fmt.Errorf("%w: %s/%s: %w", ErrStreamDelete, msg.EventName, msg.ID, err)
	}

	metrics.MessagesArchived.WithLabelValues(msg.EventName).Inc()
	return nil
}

// Restore appends an archived message back to its stream under the same id
// and then removes it from the archive.
func (a *Archiver) Restore(ctx context.Context, eventName, id string) error {
	msg, err := a.repo.Find(ctx, eventName, id)
	if err != nil {
		return fmt.Errorf("failed to find archived message %s/%s: %w", eventName, id, err)
	}
	if msg == nil {
		return fmt.Errorf("%w: %s/%s", ErrNotArchived, eventName, id)
	}

	if _, err := a.streams.Stream(eventName).Append(ctx, msg); err != nil {
		metrics.ArchiveErrors.WithLabelValues(eventName, "restore_stream").Inc()
		return fmt.Errorf("%w: %s/%s: %w", ErrStreamAppend, eventName, id, err)
	}

	if err := a.repo.Delete(ctx, eventName, id); err != nil {
		metrics.ArchiveErrors.WithLabelValues(eventName, "restore_store").Inc()
		return fmt.Errorf("%w: %s/%s: %w", ErrArchiveDelete, eventName, id, err)
	}

	metrics.MessagesRestored.WithLabelValues(eventName).Inc()
	return nil
}

// Purge deletes a message from the archive.
func (a *Archiver) Purge(ctx context.Context, eventName, id string) error {
	if err := a.repo.Delete(ctx, eventName, id); err != nil {
		return fmt.Errorf("failed to purge archived message %s/%s: %w", eventName, id, err)
	}
	return nil
}
