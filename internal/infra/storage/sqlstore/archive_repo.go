package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/streamkeeper/internal/core/domain"
	"github.com/vietddude/streamkeeper/internal/infra/storage"
)

// ArchiveRepo implements storage.ArchiveRepository on an SQL table.
type ArchiveRepo struct {
	db  *DB
	now func() time.Time
}

// NewArchiveRepo creates a new SQL archive repository.
func NewArchiveRepo(db *DB) *ArchiveRepo {
	return &ArchiveRepo{db: db, now: time.Now}
}

type archivedRow struct {
	EventName  string `db:"event_name"`
	ID         string `db:"id"`
	Payload    []byte `db:"payload"`
	Metadata   string `db:"metadata"`
	ArchivedAt int64  `db:"archived_at"`
}

func (r archivedRow) toMessage() (*domain.Message, error) {
	var meta map[string]string
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata of %s/%s: %w", r.EventName, r.ID, err)
		}
	}
	return domain.NewMessage(r.ID, r.EventName, r.Payload, meta), nil
}

// Create upserts the message under (event_name, id).
func (r *ArchiveRepo) Create(ctx context.Context, msg *domain.Message) error {
	if err := storage.ValidateMessage(msg); err != nil {
		return err
	}

	meta, err := json.Marshal(msg.Meta())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO archived_messages (event_name, id, payload, metadata, archived_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (event_name, id) DO UPDATE
		SET payload = excluded.payload, metadata = excluded.metadata, archived_at = excluded.archived_at
	`)
	_, err = r.db.ExecContext(
		ctx,
		query,
		msg.EventName,
		msg.ID,
		msg.Payload,
		string(meta),
		r.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive message: %w", err)
	}
	return nil
}

// Find returns one archived message or nil.
func (r *ArchiveRepo) Find(ctx context.Context, eventName, id string) (*domain.Message, error) {
	query := r.db.Rebind(`
		SELECT event_name, id, payload, metadata, archived_at
		FROM archived_messages
		WHERE event_name = ? AND id = ?
	`)

	var row archivedRow
	err := r.db.GetContext(ctx, &row, query, eventName, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archived message: %w", err)
	}
	return row.toMessage()
}

// FindMany returns the archived messages of one event.
func (r *ArchiveRepo) FindMany(ctx context.Context, eventName string) ([]*domain.Message, error) {
	query := r.db.Rebind(`
		SELECT event_name, id, payload, metadata, archived_at
		FROM archived_messages
		WHERE event_name = ?
		ORDER BY id
	`)
	return r.selectMessages(ctx, query, eventName)
}

// All returns every archived message.
func (r *ArchiveRepo) All(ctx context.Context) ([]*domain.Message, error) {
	query := `
		SELECT event_name, id, payload, metadata, archived_at
		FROM archived_messages
		ORDER BY event_name, id
	`
	return r.selectMessages(ctx, query)
}

// Delete removes an archived message if present.
func (r *ArchiveRepo) Delete(ctx context.Context, eventName, id string) error {
	query := r.db.Rebind(`DELETE FROM archived_messages WHERE event_name = ? AND id = ?`)
	if _, err := r.db.ExecContext(ctx, query, eventName, id); err != nil {
		return fmt.Errorf("failed to delete archived message: %w", err)
	}
	return nil
}

func (r *ArchiveRepo) selectMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	var rows []archivedRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list archived messages: %w", err)
	}

	msgs := make([]*domain.Message, 0, len(rows))
	for _, row := range rows {
		m, err := row.toMessage()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
