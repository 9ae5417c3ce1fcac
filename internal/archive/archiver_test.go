package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vietddude/streamkeeper/internal/core/domain"
	"github.com/vietddude/streamkeeper/internal/infra/storage"
	"github.com/vietddude/streamkeeper/internal/infra/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Fakes
// =============================================================================

type failingRepo struct {
	storage.ArchiveRepository
	createErr error
	deleteErr error
}

func (r *failingRepo) Create(ctx context.Context, msg *domain.Message) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.ArchiveRepository.Create(ctx, msg)
}

func (r *failingRepo) Delete(ctx context.Context, eventName, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.ArchiveRepository.Delete(ctx, eventName, id)
}

type streamSpy struct {
	storage.StreamFactory
	deleteErr error
	appendErr error
	deletes   int
}

func (s *streamSpy) Stream(name string) storage.StreamAccessor {
	return &spyStream{StreamAccessor: s.StreamFactory.Stream(name), spy: s}
}

type spyStream struct {
	storage.StreamAccessor
	spy *streamSpy
}

func (s *spyStream) Delete(ctx context.Context, id string) error {
	s.spy.deletes++
	if s.spy.deleteErr != nil {
		return s.spy.deleteErr
	}
	return s.StreamAccessor.Delete(ctx, id)
}

func (s *spyStream) Append(ctx context.Context, msg *domain.Message) (string, error) {
	if s.spy.appendErr != nil {
		return "", s.spy.appendErr
	}
	return s.StreamAccessor.Append(ctx, msg)
}

func seed(t *testing.T, store *memory.MemoryStorage) *domain.Message {
	t.Helper()
	msg := domain.NewMessage("123-0", "foo.bar", []byte(`{"payload":123}`), map[string]string{"domain": "test"})
	_, err := store.Stream(msg.EventName).Append(context.Background(), msg)
	require.NoError(t, err)
	return msg
}

// =============================================================================
// Archive
// =============================================================================

func TestArchive_MovesMessage(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	repo := memory.NewArchiveRepo(store)
	msg := seed(t, store)

	require.NoError(t, NewArchiver(repo, store).Archive(ctx, msg))

	archived, err := repo.Find(ctx, msg.EventName, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, archived)
	assert.Equal(t, msg.Payload, archived.Payload)

	live, err := store.Stream(msg.EventName).Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, live)
}

func TestArchive_StoreFailureKeepsStream(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	inner := memory.NewArchiveRepo(store)
	repo := &failingRepo{ArchiveRepository: inner, createErr: errors.New("disk full")}
	spy := &streamSpy{StreamFactory: store}
	msg := seed(t, store)

	err := NewArchiver(repo, spy).Archive(ctx, msg)
	require.ErrorIs(t, err, ErrStoreWrite)
	assert.ErrorContains(t, err, "disk full")
	assert.Zero(t, spy.deletes)

	archived, err := inner.Find(ctx, msg.EventName, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, archived)

	live, err := store.Stream(msg.EventName).Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, live)
}

func TestArchive_StreamDeleteFailureDuplicates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	repo := memory.NewArchiveRepo(store)
	spy := &streamSpy{StreamFactory: store, deleteErr: errors.New("xdel failed")}
	msg := seed(t, store)

	err := NewArchiver(repo, spy).Archive(ctx, msg)
	require.ErrorIs(t, err, ErrStreamDelete)
	assert.Equal(t, 1, spy.deletes)

	archived, err := repo.Find(ctx, msg.EventName, msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, archived)

	live, err := store.Stream(msg.EventName).Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, live)
}

func TestArchive_RejectsInvalidMessage(t *testing.T) {
	store := memory.NewMemoryStorage()
	err := NewArchiver(memory.NewArchiveRepo(store), store).Archive(context.Background(), domain.NewMessage("", "foo", nil, nil))
	assert.ErrorIs(t, err, storage.ErrInvalidMessage)
}

func TestArchive_FindManyCountsPerEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	repo := memory.NewArchiveRepo(store)
	archiver := NewArchiver(repo, store)

	for _, id := range []string{"1-0", "2-0", "3-0"} {
		msg := domain.NewMessage(id, "foo.bar", []byte("x"), nil)
		_, err := store.Stream("foo.bar").Append(ctx, msg)
		require.NoError(t, err)
		require.NoError(t, archiver.Archive(ctx, msg))
	}
	other := domain.NewMessage("1-0", "other.bar", []byte("y"), nil)
	require.NoError(t, archiver.Archive(ctx, other))
	require.NoError(t, archiver.Purge(ctx, "foo.bar", "2-0"))

	many, err := repo.FindMany(ctx, "foo.bar")
	require.NoError(t, err)
	assert.Len(t, many, 2)
	for _, m := range many {
		assert.Equal(t, "foo.bar", m.EventName)
	}
}

// =============================================================================
// Restore
// =============================================================================

func TestRestore_MovesMessageBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	repo := memory.NewArchiveRepo(store)
	archiver := NewArchiver(repo, store)
	msg := seed(t, store)
	require.NoError(t, archiver.Archive(ctx, msg))

	require.NoError(t, archiver.Restore(ctx, msg.EventName, msg.ID))

	archived, err := repo.Find(ctx, msg.EventName, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, archived)

	live, err := store.Stream(msg.EventName).Get(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, msg.Payload, live.Payload)
}

func TestRestore_NotArchived(t *testing.T) {
	store := memory.NewMemoryStorage()
	err := NewArchiver(memory.NewArchiveRepo(store), store).Restore(context.Background(), "foo.bar", "1-0")
	assert.ErrorIs(t, err, ErrNotArchived)
}

func TestRestore_AppendFailureKeepsArchive(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	repo := memory.NewArchiveRepo(store)
	msg := domain.NewMessage("1-0", "foo.bar", []byte("x"), nil)
	require.NoError(t, repo.Create(ctx, msg))

	spy := &streamSpy{StreamFactory: store, appendErr: errors.New("xadd failed")}
	err := NewArchiver(repo, spy).Restore(ctx, "foo.bar", "1-0")
	require.ErrorIs(t, err, ErrStreamAppend)

	archived, err := repo.Find(ctx, "foo.bar", "1-0")
	require.NoError(t, err)
	assert.NotNil(t, archived)
}

func TestRestore_ArchiveDeleteFailureDuplicates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	inner := memory.NewArchiveRepo(store)
	msg := domain.NewMessage("1-0", "foo.bar", []byte("x"), nil)
	require.NoError(t, inner.Create(ctx, msg))
	repo := &failingRepo{ArchiveRepository: inner, deleteErr: errors.New("locked")}

	err := NewArchiver(repo, store).Restore(ctx, "foo.bar", "1-0")
	require.ErrorIs(t, err, ErrArchiveDelete)

	live, err := store.Stream("foo.bar").Get(ctx, "1-0")
	require.NoError(t, err)
	assert.NotNil(t, live)
}
