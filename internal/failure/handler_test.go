package failure

import (
	"context"
	"errors"
	"sync/atomic"
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

const localReceiver = "local.listener"

// =============================================================================
// Test fixtures
// =============================================================================

type countingReceiver struct {
	calls atomic.Int32
	err   error
	seen  []*domain.Message
}

func (r *countingReceiver) Handle(ctx context.Context, msg *domain.Message) error {
	r.calls.Add(1)
	r.seen = append(r.seen, msg)
	return r.err
}

type fixture struct {
	store    *memory.MemoryStorage
	ledger   *memory.Ledger
	registry *Registry
	handler  *Handler
}

func newFixture(t *testing.T, receiver Receiver) *fixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	ledger := memory.NewLedger(store, "streamer.failed.messages")
	registry := NewRegistry()
	if receiver != nil {
		require.NoError(t, registry.RegisterReceiver(localReceiver, receiver))
	}
	return &fixture{
		store:    store,
		ledger:   ledger,
		registry: registry,
		handler:  NewHandler(ledger, store, registry),
	}
}

// failFakeMessage puts a message on the stream and records its failure.
func (f *fixture) failFakeMessage(t *testing.T, stream, id, payload string) *domain.Message {
	t.Helper()
	ctx := context.Background()
	msg := domain.NewMessage(id, stream, []byte(payload), map[string]string{"domain": "test"})
	_, err := f.store.Stream(stream).Append(ctx, msg)
	require.NoError(t, err)
	require.NoError(t, f.handler.Handle(ctx, msg, localReceiver, errors.New("error")))
	return msg
}

func (f *fixture) ledgerSize(t *testing.T) int {
	t.Helper()
	n, err := f.ledger.Count(context.Background())
	require.NoError(t, err)
	return n
}

// =============================================================================
// Handle / List
// =============================================================================

func TestHandle_StoresFailedMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingReceiver{})
	msg := domain.NewMessage("123", "foo.bar", []byte(`"payload"`), nil)

	require.NoError(t, f.handler.Handle(ctx, msg, localReceiver, errors.New("error")))

	members, err := f.ledger.Members(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.JSONEq(t, `{"id":"123","stream":"foo.bar","receiver":"local.listener","error":"error"}`, members[0])
}

func TestHandle_IdenticalFailuresCollapse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingReceiver{})
	msg := domain.NewMessage("123", "foo.bar", nil, nil)

	require.NoError(t, f.handler.Handle(ctx, msg, localReceiver, errors.New("error")))
	require.NoError(t, f.handler.Handle(ctx, msg, localReceiver, errors.New("error")))

	assert.Equal(t, 1, f.ledgerSize(t))
}

func TestHandle_PropagatesLedgerError(t *testing.T) {
	storeErr := errors.New("connection refused")
	h := NewHandler(&brokenLedger{err: storeErr}, memory.NewMemoryStorage(), NewRegistry())

	err := h.Handle(context.Background(), domain.NewMessage("1", "s", nil, nil), localReceiver, errors.New("x"))
	assert.ErrorIs(t, err, storeErr)
}

func TestList_AllFailedMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingReceiver{})
	f.failFakeMessage(t, "foo.bar", "123", `{"payload":123}`)
	f.failFakeMessage(t, "other.bar", "321", `{"payload":321}`)
	f.failFakeMessage(t, "some.bar", "456", `{"payload":456}`)

	got, err := f.handler.List(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []domain.FailedMessage{
		{ID: "123", Stream: "foo.bar", Receiver: localReceiver, Error: "error"},
		{ID: "321", Stream: "other.bar", Receiver: localReceiver, Error: "error"},
		{ID: "456", Stream: "some.bar", Receiver: localReceiver, Error: "error"},
	}, got)
}

func TestList_EmptyAndInvalidMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	got, err := f.handler.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	require.NoError(t, f.ledger.Add(ctx, "garbage"))
	got, err = f.handler.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// Retry
// =============================================================================

func TestRetry_FailedMessage(t *testing.T) {
	ctx := context.Background()
	receiver := &countingReceiver{}
	f := newFixture(t, receiver)
	msg := f.failFakeMessage(t, "foo.bar", "123", `{"payload":123}`)

	outcome, err := f.handler.Retry(ctx, "foo.bar", "123", localReceiver)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.EqualValues(t, 1, receiver.calls.Load())
	require.Len(t, receiver.seen, 1)
	assert.Equal(t, msg.ID, receiver.seen[0].ID)
	assert.Equal(t, msg.Payload, receiver.seen[0].Payload)
	assert.Zero(t, f.ledgerSize(t))
}

func TestRetry_UnknownReceiverIsNoop(t *testing.T) {
	ctx := context.Background()
	receiver := &countingReceiver{}
	f := newFixture(t, receiver)
	f.failFakeMessage(t, "foo.bar", "123", `{}`)

	outcome, err := f.handler.Retry(ctx, "foo.bar", "123", "NotARealType")
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, receiver.calls.Load())
	assert.Equal(t, 1, f.ledgerSize(t))
}

func TestRetry_UnknownReceiverDoesNotTouchStore(t *testing.T) {
	h := NewHandler(&brokenLedger{err: errors.New("down")}, memory.NewMemoryStorage(), NewRegistry())

	outcome, err := h.Retry(context.Background(), "foo.bar", "123", "NotARealType")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestRetry_MissingMessageIsNoop(t *testing.T) {
	ctx := context.Background()
	receiver := &countingReceiver{}
	f := newFixture(t, receiver)

	outcome, err := f.handler.Retry(ctx, "foo.bar", "123", localReceiver)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, receiver.calls.Load())
}

func TestRetry_FailsAgainKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	receiver := &countingReceiver{err: errors.New("error")}
	f := newFixture(t, receiver)
	f.failFakeMessage(t, "foo.bar", "123", `{}`)

	outcome, err := f.handler.Retry(ctx, "foo.bar", "123", localReceiver)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, 1, f.ledgerSize(t))
}

func TestRetry_FailsWithNewErrorReplacesRecord(t *testing.T) {
	ctx := context.Background()
	receiver := &countingReceiver{err: errors.New("still broken")}
	f := newFixture(t, receiver)
	f.failFakeMessage(t, "foo.bar", "123", `{}`)

	_, err := f.handler.Retry(ctx, "foo.bar", "123", localReceiver)
	require.NoError(t, err)

	got, err := f.handler.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "still broken", got[0].Error)
}

func TestRetry_PanickingReceiverIsFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ReceiverFunc(func(ctx context.Context, msg *domain.Message) error {
		panic("boom")
	}))
	f.failFakeMessage(t, "foo.bar", "123", `{}`)

	outcome, err := f.handler.Retry(ctx, "foo.bar", "123", localReceiver)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	got, err := f.handler.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error, "boom")
}

// =============================================================================
// RetryAll
// =============================================================================

func TestRetryAll_DrainsLedger(t *testing.T) {
	ctx := context.Background()
	receiver := &countingReceiver{}
	f := newFixture(t, receiver)
	f.failFakeMessage(t, "foo.bar", "123", `{"payload":123}`)
	f.failFakeMessage(t, "foo.bar", "345", `{"payload":"foobar"}`)
	require.Equal(t, 2, f.ledgerSize(t))

	report, err := f.handler.RetryAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.EqualValues(t, 2, receiver.calls.Load())
	assert.Zero(t, f.ledgerSize(t))
}

func TestRetryAll_PutsBackFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingReceiver{err: errors.New("error")})
	f.failFakeMessage(t, "foo.bar", "123", `{}`)

	report, err := f.handler.RetryAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, f.ledgerSize(t))
}

func TestRetryAll_MixedOutcomes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	ledger := memory.NewLedger(store, "failed")
	registry := NewRegistry()
	ok := &countingReceiver{}
	bad := &countingReceiver{err: errors.New("nope")}
	require.NoError(t, registry.RegisterReceiver("ok", ok))
	require.NoError(t, registry.RegisterReceiver("bad", bad))
	h := NewHandler(ledger, store, registry)

	for _, c := range []struct{ id, receiver string }{{"1", "ok"}, {"2", "bad"}, {"3", "gone"}} {
		msg := domain.NewMessage(c.id, "foo.bar", []byte("x"), nil)
		_, err := store.Stream("foo.bar").Append(ctx, msg)
		require.NoError(t, err)
		require.NoError(t, h.Handle(ctx, msg, c.receiver, errors.New("error")))
	}
	require.NoError(t, ledger.Add(ctx, "not json"))

	before, err := ledger.Count(ctx)
	require.NoError(t, err)

	report, err := h.RetryAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, RetryReport{Total: 4, Succeeded: 1, Failed: 1, Skipped: 1, Invalid: 1, Duration: report.Duration}, report)

	after, err := ledger.Count(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, after, before)

	got, err := h.List(ctx)
	require.NoError(t, err)
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"2", "3"}, ids)
}

func TestRetryAll_ContinuesAfterStoreError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	registry := NewRegistry()
	receiver := &countingReceiver{}
	require.NoError(t, registry.RegisterReceiver(localReceiver, receiver))

	streams := &flakyStreams{StreamFactory: store, broken: "broken"}
	ledger := memory.NewLedger(store, "failed")
	h := NewHandler(ledger, streams, registry)

	for _, s := range []string{"broken", "fine"} {
		msg := domain.NewMessage("1", s, []byte("x"), nil)
		_, err := store.Stream(s).Append(ctx, msg)
		require.NoError(t, err)
		require.NoError(t, h.Handle(ctx, msg, localReceiver, errors.New("error")))
	}

	report, err := h.RetryAll(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.EqualValues(t, 1, receiver.calls.Load())
}

func TestRetryAll_EmptyLedger(t *testing.T) {
	f := newFixture(t, nil)
	report, err := f.handler.RetryAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Total)
}

// =============================================================================
// Deliver / Forget
// =============================================================================

func TestDeliver(t *testing.T) {
	ctx := context.Background()
	receiver := &countingReceiver{}
	f := newFixture(t, receiver)
	msg := domain.NewMessage("1", "foo.bar", nil, nil)

	require.NoError(t, f.handler.Deliver(ctx, msg, localReceiver))
	assert.Zero(t, f.ledgerSize(t))

	receiver.err = errors.New("down")
	require.NoError(t, f.handler.Deliver(ctx, msg, localReceiver))
	assert.Equal(t, 1, f.ledgerSize(t))

	err := f.handler.Deliver(ctx, msg, "unknown")
	assert.ErrorIs(t, err, ErrUnknownReceiver)
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingReceiver{})
	f.failFakeMessage(t, "foo.bar", "123", `{}`)

	require.NoError(t, f.handler.Forget(ctx, domain.FailedMessage{
		ID: "123", Stream: "foo.bar", Receiver: localReceiver, Error: "error",
	}))
	assert.Zero(t, f.ledgerSize(t))
}

// =============================================================================
// Fakes
// =============================================================================

type brokenLedger struct {
	err error
}

func (l *brokenLedger) Add(context.Context, string) error { return l.err }
func (l *brokenLedger) Members(context.Context) ([]string, error) { return nil, l.err }
func (l *brokenLedger) Remove(context.Context, ...string) error { return l.err }
func (l *brokenLedger) Replace(context.Context, []string, string) error { return l.err }
func (l *brokenLedger) Count(context.Context) (int, error) { return 0, l.err }

type flakyStreams struct {
	storage.StreamFactory
	broken string
}

func (s *flakyStreams) Stream(name string) storage.StreamAccessor {
	inner := s.StreamFactory.Stream(name)
	if name == s.broken {
		return &failingGet{StreamAccessor: inner}
	}
	return inner
}

type failingGet struct {
	storage.StreamAccessor
}

func (s *failingGet) Get(context.Context, string) (*domain.Message, error) {
	return nil, errors.New("xrange failed")
}
