package failure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/streamkeeper/internal/core/domain"
	"github.com/vietddude/streamkeeper/internal/infra/storage"
	"github.com/vietddude/streamkeeper/internal/metrics"
)

// Outcome is the result of a single retry attempt.
type Outcome int

const (
	// OutcomeSkipped means the receiver or the message could not be found.
	OutcomeSkipped Outcome = iota
	// OutcomeSucceeded means the receiver handled the message and the record was removed.
	OutcomeSucceeded
	// OutcomeFailed means the receiver failed again and the record was replaced.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return metrics.RetrySucceeded
	case OutcomeFailed:
		return metrics.RetryFailed
	default:
		return metrics.RetrySkipped
	}
}

// RetryReport summarizes a RetryAll pass.
type RetryReport struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Invalid   int
	Duration  time.Duration
}

// Handler records failed deliveries in the ledger and replays them.
type Handler struct {
	ledger    storage.FailureLedger
	streams   storage.StreamFactory
	receivers *Registry
}

// NewHandler creates a new failed message handler.
func NewHandler(
	ledger storage.FailureLedger,
	streams storage.StreamFactory,
	receivers *Registry,
) *Handler {
	return &Handler{
		ledger:    ledger,
		streams:   streams,
		receivers: receivers,
	}
}

// Handle stores the failure of msg in receiver for a later retry.
func (h *Handler) Handle(ctx context.Context, msg *domain.Message, receiver string, cause error) error {
	record := newRecord(msg.ID, msg.EventName, receiver, cause)
	member, err := record.Encode()
	if err != nil {
		return err
	}
	if err := h.ledger.Add(ctx, member); err != nil {
		return fmt.Errorf("failed to record failed message %s: %w", msg.ID, err)
	}
	metrics.FailuresRecorded.WithLabelValues(msg.EventName).Inc()
	return nil
}

// Deliver invokes the named receiver and records a failure instead of
// returning it. Only ledger errors and unknown receivers are returned.
func (h *Handler) Deliver(ctx context.Context, msg *domain.Message, receiver string) error {
	r, ok := h.receivers.Resolve(receiver)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReceiver, receiver)
	}
	if err := invoke(ctx, r, msg); err != nil {
		return h.Handle(ctx, msg, receiver, err)
	}
	return nil
}

// List returns every failure record currently in the ledger.
// Members that cannot be decoded are left out.
func (h *Handler) List(ctx context.Context) ([]domain.FailedMessage, error) {
	members, err := h.ledger.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed messages: %w", err)
	}

	records := make([]domain.FailedMessage, 0, len(members))
	for _, m := range members {
		f, err := domain.DecodeFailedMessage(m)
		if err != nil {
			continue
		}
		records = append(records, f)
	}
	return records, nil
}

// Retry looks up the message on its stream and hands it to the receiver again.
// An unknown receiver or a message no longer on the stream is a no-op.
// On success the matching ledger entries are removed; on failure they are
// replaced by a record carrying the new error in one atomic step.
func (h *Handler) Retry(ctx context.Context, stream, id, receiver string) (Outcome, error) {
	r, ok := h.receivers.Resolve(receiver)
	if !ok {
		metrics.RetriesTotal.WithLabelValues(stream, metrics.RetrySkipped).Inc()
		return OutcomeSkipped, nil
	}

	msg, err := h.streams.Stream(stream).Get(ctx, id)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to read message %s from %s: %w", id, stream, err)
	}
	if msg == nil {
		metrics.RetriesTotal.WithLabelValues(stream, metrics.RetrySkipped).Inc()
		return OutcomeSkipped, nil
	}

	existing, err := h.matching(ctx, stream, id, receiver)
	if err != nil {
		return OutcomeSkipped, err
	}

	if invokeErr := invoke(ctx, r, msg); invokeErr != nil {
		member, err := newRecord(id, stream, receiver, invokeErr).Encode()
		if err != nil {
			return OutcomeFailed, err
		}
		if err := h.ledger.Replace(ctx, existing, member); err != nil {
			return OutcomeFailed, fmt.Errorf("failed to re-record failed message %s: %w", id, err)
		}
		metrics.RetriesTotal.WithLabelValues(stream, metrics.RetryFailed).Inc()
		return OutcomeFailed, nil
	}

	if err := h.ledger.Remove(ctx, existing...); err != nil {
		return OutcomeSucceeded, fmt.Errorf("failed to resolve failed message %s: %w", id, err)
	}
	metrics.RetriesTotal.WithLabelValues(stream, metrics.RetrySucceeded).Inc()
	return OutcomeSucceeded, nil
}

// RetryAll retries every record present in the ledger when the pass starts.
// Each record is retried independently; store errors are joined and returned
// after the whole pass.
func (h *Handler) RetryAll(ctx context.Context) (RetryReport, error) {
	start := time.Now()
	var report RetryReport

	members, err := h.ledger.Members(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list failed messages: %w", err)
	}
	report.Total = len(members)

	var errs []error
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		f, err := domain.DecodeFailedMessage(m)
		if err != nil {
			report.Invalid++
			continue
		}

		outcome, err := h.Retry(ctx, f.Stream, f.ID, f.Receiver)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch outcome {
		case OutcomeSucceeded:
			report.Succeeded++
		case OutcomeFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	report.Duration = time.Since(start)
	metrics.RetryPassDuration.Observe(report.Duration.Seconds())
	if count, err := h.ledger.Count(ctx); err == nil {
		metrics.LedgerSize.Set(float64(count))
	}

	return report, errors.Join(errs...)
}

// Forget removes one record from the ledger without retrying it.
func (h *Handler) Forget(ctx context.Context, record domain.FailedMessage) error {
	member, err := record.Encode()
	if err != nil {
		return err
	}
	if err := h.ledger.Remove(ctx, member); err != nil {
		return fmt.Errorf("failed to remove failed message %s: %w", record.ID, err)
	}
	return nil
}

// Count returns the number of records in the ledger.
func (h *Handler) Count(ctx context.Context) (int, error) {
	return h.ledger.Count(ctx)
}

func (h *Handler) matching(ctx context.Context, stream, id, receiver string) ([]string, error) {
	members, err := h.ledger.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed messages: %w", err)
	}

	var matches []string
	for _, m := range members {
		f, err := domain.DecodeFailedMessage(m)
		if err != nil {
			continue
		}
		if f.Matches(stream, id, receiver) {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

func newRecord(id, stream, receiver string, cause error) domain.FailedMessage {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return domain.FailedMessage{
		ID:       id,
		Stream:   stream,
		Receiver: receiver,
		Error:    msg,
	}
}

// invoke runs the receiver, turning a panic into an error.
func invoke(ctx context.Context, r Receiver, msg *domain.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("receiver panicked: %v", p)
		}
	}()
	return r.Handle(ctx, msg)
}
