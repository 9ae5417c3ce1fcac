package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/streamkeeper/internal/failure"
)

// RetryAller replays every failure record in the ledger.
type RetryAller interface {
	RetryAll(ctx context.Context) (failure.RetryReport, error)
}

// Retrier runs retry-all passes on a fixed interval.
type Retrier struct {
	handler  RetryAller
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

// NewRetrier creates a new Retrier worker.
func NewRetrier(handler RetryAller, interval, timeout time.Duration, log *slog.Logger) *Retrier {
	if log == nil {
		log = slog.Default()
	}
	return &Retrier{
		handler:  handler,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Start runs the retry loop until ctx is cancelled.
func (r *Retrier) Start(ctx context.Context) {
	if r.interval <= 0 {
		return // Scheduled retries disabled
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Initial pass
	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single retry-all pass and logs its report.
func (r *Retrier) RunOnce(ctx context.Context) failure.RetryReport {
	passCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	passID := uuid.NewString()
	report, err := r.handler.RetryAll(passCtx)
	if err != nil {
		r.log.Error("[Retrier] retry pass finished with errors", "pass", passID, "error", err)
	}
	if report.Total > 0 {
		r.log.Info("[Retrier] retry pass complete",
			"pass", passID,
			"total", report.Total,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"skipped", report.Skipped,
			"invalid", report.Invalid,
			"duration", report.Duration,
		)
	}
	return report
}
