package export

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/avelar/rankexport/internal/domain/export"
	"github.com/avelar/rankexport/pkg/common"
	"github.com/avelar/rankexport/pkg/common/logger"
)

// SleepFn waits for the given duration or until the context is done.
type SleepFn func(ctx context.Context, d time.Duration) error

// sleepWithContext is the production SleepFn.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SchedulerEvents carries the callbacks through which the scheduler
// reports to its owner. The scheduler never mutates job state itself;
// the controller reacts to these events and keeps the job record
// consistent.
type SchedulerEvents struct {
	// OnBatchDone fires after the batch at the given index definitively
	// succeeded and the cursor may advance.
	OnBatchDone func(index int)

	// OnRetry fires before the backoff delay for another attempt at the
	// same index. attempt is 1-based.
	OnRetry func(index, attempt int)
}

// BatchScheduler issues batch requests one at a time in strictly
// increasing index order, pacing successive requests through a shared
// rate limiter and retrying failed indices under a RetryPolicy. A batch
// index is never requested twice concurrently; the next index is issued
// only after the previous one terminally succeeded.
type BatchScheduler struct {
	svc     domain.JobService
	policy  domain.RetryPolicy
	limiter *common.RateLimiter
	sleep   SleepFn

	logger *logger.Logger
	tracer trace.Tracer
}

// NewBatchScheduler returns a BatchScheduler with the given dependencies.
func NewBatchScheduler(
	svc domain.JobService,
	policy domain.RetryPolicy,
	limiter *common.RateLimiter,
	logger *logger.Logger,
	tracer trace.Tracer,
) *BatchScheduler {
	return &BatchScheduler{
		svc:     svc,
		policy:  policy,
		limiter: limiter,
		sleep:   sleepWithContext,
		logger:  logger.With("component", "batch_scheduler"),
		tracer:  tracer,
	}
}

// Run drives batch fetching from startIndex up to totalBatches. It
// returns nil once every batch succeeded, ErrJobCancelled when the token
// (or the context) cancelled the run, or a *domain.RetriesExhaustedError
// once an index failed its full retry budget.
func (s *BatchScheduler) Run(
	ctx context.Context,
	startIndex, totalBatches int,
	token *CancellationToken,
	events SchedulerEvents,
) error {
	ctx, span := s.tracer.Start(ctx, "batch_scheduler.run",
		trace.WithAttributes(
			attribute.Int("start_index", startIndex),
			attribute.Int("total_batches", totalBatches),
		),
	)
	defer span.End()

	s.policy.Reset()

	var lastErr error
	attempts := 0

	for index := startIndex; index < totalBatches; {
		if token.Cancelled() {
			span.AddEvent("cancelled")
			span.SetStatus(codes.Ok, "run cancelled before next batch")
			return ErrJobCancelled
		}

		// Pacing: one request at a time, spaced by the server-supplied
		// interval.
		if err := s.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return ErrJobCancelled
		}

		err := s.svc.FetchBatch(ctx, index)
		attempts++

		// A late result arriving after cancellation has no effect on job
		// state; it is received and discarded.
		if token.Cancelled() {
			span.AddEvent("cancelled_in_flight_result_discarded")
			span.SetStatus(codes.Ok, "run cancelled with request in flight")
			return ErrJobCancelled
		}

		if err == nil {
			s.logger.Debug(ctx, "batch fetched", "index", index, "attempts", attempts)
			index++
			attempts = 0
			lastErr = nil
			s.policy.Reset()
			if events.OnBatchDone != nil {
				events.OnBatchDone(index - 1)
			}
			continue
		}

		if ctx.Err() != nil {
			span.RecordError(ctx.Err())
			return ErrJobCancelled
		}

		lastErr = err
		delay, ok := s.policy.Next()
		if !ok {
			span.RecordError(lastErr)
			span.SetStatus(codes.Error, "batch retries exhausted")
			return &domain.RetriesExhaustedError{Index: index, Attempts: attempts, LastErr: lastErr}
		}

		s.logger.Warn(ctx, "batch fetch failed, backing off",
			"index", index, "attempt", attempts, "delay", delay, "error", err)
		span.AddEvent("batch_retry_scheduled")
		if events.OnRetry != nil {
			events.OnRetry(index, attempts)
		}

		if err := s.sleep(ctx, delay); err != nil {
			return ErrJobCancelled
		}
	}

	span.SetStatus(codes.Ok, "all batches fetched")
	return nil
}
