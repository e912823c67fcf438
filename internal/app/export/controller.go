package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/avelar/rankexport/internal/domain/export"
	"github.com/avelar/rankexport/pkg/common"
	"github.com/avelar/rankexport/pkg/common/logger"
)

// A set of errors the controller surfaces to its caller. No transport or
// service error ever escapes the controller boundary; phase failures are
// absorbed into the job's terminal state and reported through these
// sentinels plus the progress reporter.
var (
	// ErrJobFailed indicates the run ended in the Failed state. The
	// user-facing message is available through the progress reporter and
	// the job record.
	ErrJobFailed = errors.New("export job failed")

	// ErrJobCancelled indicates the run ended in the Cancelled state.
	ErrJobCancelled = errors.New("export job cancelled")

	// ErrRunInProgress indicates a run is already active for the session.
	ErrRunInProgress = errors.New("an export run is already in progress")

	// ErrDownloadNotReady indicates Download was invoked before the job
	// reached the Complete state.
	ErrDownloadNotReady = errors.New("export download not ready")
)

// cancelNotifyTimeout bounds the best-effort cancel notification to the
// service; the client never blocks long waiting for that acknowledgment.
const cancelNotifyTimeout = 5 * time.Second

// ControllerConfig carries the orchestration knobs recognized by the
// controller. The pacing interval is not configured here: the server
// supplies it in the preparation response.
type ControllerConfig struct {
	// MaxRetries bounds the retries per batch (not counting the initial
	// attempt).
	MaxRetries int

	// BackoffBase is the first retry delay; subsequent delays double.
	BackoffBase time.Duration
}

// Controller is the top-level state machine for an export run. It owns
// the single live Job record for the session, drives the preparation
// phase and the batch scheduler, and exposes the terminal download
// action. All Job mutations happen here.
type Controller struct {
	cfg       ControllerConfig
	svc       domain.JobService
	scheduler *BatchScheduler
	limiter   *common.RateLimiter
	reporter  domain.ProgressReporter
	clock     domain.TimeProvider

	logger *logger.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	job     *domain.Job
	token   *CancellationToken
	running bool
}

// NewController wires a Controller around the given job service. The
// reporter may be nil when no progress consumer exists.
func NewController(
	cfg ControllerConfig,
	svc domain.JobService,
	reporter domain.ProgressReporter,
	log *logger.Logger,
	tracer trace.Tracer,
) *Controller {
	limiter := common.NewRateLimiter(1, 1)
	policy := domain.NewExponentialRetryPolicy(cfg.BackoffBase, cfg.MaxRetries)

	return &Controller{
		cfg:       cfg,
		svc:       svc,
		scheduler: NewBatchScheduler(svc, policy, limiter, log, tracer),
		limiter:   limiter,
		reporter:  reporter,
		clock:     nil,
		logger:    log.With("component", "export_controller"),
		tracer:    tracer,
	}
}

// Run executes a full export: preparation, the batch loop, and the
// transition to a terminal state. It blocks until the run ends and
// returns nil on Complete, ErrJobCancelled on a cancelled run, or
// ErrJobFailed when the job ended in the Failed state. Starting a run
// discards any prior job's state.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunInProgress
	}
	c.running = true
	job := c.newJob()
	token := &CancellationToken{}
	c.job = job
	c.token = token
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	ctx, span := c.tracer.Start(ctx, "export_controller.run",
		trace.WithAttributes(attribute.String("job_id", job.ID().String())),
	)
	defer span.End()

	logger := c.logger.With("job_id", job.ID())
	logger.Info(ctx, "Starting export run", "max_retries", c.cfg.MaxRetries)

	c.transition(func() error { return job.Begin() })

	// The token is checked before the preparation request is issued, and
	// again when its response arrives: a result landing after a cancel
	// request is discarded.
	if token.Cancelled() {
		return c.finishCancelled(ctx, span, job)
	}

	res, err := c.svc.Prepare(ctx)
	if token.Cancelled() {
		span.AddEvent("prepare_result_discarded")
		return c.finishCancelled(ctx, span, job)
	}
	if err != nil {
		// Preparation failures are not retried automatically: the step is
		// expensive and rare to fail, so the user is asked to retry.
		span.RecordError(err)
		span.SetStatus(codes.Error, "preparation failed")
		logger.Error(ctx, "Export preparation failed", "error", err)
		msg := fmt.Sprintf("preparing the export failed (%v); start a new export to try again", err)
		c.transition(func() error { return job.Fail(msg, 1) })
		return ErrJobFailed
	}

	span.SetAttributes(
		attribute.Int("total_batches", res.TotalBatches),
		attribute.Int64("pacing_ms", res.PacingInterval.Milliseconds()),
	)
	logger.Info(ctx, "Export prepared",
		"total_batches", res.TotalBatches, "pacing", res.PacingInterval)

	c.transition(func() error { return job.BeginBatches(res.TotalBatches) })
	if job.Status() == domain.JobStatusComplete {
		// An empty result set completes the run without a single batch
		// request.
		span.SetStatus(codes.Ok, "empty result set")
		return nil
	}

	c.limiter.SetInterval(res.PacingInterval)

	events := SchedulerEvents{
		OnBatchDone: func(index int) {
			c.transition(func() error { return job.AdvanceBatch() })
		},
		OnRetry: func(index, attempt int) {
			c.transition(func() error { return job.RecordRetry() })
		},
	}

	err = c.scheduler.Run(ctx, job.CurrentBatch(), job.TotalBatches(), token, events)
	switch {
	case err == nil:
		c.transition(func() error { return job.BeginCompletion() })
		c.transition(func() error { return job.Complete() })
		span.SetStatus(codes.Ok, "export complete")
		logger.Info(ctx, "Export complete",
			"total_batches", job.TotalBatches(),
			"duration", job.GetTimeline().CompletedAt().Sub(job.GetTimeline().StartedAt()))
		return nil

	case errors.Is(err, ErrJobCancelled):
		return c.finishCancelled(ctx, span, job)

	default:
		var exhausted *domain.RetriesExhaustedError
		attempts := 0
		if errors.As(err, &exhausted) {
			attempts = exhausted.Attempts
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch retries exhausted")
		logger.Error(ctx, "Export failed", "error", err, "attempts", attempts)
		c.transition(func() error { return job.Fail(err.Error(), attempts) })
		return ErrJobFailed
	}
}

// Cancel requests cooperative cancellation of the active run. It never
// interrupts a request already in flight; the run quiesces at the next
// scheduling checkpoint. Cancel outside Preparing/RunningBatches is a
// no-op.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job == nil || c.token == nil {
		return
	}
	switch c.job.Status() {
	case domain.JobStatusPreparing, domain.JobStatusRunningBatches:
		c.token.Cancel()
		c.logger.Info(context.Background(), "Export cancellation requested", "job_id", c.job.ID())
	}
}

// Reset discards a finished job, returning the session to Idle. It fails
// while a run is still active.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrRunInProgress
	}
	c.job = nil
	c.token = nil
	return nil
}

// Download streams the assembled export file to w. It is available only
// once the job is Complete; a failed download leaves the state unchanged
// and may simply be retried.
func (c *Controller) Download(ctx context.Context, w io.Writer) (int64, error) {
	c.mu.Lock()
	job := c.job
	c.mu.Unlock()

	if job == nil || job.Status() != domain.JobStatusComplete {
		return 0, ErrDownloadNotReady
	}

	ctx, span := c.tracer.Start(ctx, "export_controller.download",
		trace.WithAttributes(attribute.String("job_id", job.ID().String())),
	)
	defer span.End()

	rc, err := c.svc.Download(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download failed")
		return 0, fmt.Errorf("downloading export file: %w", err)
	}
	defer rc.Close()

	n, err := io.Copy(w, rc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download copy failed")
		return n, fmt.Errorf("writing export file: %w", err)
	}

	span.SetAttributes(attribute.Int64("bytes", n))
	span.SetStatus(codes.Ok, "download complete")
	return n, nil
}

// Job returns the live job record, or nil outside a run. Intended for
// inspection after Run returns.
func (c *Controller) Job() *domain.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// Progress returns the current progress snapshot for the session.
func (c *Controller) Progress() domain.ProgressSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job == nil {
		return domain.ProgressSnapshot{Message: "No export in progress."}
	}
	return domain.SnapshotProgress(c.job)
}

// finishCancelled moves the job to Cancelled, notifies the service so it
// can release its cache early, and reports the terminal snapshot. The
// notification is best effort: its failure is logged, never surfaced.
func (c *Controller) finishCancelled(ctx context.Context, span trace.Span, job *domain.Job) error {
	c.transition(func() error { return job.MarkCancelled() })
	span.AddEvent("job_cancelled")
	span.SetStatus(codes.Ok, "export cancelled")
	c.logger.Info(ctx, "Export cancelled", "job_id", job.ID(), "current_batch", job.CurrentBatch())

	// The run context may already be done; the notification gets its own
	// short deadline.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelNotifyTimeout)
	defer cancel()
	if err := c.svc.Cancel(notifyCtx); err != nil {
		c.logger.Warn(ctx, "Best-effort cancel notification failed", "error", err)
	}

	return ErrJobCancelled
}

// transition applies a job mutation under the controller lock and emits a
// progress snapshot. Transition failures indicate a controller bug and
// are logged, not propagated: the state machine methods themselves
// enforce lifecycle legality.
func (c *Controller) transition(mutate func() error) {
	c.mu.Lock()
	err := mutate()
	var snap domain.ProgressSnapshot
	if err == nil && c.job != nil {
		snap = domain.SnapshotProgress(c.job)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error(context.Background(), "Illegal job transition", "error", err)
		return
	}
	if c.reporter != nil {
		c.reporter.OnProgress(snap)
	}
}

// newJob builds the fresh job record for a run.
func (c *Controller) newJob() *domain.Job {
	if c.clock != nil {
		return domain.NewJobWithTimeProvider(uuid.New(), c.cfg.MaxRetries, c.clock)
	}
	return domain.NewJob(uuid.New(), c.cfg.MaxRetries)
}
