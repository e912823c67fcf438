package export

import (
	"fmt"

	"github.com/google/uuid"
)

// Job tracks a single export run for a session. It owns the batch cursor,
// the retry counter for the batch currently in flight, and the run status.
// Exactly one Job is live per session; starting a new export discards any
// prior job's state.
type Job struct {
	id           uuid.UUID
	status       JobStatus
	totalBatches int
	currentBatch int
	retryCount   int
	maxRetries   int
	cancelled    bool
	failure      string
	attempts     int
	timeline     *Timeline
}

// NewJob creates a new export job in the Idle state. maxRetries bounds the
// number of retries per batch and is carried for progress reporting.
func NewJob(id uuid.UUID, maxRetries int) *Job {
	return NewJobWithTimeProvider(id, maxRetries, new(realTimeProvider))
}

// NewJobWithTimeProvider creates a new export job with an injected clock.
func NewJobWithTimeProvider(id uuid.UUID, maxRetries int, tp TimeProvider) *Job {
	return &Job{
		id:         id,
		status:     JobStatusIdle,
		maxRetries: maxRetries,
		timeline:   NewTimeline(tp),
	}
}

// ID returns the unique identifier for this export run.
func (j *Job) ID() uuid.UUID { return j.id }

// Status returns the current execution status of the export run.
func (j *Job) Status() JobStatus { return j.status }

// TotalBatches returns the batch count reported by the preparation phase.
// It is zero until BeginBatches is called and immutable thereafter.
func (j *Job) TotalBatches() int { return j.totalBatches }

// CurrentBatch returns the number of batches fetched so far. It is also
// the zero-based index of the next batch to request.
func (j *Job) CurrentBatch() int { return j.currentBatch }

// RetryCount returns the retry attempts made for the current batch.
func (j *Job) RetryCount() int { return j.retryCount }

// MaxRetries returns the per-batch retry bound the run operates under.
func (j *Job) MaxRetries() int { return j.maxRetries }

// Cancelled reports whether an external cancel request ended the run.
func (j *Job) Cancelled() bool { return j.cancelled }

// Failure returns the user-facing failure message for a Failed run.
func (j *Job) Failure() string { return j.failure }

// Attempts returns the total request attempts made for the batch that
// ultimately failed the run.
func (j *Job) Attempts() int { return j.attempts }

// GetTimeline provides access to the run's timeline information.
func (j *Job) GetTimeline() *Timeline { return j.timeline }

// Begin transitions the job from Idle to Preparing and marks the run as
// started. At most one preparation request is issued per job.
func (j *Job) Begin() error {
	if err := j.status.ValidateTransition(JobStatusPreparing); err != nil {
		return err
	}
	j.timeline.MarkStarted()
	j.status = JobStatusPreparing
	return nil
}

// BeginBatches records the batch count from a successful preparation
// response and transitions the job to RunningBatches. A prepared result
// set with zero batches completes the run immediately.
func (j *Job) BeginBatches(totalBatches int) error {
	if totalBatches < 0 {
		return fmt.Errorf("invalid total batch count %d", totalBatches)
	}

	target := JobStatusRunningBatches
	if totalBatches == 0 {
		target = JobStatusComplete
	}
	if err := j.status.ValidateTransition(target); err != nil {
		return err
	}

	j.totalBatches = totalBatches
	j.status = target
	if target == JobStatusComplete {
		j.timeline.MarkCompleted()
	} else {
		j.timeline.UpdateLastUpdate()
	}
	return nil
}

// AdvanceBatch records the definitive success of the current batch and
// moves the cursor forward, resetting the retry counter. The cursor is
// monotonically non-decreasing; it never passes the total batch count.
func (j *Job) AdvanceBatch() error {
	if j.status != JobStatusRunningBatches {
		return fmt.Errorf("cannot advance batch: job is not running batches (current: %s)", j.status)
	}
	if j.currentBatch >= j.totalBatches {
		return fmt.Errorf("cannot advance batch: all %d batches already fetched", j.totalBatches)
	}

	j.currentBatch++
	j.retryCount = 0
	j.timeline.UpdateLastUpdate()
	return nil
}

// RecordRetry notes another retry attempt for the current batch. The
// caller is responsible for failing the run once the retry bound is
// reached; the counter never exceeds it.
func (j *Job) RecordRetry() error {
	if j.status != JobStatusRunningBatches {
		return fmt.Errorf("cannot record retry: job is not running batches (current: %s)", j.status)
	}
	if j.retryCount >= j.maxRetries {
		return fmt.Errorf("cannot record retry: retry bound %d reached", j.maxRetries)
	}

	j.retryCount++
	j.timeline.UpdateLastUpdate()
	return nil
}

// BeginCompletion transitions the job to Completing once every batch has
// been fetched.
func (j *Job) BeginCompletion() error {
	if err := j.status.ValidateTransition(JobStatusCompleting); err != nil {
		return err
	}
	if j.currentBatch != j.totalBatches {
		return fmt.Errorf("cannot complete: %d of %d batches fetched", j.currentBatch, j.totalBatches)
	}

	j.status = JobStatusCompleting
	j.timeline.UpdateLastUpdate()
	return nil
}

// Complete finalizes the run. The assembled file is downloadable from
// this point on.
func (j *Job) Complete() error {
	if err := j.status.ValidateTransition(JobStatusComplete); err != nil {
		return err
	}
	j.status = JobStatusComplete
	j.timeline.MarkCompleted()
	return nil
}

// Fail moves the run to the terminal Failed state, recording the
// user-facing message and the total attempt count for the failing batch.
func (j *Job) Fail(message string, attempts int) error {
	if err := j.status.ValidateTransition(JobStatusFailed); err != nil {
		return err
	}
	j.status = JobStatusFailed
	j.failure = message
	j.attempts = attempts
	j.timeline.MarkCompleted()
	return nil
}

// MarkCancelled moves the run to the terminal Cancelled state. The
// cancelled flag is never cleared within a run.
func (j *Job) MarkCancelled() error {
	if err := j.status.ValidateTransition(JobStatusCancelled); err != nil {
		return err
	}
	j.status = JobStatusCancelled
	j.cancelled = true
	j.timeline.MarkCompleted()
	return nil
}
