package export

import (
	"fmt"
	"math"
)

// ProgressSnapshot is a point-in-time projection of a job's progress.
// It is derived from job state alone and recomputed on every state
// change; it carries no state of its own.
type ProgressSnapshot struct {
	Percent int
	Message string
}

// SnapshotProgress projects the job's current state into a percentage and
// a human-readable status message. Retries keep the percentage pinned at
// the current batch's level, so the value is monotonic across a run.
func SnapshotProgress(j *Job) ProgressSnapshot {
	switch j.Status() {
	case JobStatusIdle:
		return ProgressSnapshot{Percent: 0, Message: "No export in progress."}

	case JobStatusPreparing:
		return ProgressSnapshot{Percent: 0, Message: "Preparing export. This may take several minutes."}

	case JobStatusRunningBatches:
		msg := fmt.Sprintf("Exporting batch %d of %d", fetchingBatch(j), j.TotalBatches())
		if j.RetryCount() > 0 {
			msg += fmt.Sprintf(" (retry %d/%d)", j.RetryCount(), j.MaxRetries())
		}
		return ProgressSnapshot{Percent: percentDone(j), Message: msg}

	case JobStatusCompleting:
		return ProgressSnapshot{Percent: percentDone(j), Message: "Finalizing export."}

	case JobStatusComplete:
		return ProgressSnapshot{Percent: 100, Message: "Export complete. The file is ready to download."}

	case JobStatusCancelled:
		return ProgressSnapshot{Percent: percentTerminal(j), Message: "Export cancelled."}

	case JobStatusFailed:
		return ProgressSnapshot{Percent: percentTerminal(j), Message: fmt.Sprintf("Export failed: %s", j.Failure())}

	default:
		return ProgressSnapshot{}
	}
}

// percentDone computes round(currentBatch/totalBatches*100) clamped to
// [0,100]. An empty result set reports 100 immediately.
func percentDone(j *Job) int {
	total := j.TotalBatches()
	if total == 0 {
		return 100
	}

	p := int(math.Round(float64(j.CurrentBatch()) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// percentTerminal is percentDone for runs that ended without completing.
// A run failed or cancelled before the batch count was known reports 0,
// not the empty-result-set 100.
func percentTerminal(j *Job) int {
	if j.TotalBatches() == 0 {
		return 0
	}
	return percentDone(j)
}

// fetchingBatch returns the 1-indexed counter of the batch currently being
// fetched, clamped to the total for the instant all batches are done.
func fetchingBatch(j *Job) int {
	n := j.CurrentBatch() + 1
	if n > j.TotalBatches() {
		n = j.TotalBatches()
	}
	return n
}
