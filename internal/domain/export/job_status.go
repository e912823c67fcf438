package export

import (
	"fmt"
)

// JobStatus represents the current state of an export job. It enables
// tracking of the job lifecycle from preparation through completion,
// cancellation, or failure.
type JobStatus string

const (
	// JobStatusIdle indicates no export run is active for the session.
	JobStatusIdle JobStatus = "IDLE"

	// JobStatusPreparing indicates the one-time preparation request is in
	// flight, computing and caching the result set server-side.
	JobStatusPreparing JobStatus = "PREPARING"

	// JobStatusRunningBatches indicates the job is fetching batches in
	// strictly increasing index order.
	JobStatusRunningBatches JobStatus = "RUNNING_BATCHES"

	// JobStatusCompleting indicates all batches succeeded and the job is
	// finalizing before the download becomes available.
	JobStatusCompleting JobStatus = "COMPLETING"

	// JobStatusComplete indicates the export finished and the assembled
	// file can be downloaded.
	JobStatusComplete JobStatus = "COMPLETE"

	// JobStatusCancelled indicates the user cancelled the run.
	JobStatusCancelled JobStatus = "CANCELLED"

	// JobStatusFailed indicates the job encountered an unrecoverable error.
	JobStatusFailed JobStatus = "FAILED"
)

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether the status ends the run. Terminal statuses
// only return to Idle through an explicit reset.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusCancelled || s == JobStatusFailed
}

// ParseJobStatus converts a string to a JobStatus.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "IDLE":
		return JobStatusIdle
	case "PREPARING":
		return JobStatusPreparing
	case "RUNNING_BATCHES":
		return JobStatusRunningBatches
	case "COMPLETING":
		return JobStatusCompleting
	case "COMPLETE":
		return JobStatusComplete
	case "CANCELLED":
		return JobStatusCancelled
	case "FAILED":
		return JobStatusFailed
	default:
		return "" // represents unspecified
	}
}

// ValidateTransition checks if a status transition is valid and returns an
// error if not.
func (s JobStatus) ValidateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the
// target status. It enforces the job lifecycle rules to prevent invalid
// state changes.
func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case JobStatusIdle:
		// From Idle, a run can only begin preparing.
		return target == JobStatusPreparing
	case JobStatusPreparing:
		// From Preparing, can move to RunningBatches, or straight to
		// Complete when the prepared result set is empty. Preparation
		// failures and user cancellation end the run.
		return target == JobStatusRunningBatches || target == JobStatusComplete ||
			target == JobStatusFailed || target == JobStatusCancelled
	case JobStatusRunningBatches:
		// From RunningBatches, can move to Completing, Failed, or Cancelled.
		return target == JobStatusCompleting || target == JobStatusFailed ||
			target == JobStatusCancelled
	case JobStatusCompleting:
		// Completing only finalizes into Complete.
		return target == JobStatusComplete
	case JobStatusComplete, JobStatusCancelled, JobStatusFailed:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
