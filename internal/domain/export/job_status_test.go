package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransition_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current JobStatus
		target  JobStatus
	}{
		{
			name:    "Idle to Preparing is valid",
			current: JobStatusIdle,
			target:  JobStatusPreparing,
		},
		{
			name:    "Preparing to RunningBatches is valid",
			current: JobStatusPreparing,
			target:  JobStatusRunningBatches,
		},
		{
			name:    "Preparing to Complete is valid for an empty result set",
			current: JobStatusPreparing,
			target:  JobStatusComplete,
		},
		{
			name:    "Preparing to Failed is valid",
			current: JobStatusPreparing,
			target:  JobStatusFailed,
		},
		{
			name:    "Preparing to Cancelled is valid",
			current: JobStatusPreparing,
			target:  JobStatusCancelled,
		},
		{
			name:    "RunningBatches to Completing is valid",
			current: JobStatusRunningBatches,
			target:  JobStatusCompleting,
		},
		{
			name:    "RunningBatches to Failed is valid",
			current: JobStatusRunningBatches,
			target:  JobStatusFailed,
		},
		{
			name:    "RunningBatches to Cancelled is valid",
			current: JobStatusRunningBatches,
			target:  JobStatusCancelled,
		},
		{
			name:    "Completing to Complete is valid",
			current: JobStatusCompleting,
			target:  JobStatusComplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.current.ValidateTransition(tt.target)
			assert.NoError(t, err, "expected valid transition from %s to %s", tt.current, tt.target)
		})
	}
}

func TestValidateTransition_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current JobStatus
		target  JobStatus
	}{
		{
			name:    "Idle to RunningBatches is invalid",
			current: JobStatusIdle,
			target:  JobStatusRunningBatches,
		},
		{
			name:    "Idle to Complete is invalid",
			current: JobStatusIdle,
			target:  JobStatusComplete,
		},
		{
			name:    "Preparing to Completing is invalid",
			current: JobStatusPreparing,
			target:  JobStatusCompleting,
		},
		{
			name:    "RunningBatches to Complete skips Completing and is invalid",
			current: JobStatusRunningBatches,
			target:  JobStatusComplete,
		},
		{
			name:    "RunningBatches to Preparing is invalid",
			current: JobStatusRunningBatches,
			target:  JobStatusPreparing,
		},
		{
			name:    "Completing to Failed is invalid",
			current: JobStatusCompleting,
			target:  JobStatusFailed,
		},
		{
			name:    "Complete is terminal",
			current: JobStatusComplete,
			target:  JobStatusPreparing,
		},
		{
			name:    "Cancelled is terminal",
			current: JobStatusCancelled,
			target:  JobStatusPreparing,
		},
		{
			name:    "Failed is terminal",
			current: JobStatusFailed,
			target:  JobStatusPreparing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.current.ValidateTransition(tt.target)
			assert.Error(t, err, "expected invalid transition from %s to %s", tt.current, tt.target)
		})
	}
}

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		input string
		want  JobStatus
	}{
		{input: "IDLE", want: JobStatusIdle},
		{input: "PREPARING", want: JobStatusPreparing},
		{input: "RUNNING_BATCHES", want: JobStatusRunningBatches},
		{input: "COMPLETING", want: JobStatusCompleting},
		{input: "COMPLETE", want: JobStatusComplete},
		{input: "CANCELLED", want: JobStatusCancelled},
		{input: "FAILED", want: JobStatusFailed},
		{input: "bogus", want: JobStatus("")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseJobStatus(tt.input))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, JobStatusComplete.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusIdle.IsTerminal())
	assert.False(t, JobStatusPreparing.IsTerminal())
	assert.False(t, JobStatusRunningBatches.IsTerminal())
	assert.False(t, JobStatusCompleting.IsTerminal())
}
