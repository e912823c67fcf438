package export

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimeProvider lets tests control the timeline clock.
type fakeTimeProvider struct {
	now time.Time
}

func (f *fakeTimeProvider) Now() time.Time { return f.now }

func (f *fakeTimeProvider) advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestJob(t *testing.T, maxRetries int) (*Job, *fakeTimeProvider) {
	t.Helper()
	tp := &fakeTimeProvider{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewJobWithTimeProvider(uuid.New(), maxRetries, tp), tp
}

func TestJobLifecycle_HappyPath(t *testing.T) {
	job, tp := newTestJob(t, 3)

	assert.Equal(t, JobStatusIdle, job.Status())

	require.NoError(t, job.Begin())
	assert.Equal(t, JobStatusPreparing, job.Status())
	assert.Equal(t, tp.now, job.GetTimeline().StartedAt())

	require.NoError(t, job.BeginBatches(3))
	assert.Equal(t, JobStatusRunningBatches, job.Status())
	assert.Equal(t, 3, job.TotalBatches())
	assert.Equal(t, 0, job.CurrentBatch())

	for i := 1; i <= 3; i++ {
		require.NoError(t, job.AdvanceBatch())
		assert.Equal(t, i, job.CurrentBatch())
		assert.Equal(t, 0, job.RetryCount())
	}

	require.NoError(t, job.BeginCompletion())
	assert.Equal(t, JobStatusCompleting, job.Status())

	tp.advance(time.Second)
	require.NoError(t, job.Complete())
	assert.Equal(t, JobStatusComplete, job.Status())
	assert.True(t, job.GetTimeline().IsCompleted())
}

func TestJobBeginBatches_EmptyResultSetCompletesImmediately(t *testing.T) {
	job, _ := newTestJob(t, 3)

	require.NoError(t, job.Begin())
	require.NoError(t, job.BeginBatches(0))

	assert.Equal(t, JobStatusComplete, job.Status())
	assert.Equal(t, 0, job.TotalBatches())
	assert.True(t, job.GetTimeline().IsCompleted())
}

func TestJobBeginBatches_RejectsNegativeCount(t *testing.T) {
	job, _ := newTestJob(t, 3)

	require.NoError(t, job.Begin())
	assert.Error(t, job.BeginBatches(-1))
}

func TestJobAdvanceBatch_NeverPassesTotal(t *testing.T) {
	job, _ := newTestJob(t, 3)

	require.NoError(t, job.Begin())
	require.NoError(t, job.BeginBatches(1))
	require.NoError(t, job.AdvanceBatch())

	err := job.AdvanceBatch()
	assert.Error(t, err)
	assert.Equal(t, 1, job.CurrentBatch())
}

func TestJobRecordRetry_ResetsOnAdvance(t *testing.T) {
	job, _ := newTestJob(t, 3)

	require.NoError(t, job.Begin())
	require.NoError(t, job.BeginBatches(2))

	require.NoError(t, job.RecordRetry())
	require.NoError(t, job.RecordRetry())
	assert.Equal(t, 2, job.RetryCount())

	require.NoError(t, job.AdvanceBatch())
	assert.Equal(t, 0, job.RetryCount())
}

func TestJobRecordRetry_NeverExceedsBound(t *testing.T) {
	job, _ := newTestJob(t, 2)

	require.NoError(t, job.Begin())
	require.NoError(t, job.BeginBatches(1))

	require.NoError(t, job.RecordRetry())
	require.NoError(t, job.RecordRetry())
	assert.Error(t, job.RecordRetry())
	assert.Equal(t, 2, job.RetryCount())
}

func TestJobFail_RecordsMessageAndAttempts(t *testing.T) {
	job, _ := newTestJob(t, 3)

	require.NoError(t, job.Begin())
	require.NoError(t, job.BeginBatches(5))
	require.NoError(t, job.Fail("batch 0 failed after 4 attempts", 4))

	assert.Equal(t, JobStatusFailed, job.Status())
	assert.Equal(t, "batch 0 failed after 4 attempts", job.Failure())
	assert.Equal(t, 4, job.Attempts())
	assert.True(t, job.GetTimeline().IsCompleted())
}

func TestJobMarkCancelled_SetsFlagPermanently(t *testing.T) {
	job, _ := newTestJob(t, 3)

	require.NoError(t, job.Begin())
	require.NoError(t, job.MarkCancelled())

	assert.Equal(t, JobStatusCancelled, job.Status())
	assert.True(t, job.Cancelled())

	// Terminal: nothing moves the job out of Cancelled.
	assert.Error(t, job.Begin())
	assert.Error(t, job.Complete())
	assert.True(t, job.Cancelled())
}

func TestJobBeginCompletion_RequiresAllBatchesFetched(t *testing.T) {
	job, _ := newTestJob(t, 3)

	require.NoError(t, job.Begin())
	require.NoError(t, job.BeginBatches(2))
	require.NoError(t, job.AdvanceBatch())

	assert.Error(t, job.BeginCompletion())
	assert.Equal(t, JobStatusRunningBatches, job.Status())
}
