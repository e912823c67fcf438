package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/avelar/rankexport/internal/domain/export"
	"github.com/avelar/rankexport/pkg/common"
	"github.com/avelar/rankexport/pkg/common/logger"
)

func setupSchedulerTest(maxRetries int, base time.Duration) (*BatchScheduler, *mockJobService, *recordedSleeper) {
	svc := new(mockJobService)
	sleeper := &recordedSleeper{}

	s := NewBatchScheduler(
		svc,
		domain.NewExponentialRetryPolicy(base, maxRetries),
		common.NewRateLimiter(1, 1),
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
	)
	s.limiter.SetInterval(0)
	s.sleep = sleeper.sleep

	return s, svc, sleeper
}

func TestSchedulerRun_FetchesEveryIndexInOrder(t *testing.T) {
	s, svc, sleeper := setupSchedulerTest(3, time.Second)

	for i := 0; i < 4; i++ {
		svc.On("FetchBatch", mock.Anything, i).Return(nil).Once()
	}

	var done []int
	err := s.Run(context.Background(), 0, 4, &CancellationToken{}, SchedulerEvents{
		OnBatchDone: func(index int) { done = append(done, index) },
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, svc.fetchedIndices())
	assert.Equal(t, []int{0, 1, 2, 3}, done)
	assert.Empty(t, sleeper.recorded(), "no backoff sleeps on a clean run")
	svc.AssertExpectations(t)
}

func TestSchedulerRun_RetriesSameIndexWithDoublingDelays(t *testing.T) {
	s, svc, sleeper := setupSchedulerTest(3, 2*time.Second)

	boom := errors.New("boom")
	svc.On("FetchBatch", mock.Anything, 0).Return(nil).Once()
	svc.On("FetchBatch", mock.Anything, 1).Return(boom).Twice()
	svc.On("FetchBatch", mock.Anything, 1).Return(nil).Once()
	svc.On("FetchBatch", mock.Anything, 2).Return(nil).Once()

	var retries []int
	err := s.Run(context.Background(), 0, 3, &CancellationToken{}, SchedulerEvents{
		OnRetry: func(index, attempt int) { retries = append(retries, attempt) },
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1, 1, 2}, svc.fetchedIndices())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.recorded())
	assert.Equal(t, []int{1, 2}, retries)
	svc.AssertExpectations(t)
}

func TestSchedulerRun_ExhaustedRetriesStopTheRun(t *testing.T) {
	s, svc, sleeper := setupSchedulerTest(3, 2*time.Second)

	boom := errors.New("boom")
	svc.On("FetchBatch", mock.Anything, 0).Return(boom).Times(4)

	err := s.Run(context.Background(), 0, 5, &CancellationToken{}, SchedulerEvents{})

	var exhausted *domain.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 0, exhausted.Index)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, exhausted, boom)

	// Delays base, 2*base, 4*base precede attempts 2..4; the 4th failure
	// gives up without sleeping again.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, sleeper.recorded())

	// No request for any later index is ever issued.
	assert.Equal(t, []int{0, 0, 0, 0}, svc.fetchedIndices())
	svc.AssertExpectations(t)
}

func TestSchedulerRun_CancelledBeforeNextBatch(t *testing.T) {
	s, svc, _ := setupSchedulerTest(3, time.Second)

	token := &CancellationToken{}
	svc.On("FetchBatch", mock.Anything, 0).Return(nil).Once().Run(func(mock.Arguments) {
		token.Cancel()
	})

	err := s.Run(context.Background(), 0, 5, token, SchedulerEvents{})

	assert.ErrorIs(t, err, ErrJobCancelled)
	assert.Equal(t, []int{0}, svc.fetchedIndices())
	svc.AssertExpectations(t)
}

func TestSchedulerRun_InFlightResultDiscardedAfterCancel(t *testing.T) {
	s, svc, _ := setupSchedulerTest(3, time.Second)

	token := &CancellationToken{}
	boom := errors.New("boom")

	// Whether the in-flight request reports success or failure, a cancel
	// raised during the round trip discards the result.
	svc.On("FetchBatch", mock.Anything, 0).Return(boom).Once().Run(func(mock.Arguments) {
		token.Cancel()
	})

	var done []int
	err := s.Run(context.Background(), 0, 5, token, SchedulerEvents{
		OnBatchDone: func(index int) { done = append(done, index) },
	})

	assert.ErrorIs(t, err, ErrJobCancelled)
	assert.Empty(t, done)
	assert.Equal(t, []int{0}, svc.fetchedIndices())
	svc.AssertExpectations(t)
}

func TestSchedulerRun_ContextCancellationQuiescesTheRun(t *testing.T) {
	s, svc, _ := setupSchedulerTest(3, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	svc.On("FetchBatch", mock.Anything, 0).Return(context.Canceled).Once().Run(func(mock.Arguments) {
		cancel()
	})

	err := s.Run(ctx, 0, 5, &CancellationToken{}, SchedulerEvents{})

	assert.ErrorIs(t, err, ErrJobCancelled)
	svc.AssertExpectations(t)
}

func TestSchedulerRun_StartIndexEqualToTotalIsANoop(t *testing.T) {
	s, svc, _ := setupSchedulerTest(3, time.Second)

	err := s.Run(context.Background(), 3, 3, &CancellationToken{}, SchedulerEvents{})

	require.NoError(t, err)
	assert.Empty(t, svc.fetchedIndices())
}
