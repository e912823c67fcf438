package export

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	domain "github.com/avelar/rankexport/internal/domain/export"
)

// mockJobService is a testify mock of the report service boundary.
type mockJobService struct {
	mock.Mock
}

func (m *mockJobService) Prepare(ctx context.Context) (domain.PrepareResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.PrepareResult), args.Error(1)
}

func (m *mockJobService) FetchBatch(ctx context.Context, index int) error {
	return m.Called(ctx, index).Error(0)
}

func (m *mockJobService) Cancel(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockJobService) Download(ctx context.Context) (io.ReadCloser, error) {
	args := m.Called(ctx)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

// fetchedIndices extracts the batch indices requested, in issue order.
func (m *mockJobService) fetchedIndices() []int {
	var indices []int
	for _, call := range m.Calls {
		if call.Method == "FetchBatch" {
			indices = append(indices, call.Arguments.Int(1))
		}
	}
	return indices
}

// recordingReporter captures every progress snapshot emitted by a run.
type recordingReporter struct {
	mu        sync.Mutex
	snapshots []domain.ProgressSnapshot
}

func (r *recordingReporter) OnProgress(s domain.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

// percents returns the percentage sequence with consecutive duplicates
// collapsed.
func (r *recordingReporter) percents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []int
	for _, s := range r.snapshots {
		if len(out) == 0 || out[len(out)-1] != s.Percent {
			out = append(out, s.Percent)
		}
	}
	return out
}

// recordedSleeper replaces the scheduler's backoff sleep with an
// instantaneous recorder.
type recordedSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordedSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordedSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}
