package export

import (
	"context"
	"io"
	"time"
)

// PrepareResult carries the outcome of the preparation phase: the number
// of batches the cached result set was split into, and the minimum
// interval the server wants between successive batch requests.
type PrepareResult struct {
	TotalBatches   int
	PacingInterval time.Duration
}

// JobService defines the boundary to the external report service. The
// service owns the cached result set; the client only ever touches it
// through these four operations, authorized by a per-session token the
// implementation carries.
type JobService interface {
	// Prepare computes and caches the full result set server-side and
	// returns the batch count. Expensive; long timeout class.
	Prepare(ctx context.Context) (PrepareResult, error)

	// FetchBatch serves one page of the cached result set. Cheap and
	// idempotent per index; short timeout class.
	FetchBatch(ctx context.Context, index int) error

	// Cancel releases the server-side cache early. Best effort; callers
	// do not block on its outcome.
	Cancel(ctx context.Context) error

	// Download retrieves the assembled file. Only meaningful after all
	// batches succeeded.
	Download(ctx context.Context) (io.ReadCloser, error)
}

// ProgressReporter receives progress snapshots as the run advances.
// Implementations must not block the scheduling loop.
type ProgressReporter interface {
	OnProgress(ProgressSnapshot)
}
