package export

import "fmt"

// BatchError is a structured, application-level failure reported by the
// service for a batch request. It is retryable under the same policy as
// transport failures, since the two are otherwise indistinguishable to
// the client.
type BatchError struct {
	Index   int
	Message string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d rejected by service: %s", e.Index, e.Message)
}

// RetriesExhaustedError reports that a batch failed its full retry budget
// consecutively. It carries the last underlying error and the total
// attempt count for surfacing to the user.
type RetriesExhaustedError struct {
	Index    int
	Attempts int
	LastErr  error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("batch %d failed after %d attempts: %v", e.Index, e.Attempts, e.LastErr)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.LastErr }
