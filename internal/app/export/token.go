package export

import "sync/atomic"

// CancellationToken is a cooperative cancellation flag. It is checked
// between scheduling steps and never forcibly aborts in-flight work; a
// response arriving after cancellation is received and discarded.
type CancellationToken struct {
	flag atomic.Bool
}

// Cancel sets the flag. It is safe to call from any goroutine and is
// idempotent.
func (t *CancellationToken) Cancel() { t.flag.Store(true) }

// Cancelled reports whether cancellation has been requested.
func (t *CancellationToken) Cancelled() bool { return t.flag.Load() }
