package driven

import "context"

// Enqueuer triggers asynchronous processing of a run. Implementations either
// push onto the TaskQueue directly or call out to an HTTP invoke endpoint
// with a bearer token. A failure here must surface to the caller so the run
// is marked failed rather than left silently queued.
type Enqueuer interface {
	// EnqueueRun requests asynchronous processing of the given run
	EnqueueRun(ctx context.Context, editionID, runID string) error
}
