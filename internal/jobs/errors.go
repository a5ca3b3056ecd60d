package jobs

import "errors"

// errCancelled is returned internally by indexRepository when the
// cooperative cancellation flag fires between files; the pool
// translates it to the job's "cancelled" terminal state rather than
// retrying it as a transient failure.
var errCancelled = errors.New("jobs: cancelled")
