package pipeline

import "errors"

// ErrPreconditionFailed reports a stage-guard violation: the operation's
// preconditions do not hold and never will for this input (caller bug or
// invalid arguments, not a transient condition). It aborts the transition
// without mutating state or publishing, and must not be retried.
var ErrPreconditionFailed = errors.New("pipeline: precondition failed")
