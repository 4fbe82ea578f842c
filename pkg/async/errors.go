package async

import "errors"

// ErrWaitTimeout is returned when a task does not finish within the wait bound.
var ErrWaitTimeout = errors.New("timed out waiting for task")
