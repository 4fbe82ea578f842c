package nginx

import "errors"

var (
	// ErrValidationFailed is returned when nginx rejects the generated
	// configuration. No reload signal is sent; the previously loaded
	// configuration keeps serving.
	ErrValidationFailed = errors.New("nginx configuration validation failed")

	// ErrReloadFailed is returned when the reload signal could not be
	// delivered to the nginx master process.
	ErrReloadFailed = errors.New("nginx reload failed")

	// ErrReadinessTimeout is returned when the pid marker does not appear
	// within the readiness bound.
	ErrReadinessTimeout = errors.New("timed out waiting for nginx readiness")
)
