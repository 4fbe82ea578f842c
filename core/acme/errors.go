package acme

import "errors"

var (
	// ErrEmailRequired is returned when issuance is requested without a
	// contact email configured.
	ErrEmailRequired = errors.New("contact email is required for certificate issuance")

	// ErrIssuanceFailed wraps any failure of the ACME issuance workflow.
	ErrIssuanceFailed = errors.New("certificate issuance failed")

	// ErrEmptyResponse is returned when the ACME server replies without
	// certificate or key material.
	ErrEmptyResponse = errors.New("empty certificate payload received from ACME server")
)
