package certstore

import "errors"

var (
	// ErrDirRequired is returned when the store directory is not configured.
	ErrDirRequired = errors.New("certificate directory is required")

	// ErrPrimaryRequired is returned when installing without a primary domain.
	ErrPrimaryRequired = errors.New("primary domain is required")

	// ErrEmptyMaterial is returned when installing an empty certificate or key.
	ErrEmptyMaterial = errors.New("certificate and key must be non-empty")
)
