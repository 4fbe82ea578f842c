package domainset

import "errors"

// ErrNoDomains is returned when a domain specification was supplied but
// contained no usable entries, or when an operation that requires TLS is
// invoked with an empty set.
var ErrNoDomains = errors.New("no usable domains configured")
