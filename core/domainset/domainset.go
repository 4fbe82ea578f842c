// Package domainset normalizes a raw comma-separated domain specification
// into an ordered, deduplicated set with a designated primary domain.
package domainset

import "strings"

// Set is an ordered list of domain names. The first element is the
// primary domain used to key certificate storage. A Set never contains
// empty or duplicate entries.
type Set []string

// Parse splits raw on commas, trims whitespace, drops empty entries and
// deduplicates while preserving first-seen order.
//
// An empty or all-whitespace raw value yields an empty Set and no error:
// that is the valid "stay HTTP-only" configuration. A raw value that
// contains separators but no usable entries (e.g. " , ,") returns
// ErrNoDomains, since the operator clearly attempted to configure domains.
func Parse(raw string) (Set, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var set Set
	for _, part := range strings.Split(raw, ",") {
		domain := strings.TrimSpace(part)
		if domain == "" {
			continue
		}
		if _, ok := seen[domain]; ok {
			continue
		}
		seen[domain] = struct{}{}
		set = append(set, domain)
	}

	if len(set) == 0 {
		return nil, ErrNoDomains
	}
	return set, nil
}

// Primary returns the first domain of the set, or "" for an empty set.
func (s Set) Primary() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Empty reports whether the set contains no domains.
func (s Set) Empty() bool { return len(s) == 0 }

// ServerNames returns the set joined with single spaces, the form nginx
// expects in a server_name directive.
func (s Set) ServerNames() string { return strings.Join(s, " ") }
