// Package scope provides the engagement boundary a scan run must stay inside.
// Matching is pure string and integer work: no DNS lookups, no network I/O,
// and no state beyond the boundary definition itself.
package scope

import (
	"github.com/google/uuid"
)

// Scope defines the boundary a run is authorized to touch: a set of IPv4 CIDR
// ranges plus host patterns. A run whose target falls outside every entry is
// rejected before anything is queued.
type Scope struct {
	id     uuid.UUID
	name   string
	cidrs  []string
	hosts  []string
	active bool
}

// NewScope creates a scope boundary from its CIDR and host pattern entries.
func NewScope(name string, cidrs, hosts []string) *Scope {
	return &Scope{
		id:     uuid.New(),
		name:   name,
		cidrs:  cidrs,
		hosts:  hosts,
		active: true,
	}
}

// ReconstructScope rebuilds a scope boundary from persistent storage.
func ReconstructScope(id uuid.UUID, name string, cidrs, hosts []string, active bool) *Scope {
	return &Scope{
		id:     id,
		name:   name,
		cidrs:  cidrs,
		hosts:  hosts,
		active: active,
	}
}

// ID returns the scope's unique identifier.
func (s *Scope) ID() uuid.UUID { return s.id }

// Name returns the scope's human readable name.
func (s *Scope) Name() string { return s.name }

// CIDRs returns the authorized IPv4 ranges.
func (s *Scope) CIDRs() []string { return s.cidrs }

// HostPatterns returns the authorized host patterns.
func (s *Scope) HostPatterns() []string { return s.hosts }

// Active reports whether the scope is currently enforceable.
func (s *Scope) Active() bool { return s.active }

// Allows reports whether target is inside the boundary. The target matches
// when at least one CIDR contains it or at least one host pattern matches it.
// An empty boundary allows nothing.
func (s *Scope) Allows(target string) bool {
	target = NormalizeTarget(target)
	if target == "" {
		return false
	}

	for _, cidr := range s.cidrs {
		if CIDRContains(cidr, target) {
			return true
		}
	}

	for _, pattern := range s.hosts {
		if MatchHost(pattern, target) {
			return true
		}
	}

	return false
}
