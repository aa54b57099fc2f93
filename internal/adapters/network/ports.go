package network

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// PortRegistry records every port handed out in this process so sibling
// providers never bind the same one. It is safe for concurrent use.
type PortRegistry struct {
	attempted mapset.Set[int]
}

// NewPortRegistry creates an empty registry
func NewPortRegistry() *PortRegistry {
	return &PortRegistry{attempted: mapset.NewSet[int]()}
}

// Claim records port and reports whether it was not recorded before
func (r *PortRegistry) Claim(port int) bool {
	return r.attempted.Add(port)
}

// Record marks a port as used without caring whether it was new
func (r *PortRegistry) Record(port int) {
	r.attempted.Add(port)
}
