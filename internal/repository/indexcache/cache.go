// Package indexcache remembers which indices are known to exist. Every implementation
// is best-effort: the engine stays authoritative and a miss only costs a probe.
package indexcache

import "context"

// Nop never remembers anything, so every EnsureIndex probes the engine.
type Nop struct{}

// Contains always reports a miss.
func (Nop) Contains(context.Context, string) bool { return false }

// Add does nothing.
func (Nop) Add(context.Context, string) {}

// Remove does nothing.
func (Nop) Remove(context.Context, string) {}
