// Package store provides the struct-of-arrays arenas holding neuron and
// synapse state. Slots are addressed by dense indices; removal invalidates a
// slot without compaction so an in-progress scan never observes movement.
package store

import "errors"

var (
	// ErrCapacityExceeded is returned when an add would grow a store past
	// its configured capacity. The store is left unchanged.
	ErrCapacityExceeded = errors.New("store capacity exceeded")

	// ErrInvalidReference is returned when an id is out of range or refers
	// to an invalidated slot.
	ErrInvalidReference = errors.New("invalid reference")
)
