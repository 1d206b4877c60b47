package store

import (
	"fmt"

	"github.com/nvandessel/burst-loop/internal/neural"
)

// SynapseStore is a fixed-capacity struct-of-arrays arena of synapse state.
// It maintains a source->synapse-indices lookup so propagation gathers a
// fired neuron's outgoing synapses without scanning the arena.
type SynapseStore struct {
	sources []neural.NeuronID
	targets []neural.NeuronID
	weights []uint8
	psps    []uint8
	types   []neural.SynapseType
	valid   []bool

	bySource  map[neural.NeuronID][]neural.SynapseID
	outDegree map[neural.NeuronID]int // live outgoing synapses per source

	capacity int
	live     int
	neurons  *NeuronStore
}

// NewSynapseStore creates an empty store with the given capacity. Source and
// target ids are validated against neurons on every add.
func NewSynapseStore(capacity int, neurons *NeuronStore) *SynapseStore {
	return &SynapseStore{
		sources:   make([]neural.NeuronID, 0, capacity),
		targets:   make([]neural.NeuronID, 0, capacity),
		weights:   make([]uint8, 0, capacity),
		psps:      make([]uint8, 0, capacity),
		types:     make([]neural.SynapseType, 0, capacity),
		valid:     make([]bool, 0, capacity),
		bySource:  make(map[neural.NeuronID][]neural.SynapseID),
		outDegree: make(map[neural.NeuronID]int),
		capacity:  capacity,
		neurons:   neurons,
	}
}

// Add appends a synapse and indexes it under its source. Capacity and
// reference checks run before any write, so a failed add leaves the store
// unchanged.
func (s *SynapseStore) Add(src, tgt neural.NeuronID, weight, psp uint8, t neural.SynapseType) (neural.SynapseID, error) {
	if len(s.valid) >= s.capacity {
		return 0, fmt.Errorf("add synapse: %w (capacity %d)", ErrCapacityExceeded, s.capacity)
	}
	if !s.neurons.Valid(src) {
		return 0, fmt.Errorf("add synapse: source %d: %w", src, ErrInvalidReference)
	}
	if !s.neurons.Valid(tgt) {
		return 0, fmt.Errorf("add synapse: target %d: %w", tgt, ErrInvalidReference)
	}

	id := neural.SynapseID(len(s.valid))
	s.sources = append(s.sources, src)
	s.targets = append(s.targets, tgt)
	s.weights = append(s.weights, weight)
	s.psps = append(s.psps, psp)
	s.types = append(s.types, t)
	s.valid = append(s.valid, true)
	s.bySource[src] = append(s.bySource[src], id)
	s.outDegree[src]++
	s.live++
	return id, nil
}

// Remove invalidates a synapse slot. The source index keeps the entry; scans
// skip it via the valid mask.
func (s *SynapseStore) Remove(id neural.SynapseID) error {
	if !s.Valid(id) {
		return fmt.Errorf("remove synapse %d: %w", id, ErrInvalidReference)
	}
	s.valid[id] = false
	s.outDegree[s.sources[id]]--
	s.live--
	return nil
}

// Valid reports whether id refers to a live slot.
func (s *SynapseStore) Valid(id neural.SynapseID) bool {
	return int(id) < len(s.valid) && s.valid[id]
}

// Count is the number of live synapses.
func (s *SynapseStore) Count() int { return s.live }

// Capacity is the fixed arena capacity.
func (s *SynapseStore) Capacity() int { return s.capacity }

// Outgoing returns the synapse ids indexed under a source neuron, including
// invalidated ones; callers filter by the valid mask.
func (s *SynapseStore) Outgoing(src neural.NeuronID) []neural.SynapseID {
	return s.bySource[src]
}

// OutDegree is the number of live outgoing synapses of a source neuron.
// Used by the PSP uniform-distribution mode to divide contribution by
// fan-out.
func (s *SynapseStore) OutDegree(src neural.NeuronID) int {
	return s.outDegree[src]
}

// Bulk accessors used by the compute backends.

func (s *SynapseStore) Sources() []neural.NeuronID  { return s.sources }
func (s *SynapseStore) Targets() []neural.NeuronID  { return s.targets }
func (s *SynapseStore) Weights() []uint8            { return s.weights }
func (s *SynapseStore) PSPs() []uint8               { return s.psps }
func (s *SynapseStore) Types() []neural.SynapseType { return s.types }
func (s *SynapseStore) ValidMask() []bool           { return s.valid }
