// Package fire holds the per-burst firing structures: the sparse candidate
// accumulator feeding neural dynamics, the ordered queue of fired neurons,
// and the windowed per-area fire ledger.
package fire

import (
	"sort"

	"github.com/nvandessel/burst-loop/internal/neural"
)

// CandidateList is the sparse accumulator of incoming synaptic contribution
// per neuron for one burst. Entries exist only for neurons that received at
// least one contribution; accumulation is a commutative sum.
type CandidateList struct {
	contributions map[neural.NeuronID]float32
}

// NewCandidateList creates an empty candidate list.
func NewCandidateList() *CandidateList {
	return &CandidateList{contributions: make(map[neural.NeuronID]float32)}
}

// Add accumulates a contribution onto a neuron, creating the entry at 0 if
// absent.
func (c *CandidateList) Add(id neural.NeuronID, delta float32) {
	c.contributions[id] += delta
}

// Get returns the accumulated contribution and whether the neuron received
// any this burst.
func (c *CandidateList) Get(id neural.NeuronID) (float32, bool) {
	v, ok := c.contributions[id]
	return v, ok
}

// Len is the number of neurons with at least one contribution.
func (c *CandidateList) Len() int { return len(c.contributions) }

// Clear empties the list. Called at the start of every burst before
// injection.
func (c *CandidateList) Clear() {
	clear(c.contributions)
}

// IDs returns the candidate neuron ids in unspecified order.
func (c *CandidateList) IDs() []neural.NeuronID {
	ids := make([]neural.NeuronID, 0, len(c.contributions))
	for id := range c.contributions {
		ids = append(ids, id)
	}
	return ids
}

// SortedIDs returns the candidate neuron ids in ascending order. Used where
// deterministic iteration matters (tests, trace output).
func (c *CandidateList) SortedIDs() []neural.NeuronID {
	ids := c.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Merge folds another candidate list into this one. Summation is
// commutative, so fold order affects only float associativity.
func (c *CandidateList) Merge(other *CandidateList) {
	for id, v := range other.contributions {
		c.contributions[id] += v
	}
}
