package fire

import "github.com/nvandessel/burst-loop/internal/neural"

// Queue is the ordered set of neurons that fired during one dynamics phase.
// Rebuilt every burst; never persisted beyond the ledger window.
type Queue struct {
	ids []neural.NeuronID
	set map[neural.NeuronID]struct{}
}

// NewQueue creates an empty fire queue.
func NewQueue() *Queue {
	return &Queue{set: make(map[neural.NeuronID]struct{})}
}

// Append records a fired neuron, preserving first-fire order. Duplicate
// appends are ignored.
func (q *Queue) Append(id neural.NeuronID) {
	if _, ok := q.set[id]; ok {
		return
	}
	q.set[id] = struct{}{}
	q.ids = append(q.ids, id)
}

// Contains reports whether the neuron fired this burst.
func (q *Queue) Contains(id neural.NeuronID) bool {
	_, ok := q.set[id]
	return ok
}

// IDs returns the fired neurons in fire order. The slice is owned by the
// queue.
func (q *Queue) IDs() []neural.NeuronID { return q.ids }

// Len is the number of fired neurons.
func (q *Queue) Len() int { return len(q.ids) }
