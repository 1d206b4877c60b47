// Package neural defines the core value types and numeric models of the
// burst engine: neuron/synapse identifiers, synapse polarity, the
// leaky-integrate-and-fire model, and the membrane-potential codecs.
package neural

import "fmt"

// NeuronID is a dense index into the neuron store. Slots are reused only
// after explicit invalidation.
type NeuronID uint32

// SynapseID is a dense index into the synapse store.
type SynapseID uint32

// AreaID identifies a cortical area: a named population of neurons sharing
// a coordinate space.
type AreaID uint32

// XYZ is a voxel coordinate within a cortical area.
type XYZ struct {
	X, Y, Z uint32
}

func (c XYZ) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// SynapseType is the polarity of a synapse.
type SynapseType uint8

const (
	Excitatory SynapseType = iota
	Inhibitory
)

func (t SynapseType) String() string {
	if t == Inhibitory {
		return "inhibitory"
	}
	return "excitatory"
}

// Sign returns the contribution sign for the synapse type.
func (t SynapseType) Sign() float32 {
	if t == Inhibitory {
		return -1.0
	}
	return 1.0
}

// NeuronKind distinguishes ordinary neurons from memory neurons, which
// force-fire when injected and drive pattern replay.
type NeuronKind uint8

const (
	KindStandard NeuronKind = iota
	KindMemory
)
