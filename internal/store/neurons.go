package store

import (
	"fmt"

	"github.com/nvandessel/burst-loop/internal/neural"
)

// NeuronParams are the per-neuron parameters supplied at creation time.
type NeuronParams struct {
	Threshold      float32
	ThresholdLimit float32 // 0 = no upper bound on the firing window
	Leak           float32
	Resting        float32
	Excitability   float32 // 0..1; >= 0.999 fires unconditionally

	RefractoryPeriod     uint16
	ConsecutiveFireLimit uint16 // 0 = unlimited
	SnoozePeriod         uint16

	Kind  neural.NeuronKind
	Area  neural.AreaID
	Coord neural.XYZ
}

// NeuronStore is a fixed-capacity struct-of-arrays arena of neuron state.
// All per-field slices share the same length; valid[i]==false means slot i
// is logically absent from every scan.
//
// Membrane potentials are stored as float32 but every write goes through the
// configured codec, so an int8 deployment observes quantized, saturating
// arithmetic uniformly across backends.
type NeuronStore struct {
	potentials     []float32
	thresholds     []float32
	thresholdLims  []float32
	leaks          []float32
	restings       []float32
	excitabilities []float32

	refractoryPeriods    []uint16
	refractoryCountdowns []uint16
	consecutiveCounts    []uint16
	consecutiveLimits    []uint16
	snoozePeriods        []uint16

	kinds  []neural.NeuronKind
	areas  []neural.AreaID
	coords []neural.XYZ
	valid  []bool

	capacity int
	live     int
	codec    neural.Codec
}

// NewNeuronStore creates an empty store with the given capacity and
// membrane-potential codec.
func NewNeuronStore(capacity int, codec neural.Codec) *NeuronStore {
	return &NeuronStore{
		potentials:           make([]float32, 0, capacity),
		thresholds:           make([]float32, 0, capacity),
		thresholdLims:        make([]float32, 0, capacity),
		leaks:                make([]float32, 0, capacity),
		restings:             make([]float32, 0, capacity),
		excitabilities:       make([]float32, 0, capacity),
		refractoryPeriods:    make([]uint16, 0, capacity),
		refractoryCountdowns: make([]uint16, 0, capacity),
		consecutiveCounts:    make([]uint16, 0, capacity),
		consecutiveLimits:    make([]uint16, 0, capacity),
		snoozePeriods:        make([]uint16, 0, capacity),
		kinds:                make([]neural.NeuronKind, 0, capacity),
		areas:                make([]neural.AreaID, 0, capacity),
		coords:               make([]neural.XYZ, 0, capacity),
		valid:                make([]bool, 0, capacity),
		capacity:             capacity,
		codec:                codec,
	}
}

// Add appends a neuron and returns its id. Fails with ErrCapacityExceeded
// when the arena is full; the store is unchanged on failure.
func (s *NeuronStore) Add(p NeuronParams) (neural.NeuronID, error) {
	if len(s.valid) >= s.capacity {
		return 0, fmt.Errorf("add neuron: %w (capacity %d)", ErrCapacityExceeded, s.capacity)
	}

	id := neural.NeuronID(len(s.valid))
	s.potentials = append(s.potentials, s.codec.Quantize(p.Resting))
	s.thresholds = append(s.thresholds, p.Threshold)
	s.thresholdLims = append(s.thresholdLims, p.ThresholdLimit)
	s.leaks = append(s.leaks, p.Leak)
	s.restings = append(s.restings, p.Resting)
	s.excitabilities = append(s.excitabilities, p.Excitability)
	s.refractoryPeriods = append(s.refractoryPeriods, p.RefractoryPeriod)
	s.refractoryCountdowns = append(s.refractoryCountdowns, 0)
	s.consecutiveCounts = append(s.consecutiveCounts, 0)
	s.consecutiveLimits = append(s.consecutiveLimits, p.ConsecutiveFireLimit)
	s.snoozePeriods = append(s.snoozePeriods, p.SnoozePeriod)
	s.kinds = append(s.kinds, p.Kind)
	s.areas = append(s.areas, p.Area)
	s.coords = append(s.coords, p.Coord)
	s.valid = append(s.valid, true)
	s.live++
	return id, nil
}

// AddBatch adds neurons until the batch is exhausted or capacity is hit.
// On capacity failure none of the remaining params are applied and the ids
// added so far are returned alongside the error.
func (s *NeuronStore) AddBatch(params []NeuronParams) ([]neural.NeuronID, error) {
	ids := make([]neural.NeuronID, 0, len(params))
	for _, p := range params {
		id, err := s.Add(p)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Remove invalidates a neuron slot. The slot is skipped by all scans from
// the next burst on; it is never compacted mid-burst.
func (s *NeuronStore) Remove(id neural.NeuronID) error {
	if !s.Valid(id) {
		return fmt.Errorf("remove neuron %d: %w", id, ErrInvalidReference)
	}
	s.valid[id] = false
	s.live--
	return nil
}

// Valid reports whether id refers to a live slot.
func (s *NeuronStore) Valid(id neural.NeuronID) bool {
	return int(id) < len(s.valid) && s.valid[id]
}

// Count is the number of live neurons.
func (s *NeuronStore) Count() int { return s.live }

// Capacity is the fixed arena capacity.
func (s *NeuronStore) Capacity() int { return s.capacity }

// Codec exposes the membrane-potential codec.
func (s *NeuronStore) Codec() neural.Codec { return s.codec }

// Potential returns the membrane potential of a live neuron.
func (s *NeuronStore) Potential(id neural.NeuronID) (float32, error) {
	if !s.Valid(id) {
		return 0, fmt.Errorf("potential of %d: %w", id, ErrInvalidReference)
	}
	return s.potentials[id], nil
}

// SetPotential writes a membrane potential through the codec.
func (s *NeuronStore) SetPotential(id neural.NeuronID, v float32) error {
	if !s.Valid(id) {
		return fmt.Errorf("set potential of %d: %w", id, ErrInvalidReference)
	}
	s.potentials[id] = s.codec.Quantize(v)
	return nil
}

// Coord returns a neuron's voxel coordinate and area.
func (s *NeuronStore) Coord(id neural.NeuronID) (neural.XYZ, neural.AreaID, error) {
	if !s.Valid(id) {
		return neural.XYZ{}, 0, fmt.Errorf("coord of %d: %w", id, ErrInvalidReference)
	}
	return s.coords[id], s.areas[id], nil
}

// FindByCoord returns the live neuron at (area, coord), scanning the arena.
// Used by replay frame resolution, which runs off the hot path.
func (s *NeuronStore) FindByCoord(area neural.AreaID, coord neural.XYZ) (neural.NeuronID, bool) {
	for i := range s.valid {
		if s.valid[i] && s.areas[i] == area && s.coords[i] == coord {
			return neural.NeuronID(i), true
		}
	}
	return 0, false
}

// SetLeakForArea overrides the leak coefficient of every live neuron in an
// area. Runtime parameter update; serialized with the burst loop by the
// caller.
func (s *NeuronStore) SetLeakForArea(area neural.AreaID, leak float32) int {
	n := 0
	for i := range s.valid {
		if s.valid[i] && s.areas[i] == area {
			s.leaks[i] = leak
			n++
		}
	}
	return n
}

// Bulk accessors used by the compute backends. Callers must honor the valid
// mask and write potentials only through the codec.

func (s *NeuronStore) Potentials() []float32           { return s.potentials }
func (s *NeuronStore) Thresholds() []float32           { return s.thresholds }
func (s *NeuronStore) ThresholdLimits() []float32      { return s.thresholdLims }
func (s *NeuronStore) Leaks() []float32                { return s.leaks }
func (s *NeuronStore) Restings() []float32             { return s.restings }
func (s *NeuronStore) Excitabilities() []float32       { return s.excitabilities }
func (s *NeuronStore) RefractoryPeriods() []uint16     { return s.refractoryPeriods }
func (s *NeuronStore) RefractoryCountdowns() []uint16  { return s.refractoryCountdowns }
func (s *NeuronStore) ConsecutiveFireCounts() []uint16 { return s.consecutiveCounts }
func (s *NeuronStore) ConsecutiveFireLimits() []uint16 { return s.consecutiveLimits }
func (s *NeuronStore) SnoozePeriods() []uint16         { return s.snoozePeriods }
func (s *NeuronStore) Kinds() []neural.NeuronKind      { return s.kinds }
func (s *NeuronStore) Areas() []neural.AreaID          { return s.areas }
func (s *NeuronStore) Coords() []neural.XYZ            { return s.coords }
func (s *NeuronStore) ValidMask() []bool               { return s.valid }
