// Package replay implements memory-twin pattern replay: a memory neuron,
// once injected and fired, schedules stored firing frames to re-fire in a
// twin cortical area after configured burst delays.
package replay

import (
	"fmt"

	"github.com/nvandessel/burst-loop/internal/fire"
	"github.com/nvandessel/burst-loop/internal/neural"
)

// Frame is a stored firing pattern slice: the upstream-area coordinates that
// should re-fire in the twin area OffsetBursts after the memory neuron
// fires.
type Frame struct {
	OffsetBursts uint64
	UpstreamArea neural.AreaID
	Coords       []neural.XYZ
}

// TwinMapping links a memory area to the upstream area whose patterns it
// stores and the twin area where replays land.
type TwinMapping struct {
	MemoryArea   neural.AreaID
	UpstreamArea neural.AreaID
	TwinArea     neural.AreaID
	Scalar       float32 // potential scale applied to replayed fires
}

// ScheduledFire is one due replay: mark these twin-area neurons as fired.
type ScheduledFire struct {
	TwinArea neural.AreaID
	Coords   []neural.XYZ
	Scalar   float32
}

// Scheduler owns twin mappings, registered frames, and the pending schedule
// of future replays. Registration happens before the memory neuron is
// injected; each registered frame fires exactly once.
type Scheduler struct {
	mappings map[neural.AreaID]TwinMapping // by memory area
	frames   map[neural.NeuronID][]Frame   // by memory neuron
	pending  map[uint64][]ScheduledFire    // by due burst
}

// NewScheduler creates an empty replay scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		mappings: make(map[neural.AreaID]TwinMapping),
		frames:   make(map[neural.NeuronID][]Frame),
		pending:  make(map[uint64][]ScheduledFire),
	}
}

// RegisterTwinMapping declares the upstream/twin relationship for a memory
// area, replacing any previous mapping for that area.
func (s *Scheduler) RegisterTwinMapping(m TwinMapping) {
	s.mappings[m.MemoryArea] = m
}

// RegisterFrames stores the replay frames for a memory neuron, replacing
// any previous registration.
func (s *Scheduler) RegisterFrames(id neural.NeuronID, frames []Frame) {
	s.frames[id] = frames
}

// HasMapping reports whether a memory area has a registered twin mapping.
func (s *Scheduler) HasMapping(area neural.AreaID) bool {
	_, ok := s.mappings[area]
	return ok
}

// OnMemoryFire consumes the frames registered for a fired memory neuron and
// schedules each at fireBurst + 1 + offset: the replayed pattern lands one
// burst after the memory neuron's own fire, plus the frame's delay. Frames
// are removed on consumption so a frame never fires twice. Returns the
// number of frames scheduled, or ErrNotConfigured wrapped if the neuron's
// area has no twin mapping.
func (s *Scheduler) OnMemoryFire(id neural.NeuronID, memoryArea neural.AreaID, fireBurst uint64) (int, error) {
	mapping, ok := s.mappings[memoryArea]
	if !ok {
		return 0, fmt.Errorf("memory fire in area %d: %w", memoryArea, fire.ErrNotConfigured)
	}

	frames := s.frames[id]
	if len(frames) == 0 {
		return 0, nil
	}
	delete(s.frames, id)

	for _, f := range frames {
		if f.UpstreamArea != mapping.UpstreamArea {
			continue
		}
		due := fireBurst + 1 + f.OffsetBursts
		s.pending[due] = append(s.pending[due], ScheduledFire{
			TwinArea: mapping.TwinArea,
			Coords:   f.Coords,
			Scalar:   mapping.Scalar,
		})
	}
	return len(frames), nil
}

// Due removes and returns the replays scheduled for the given burst.
func (s *Scheduler) Due(burst uint64) []ScheduledFire {
	fires, ok := s.pending[burst]
	if !ok {
		return nil
	}
	delete(s.pending, burst)
	return fires
}

// PendingCount is the number of scheduled replays not yet due.
func (s *Scheduler) PendingCount() int {
	n := 0
	for _, fires := range s.pending {
		n += len(fires)
	}
	return n
}
