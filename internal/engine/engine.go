// Package engine assembles the burst engine: it owns the neuron and synapse
// stores, the fire candidate list, the fire ledger and replay scheduler, and
// drives the four-phase burst pipeline through a compute backend.
//
// One mutex guards a complete burst. External readers and topology mutation
// see state only between bursts, never mid-burst.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/burst-loop/internal/backend"
	"github.com/nvandessel/burst-loop/internal/fire"
	"github.com/nvandessel/burst-loop/internal/neural"
	"github.com/nvandessel/burst-loop/internal/replay"
	"github.com/nvandessel/burst-loop/internal/store"
)

// Config sizes and parameterizes an NPU instance.
type Config struct {
	// Precision selects the membrane-potential representation, fixed for
	// the lifetime of the instance.
	Precision neural.Precision

	// Int8RangeMin/Max bound the representable membrane-potential range for
	// int8 precision.
	Int8RangeMin float32
	Int8RangeMax float32

	// NeuronCapacity and SynapseCapacity fix the store arena sizes.
	NeuronCapacity  int
	SynapseCapacity int

	// Backend controls compute backend selection.
	Backend backend.Config
}

// DefaultConfig returns a small f32 CPU instance.
func DefaultConfig() Config {
	return Config{
		Precision:       neural.PrecisionF32,
		Int8RangeMin:    -100,
		Int8RangeMax:    50,
		NeuronCapacity:  100_000,
		SynapseCapacity: 1_000_000,
		Backend:         backend.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := neural.ParsePrecision(string(c.Precision)); err != nil {
		return err
	}
	if c.NeuronCapacity <= 0 {
		return fmt.Errorf("neuron capacity must be positive, got %d", c.NeuronCapacity)
	}
	if c.SynapseCapacity <= 0 {
		return fmt.Errorf("synapse capacity must be positive, got %d", c.SynapseCapacity)
	}
	return c.Backend.Validate()
}

// areaParams are the runtime-adjustable per-area settings.
type areaParams struct {
	pspUniform  bool
	mpDriven    bool
	memoryDecay float32
}

// injection is one pending external contribution for the next burst.
type injection struct {
	id    neural.NeuronID
	delta float32
}

// FiredNeuron is one entry of the post-burst fired set, with the coordinate
// data the motor/visualization collaborator decodes.
type FiredNeuron struct {
	ID    neural.NeuronID
	Area  neural.AreaID
	Coord neural.XYZ
}

// BurstSummary reports one completed burst.
type BurstSummary struct {
	Burst         uint64
	Fired         int
	Contributions int
	Processed     int
	InRefractory  int
	Elapsed       time.Duration
	Backend       string
}

// NPU is a burst engine instance. Construct with New; no global state.
type NPU struct {
	mu sync.Mutex

	log      *slog.Logger
	neurons  *store.NeuronStore
	synapses *store.SynapseStore
	compute  backend.ComputeBackend
	decision backend.Decision

	ledger *fire.Ledger
	replay *replay.Scheduler

	// next accumulates contributions for the burst after the current one:
	// propagation output plus external injections.
	next    *fire.CandidateList
	pending []injection

	areaParams map[neural.AreaID]*areaParams

	burst     uint64
	lastFired []FiredNeuron
}

// New constructs an NPU. Backend selection happens here, once, using the
// configured capacities as the deployment-size signal: live counts are zero
// at construction and the backend does not change as neurons are added, so
// capacity is the size the selection is based on. A GPU request that cannot
// be satisfied degrades to CPU and is recorded in the decision.
func New(cfg Config, log *slog.Logger) (*NPU, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	codec, err := neural.NewCodec(cfg.Precision, cfg.Int8RangeMin, cfg.Int8RangeMax)
	if err != nil {
		return nil, fmt.Errorf("membrane codec: %w", err)
	}

	neurons := store.NewNeuronStore(cfg.NeuronCapacity, codec)
	synapses := store.NewSynapseStore(cfg.SynapseCapacity, neurons)
	compute, decision := backend.New(cfg.NeuronCapacity, cfg.SynapseCapacity, cfg.Backend, log)

	return &NPU{
		log:        log,
		neurons:    neurons,
		synapses:   synapses,
		compute:    compute,
		decision:   decision,
		ledger:     fire.NewLedger(),
		replay:     replay.NewScheduler(),
		next:       fire.NewCandidateList(),
		areaParams: make(map[neural.AreaID]*areaParams),
	}, nil
}

// Backend reports the selected backend and the decision that chose it.
func (n *NPU) Backend() (string, backend.Decision) {
	return n.compute.Name(), n.decision
}

// BurstCount is the number of completed bursts.
func (n *NPU) BurstCount() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.burst
}

// Counts returns the live neuron and synapse counts.
func (n *NPU) Counts() (neurons, synapses int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.neurons.Count(), n.synapses.Count()
}

// FiredNeurons returns the fired set of the last completed burst with
// coordinates, for motor/visualization decoding.
func (n *NPU) FiredNeurons() []FiredNeuron {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]FiredNeuron, len(n.lastFired))
	copy(out, n.lastFired)
	return out
}

// Potential reads a neuron's membrane potential between bursts.
func (n *NPU) Potential(id neural.NeuronID) (float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.neurons.Potential(id)
}

// AddNeuron adds a neuron between bursts.
func (n *NPU) AddNeuron(p store.NeuronParams) (neural.NeuronID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.neurons.Add(p)
}

// AddNeurons adds a batch of neurons between bursts.
func (n *NPU) AddNeurons(params []store.NeuronParams) ([]neural.NeuronID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.neurons.AddBatch(params)
}

// AddSynapse adds a synapse between bursts. This is the synaptogenesis
// collaborator surface: (source, target, weight, psp, type) tuples.
func (n *NPU) AddSynapse(src, tgt neural.NeuronID, weight, psp uint8, t neural.SynapseType) (neural.SynapseID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.synapses.Add(src, tgt, weight, psp, t)
}

// RemoveNeuron invalidates a neuron between bursts.
func (n *NPU) RemoveNeuron(id neural.NeuronID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.neurons.Remove(id)
}

// RemoveSynapse invalidates a synapse between bursts.
func (n *NPU) RemoveSynapse(id neural.SynapseID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.synapses.Remove(id)
}

// InjectPotential queues an external contribution for the next burst's
// candidate list.
func (n *NPU) InjectPotential(id neural.NeuronID, delta float32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.neurons.Valid(id) {
		return fmt.Errorf("inject potential into %d: %w", id, store.ErrInvalidReference)
	}
	n.pending = append(n.pending, injection{id: id, delta: delta})
	return nil
}

// SensoryInjection is one (neuron, potential) pair from the sensor
// collaborator.
type SensoryInjection struct {
	Neuron    neural.NeuronID
	Potential float32
}

// InjectSensory queues a batch of sensory contributions for the next burst.
// Every neuron must be valid and belong to the given area; a bad entry fails
// the whole batch before anything is queued.
func (n *NPU) InjectSensory(area neural.AreaID, batch []SensoryInjection) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	areas := n.neurons.Areas()
	for _, s := range batch {
		if !n.neurons.Valid(s.Neuron) {
			return fmt.Errorf("sensory injection into %d: %w", s.Neuron, store.ErrInvalidReference)
		}
		if areas[s.Neuron] != area {
			return fmt.Errorf("sensory injection into %d: not in area %d: %w", s.Neuron, area, store.ErrInvalidReference)
		}
	}
	for _, s := range batch {
		n.pending = append(n.pending, injection{id: s.Neuron, delta: s.Potential})
	}
	return nil
}

// InjectMemoryNeuron queues a memory neuron for the next burst. It will
// force-fire there and consume its registered replay frames.
func (n *NPU) InjectMemoryNeuron(id neural.NeuronID, potential float32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.neurons.Valid(id) {
		return fmt.Errorf("inject memory neuron %d: %w", id, store.ErrInvalidReference)
	}
	if n.neurons.Kinds()[id] != neural.KindMemory {
		return fmt.Errorf("inject memory neuron %d: not a memory neuron: %w", id, store.ErrInvalidReference)
	}
	n.pending = append(n.pending, injection{id: id, delta: potential})
	return nil
}

// ConfigureFireLedgerWindow sets the retained history depth for an area.
func (n *NPU) ConfigureFireLedgerWindow(area neural.AreaID, size int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.ConfigureWindow(area, size)
}

// FireLedgerWindow reads the retained firing bitmaps for an area.
func (n *NPU) FireLedgerWindow(area neural.AreaID, fromBurst uint64, depth int) ([]fire.Frame, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.DenseWindow(area, fromBurst, depth)
}

// RegisterTwinMapping declares a memory area's upstream/twin relationship.
func (n *NPU) RegisterTwinMapping(m replay.TwinMapping) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replay.RegisterTwinMapping(m)
}

// RegisterReplayFrames stores the replay frames for a memory neuron.
func (n *NPU) RegisterReplayFrames(id neural.NeuronID, frames []replay.Frame) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replay.RegisterFrames(id, frames)
}

// SetAreaLeak overrides the leak coefficient for every neuron in an area.
func (n *NPU) SetAreaLeak(area neural.AreaID, leak float32) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.neurons.SetLeakForArea(area, leak)
}

// SetAreaPSPUniform toggles fan-out-normalized propagation for an area.
func (n *NPU) SetAreaPSPUniform(area neural.AreaID, enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.area(area).pspUniform = enabled
}

// SetAreaMPDriven toggles potential-scaled propagation for an area.
func (n *NPU) SetAreaMPDriven(area neural.AreaID, enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.area(area).mpDriven = enabled
}

// SetAreaMemoryDecay sets the per-burst potential decay fraction for memory
// neurons in an area.
func (n *NPU) SetAreaMemoryDecay(area neural.AreaID, decay float32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.area(area).memoryDecay = decay
}

func (n *NPU) area(id neural.AreaID) *areaParams {
	p, ok := n.areaParams[id]
	if !ok {
		p = &areaParams{}
		n.areaParams[id] = p
	}
	return p
}

// ProcessBurst executes one complete burst: injection, dynamics,
// propagation, ledger recording. The burst is atomic under the engine
// mutex; ctx is checked only before state is touched, never mid-burst.
func (n *NPU) ProcessBurst(ctx context.Context) (BurstSummary, error) {
	if err := ctx.Err(); err != nil {
		return BurstSummary{}, fmt.Errorf("process burst: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	start := time.Now()
	n.burst++
	burst := n.burst

	// A burst in progress always completes; backends get a background
	// context so cancellation stays a burst-boundary concern.
	bctx := context.Background()

	// Phase 1: the candidate list for this burst is last burst's
	// propagation output plus everything injected since, plus due replays.
	current := n.next
	n.next = fire.NewCandidateList()
	for _, inj := range n.pending {
		current.Add(inj.id, inj.delta)
	}
	n.pending = n.pending[:0]
	dueReplays := n.replay.Due(burst)

	// Phase 2: neural dynamics over the candidate list.
	opts := backend.DynamicsOptions{MemoryDecay: n.memoryDecayByArea()}
	res, err := n.compute.Dynamics(bctx, current, n.neurons, burst, opts)
	if err != nil {
		return BurstSummary{}, fmt.Errorf("burst %d: %w", burst, err)
	}

	// Memory neurons that fired consume their frames and schedule replays.
	areas := n.neurons.Areas()
	for _, id := range res.MemoryFired {
		if _, err := n.replay.OnMemoryFire(id, areas[id], burst); err != nil {
			n.log.Warn("memory fire without twin mapping", "neuron", id, "area", areas[id], "err", err)
		}
	}

	// Due replays force-fire their twin neurons this burst; they join the
	// fired set and propagate like any other fire.
	for _, sf := range dueReplays {
		for _, coord := range sf.Coords {
			id, ok := n.neurons.FindByCoord(sf.TwinArea, coord)
			if !ok {
				n.log.Warn("replay target missing", "area", sf.TwinArea, "coord", coord)
				continue
			}
			res.Fired.Append(id)
			res.FiredPotentials[id] = sf.Scalar
		}
	}

	// Phase 3: propagate into the next burst's candidate list.
	popts := backend.PropagationOptions{
		PSPUniform:      n.pspUniformByArea(),
		MPDriven:        n.mpDrivenByArea(),
		FiredPotentials: res.FiredPotentials,
	}
	contributions, err := n.compute.Propagate(bctx, res.Fired.IDs(), n.neurons, n.synapses, n.next, popts)
	if err != nil {
		return BurstSummary{}, fmt.Errorf("burst %d: %w", burst, err)
	}

	// Phase 4: record the fired set into the ledger, grouped by area.
	coords := n.neurons.Coords()
	byArea := make(map[neural.AreaID][]neural.NeuronID)
	n.lastFired = n.lastFired[:0]
	for _, id := range res.Fired.IDs() {
		byArea[areas[id]] = append(byArea[areas[id]], id)
		n.lastFired = append(n.lastFired, FiredNeuron{ID: id, Area: areas[id], Coord: coords[id]})
	}
	// Every tracked area records a frame each burst, fired or not, so its
	// window stays dense.
	for _, area := range n.ledger.TrackedAreas() {
		n.ledger.Record(area, burst, byArea[area])
	}

	return BurstSummary{
		Burst:         burst,
		Fired:         res.Fired.Len(),
		Contributions: contributions,
		Processed:     res.Processed,
		InRefractory:  res.InRefractory,
		Elapsed:       time.Since(start),
		Backend:       n.compute.Name(),
	}, nil
}

func (n *NPU) memoryDecayByArea() map[neural.AreaID]float32 {
	m := make(map[neural.AreaID]float32, len(n.areaParams))
	for area, p := range n.areaParams {
		if p.memoryDecay != 0 {
			m[area] = p.memoryDecay
		}
	}
	return m
}

func (n *NPU) pspUniformByArea() map[neural.AreaID]bool {
	m := make(map[neural.AreaID]bool, len(n.areaParams))
	for area, p := range n.areaParams {
		if p.pspUniform {
			m[area] = true
		}
	}
	return m
}

func (n *NPU) mpDrivenByArea() map[neural.AreaID]bool {
	m := make(map[neural.AreaID]bool, len(n.areaParams))
	for area, p := range n.areaParams {
		if p.mpDriven {
			m[area] = true
		}
	}
	return m
}
