package backend

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/burst-loop/internal/fire"
	"github.com/nvandessel/burst-loop/internal/neural"
	"github.com/nvandessel/burst-loop/internal/store"
)

// CPUBackend runs both burst phases data-parallel across worker goroutines.
// Candidate-list shards are folded on the calling goroutine in worker order,
// so results are deterministic for a fixed worker count; bit-for-bit
// stability across different worker counts is not guaranteed (float
// summation order differs).
type CPUBackend struct {
	workers int
}

// NewCPUBackend creates a CPU backend. workers <= 0 uses GOMAXPROCS.
func NewCPUBackend(workers int) *CPUBackend {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &CPUBackend{workers: workers}
}

func (b *CPUBackend) Name() string { return "cpu-parallel-lif" }

// shardResult is one worker's slice of the dynamics outcome.
type shardResult struct {
	fired           []neural.NeuronID
	memoryFired     []neural.NeuronID
	firedPotentials map[neural.NeuronID]float32
	processed       int
	inRefractory    int
}

func (b *CPUBackend) Dynamics(ctx context.Context, fcl *fire.CandidateList, neurons *store.NeuronStore, burst uint64, opts DynamicsOptions) (*DynamicsResult, error) {
	ids := fcl.SortedIDs()
	shards := splitShards(ids, b.workers)
	results := make([]shardResult, len(shards))

	g, ctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			results[i] = b.dynamicsShard(shard, fcl, neurons, burst, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("neural dynamics: %w", err)
	}

	out := &DynamicsResult{
		Fired:           fire.NewQueue(),
		FiredPotentials: make(map[neural.NeuronID]float32),
	}
	for _, r := range results {
		for _, id := range r.fired {
			out.Fired.Append(id)
		}
		out.MemoryFired = append(out.MemoryFired, r.memoryFired...)
		for id, v := range r.firedPotentials {
			out.FiredPotentials[id] = v
		}
		out.Processed += r.processed
		out.InRefractory += r.inRefractory
	}
	return out, nil
}

// dynamicsShard applies one burst of dynamics to a disjoint slice of
// candidate neurons. Workers write only their own neurons' slots, so no
// synchronization is needed on the store arrays.
func (b *CPUBackend) dynamicsShard(ids []neural.NeuronID, fcl *fire.CandidateList, neurons *store.NeuronStore, burst uint64, opts DynamicsOptions) shardResult {
	var r shardResult
	r.firedPotentials = make(map[neural.NeuronID]float32)

	valid := neurons.ValidMask()
	potentials := neurons.Potentials()
	thresholds := neurons.Thresholds()
	thresholdLims := neurons.ThresholdLimits()
	leaks := neurons.Leaks()
	restings := neurons.Restings()
	excitabilities := neurons.Excitabilities()
	periods := neurons.RefractoryPeriods()
	countdowns := neurons.RefractoryCountdowns()
	counts := neurons.ConsecutiveFireCounts()
	limits := neurons.ConsecutiveFireLimits()
	snoozes := neurons.SnoozePeriods()
	kinds := neurons.Kinds()
	areas := neurons.Areas()
	codec := neurons.Codec()

	for _, id := range ids {
		if !valid[id] {
			continue
		}
		r.processed++
		contrib, _ := fcl.Get(id)

		// Memory neurons force-fire and decay instead of integrating.
		if kinds[id] == neural.KindMemory {
			r.fired = append(r.fired, id)
			r.memoryFired = append(r.memoryFired, id)
			r.firedPotentials[id] = potentials[id] + contrib
			decay := opts.MemoryDecay[areas[id]]
			potentials[id] = codec.Quantize(potentials[id] * (1 - decay))
			countdowns[id] = periods[id]
			continue
		}

		// Refractory neurons skip the burst entirely; the countdown ticks
		// here, and expiring it clears a saturated consecutive-fire count.
		if countdowns[id] > 0 {
			countdowns[id]--
			if countdowns[id] == 0 && limits[id] > 0 && counts[id] >= limits[id] {
				counts[id] = 0
			}
			r.inRefractory++
			continue
		}

		p := neural.LIFParams{LeakCoefficient: leaks[id], RestingPotential: restings[id]}
		v := codec.Quantize(neural.UpdatePotential(potentials[id], contrib, p))

		if neural.InFiringWindow(v, thresholds[id], thresholdLims[id]) {
			if neural.ExcitabilityGate(excitabilities[id], id, burst) {
				r.fired = append(r.fired, id)
				r.firedPotentials[id] = v
				potentials[id] = codec.Quantize(0)
				counts[id]++
				// A fire that reaches the consecutive-fire limit extends
				// its own refractory period by the snooze; the count clears
				// when the extended period expires.
				if limits[id] > 0 && counts[id] >= limits[id] {
					countdowns[id] = periods[id] + snoozes[id]
				} else {
					countdowns[id] = periods[id]
				}
				continue
			}
		}

		// No fire: the streak ends and the leaked potential persists.
		counts[id] = 0
		potentials[id] = v
	}
	return r
}

func (b *CPUBackend) Propagate(ctx context.Context, fired []neural.NeuronID, neurons *store.NeuronStore, synapses *store.SynapseStore, next *fire.CandidateList, opts PropagationOptions) (int, error) {
	shards := splitShards(fired, b.workers)
	partials := make([]*fire.CandidateList, len(shards))
	applied := make([]int, len(shards))

	g, ctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			partials[i] = fire.NewCandidateList()
			applied[i] = propagateShard(shard, neurons, synapses, partials[i], opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("synaptic propagation: %w", err)
	}

	total := 0
	for i, partial := range partials {
		next.Merge(partial)
		total += applied[i]
	}
	return total, nil
}

func propagateShard(fired []neural.NeuronID, neurons *store.NeuronStore, synapses *store.SynapseStore, out *fire.CandidateList, opts PropagationOptions) int {
	valid := synapses.ValidMask()
	targets := synapses.Targets()
	weights := synapses.Weights()
	psps := synapses.PSPs()
	types := synapses.Types()
	areas := neurons.Areas()

	applied := 0
	for _, src := range fired {
		area := areas[src]
		uniform := opts.PSPUniform[area]
		mpDriven := opts.MPDriven[area]

		var fanout float32
		if uniform {
			fanout = float32(synapses.OutDegree(src))
		}

		for _, synID := range synapses.Outgoing(src) {
			if !valid[synID] {
				continue
			}
			contribution := neural.Contribution(weights[synID], psps[synID], types[synID])
			if uniform && fanout > 0 {
				contribution /= fanout
			}
			if mpDriven {
				contribution *= opts.FiredPotentials[src]
			}
			out.Add(targets[synID], contribution)
			applied++
		}
	}
	return applied
}

// splitShards partitions ids into at most n contiguous shards.
func splitShards(ids []neural.NeuronID, n int) [][]neural.NeuronID {
	if len(ids) == 0 {
		return nil
	}
	if n > len(ids) {
		n = len(ids)
	}
	shards := make([][]neural.NeuronID, 0, n)
	size := (len(ids) + n - 1) / n
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		shards = append(shards, ids[start:end])
	}
	return shards
}
