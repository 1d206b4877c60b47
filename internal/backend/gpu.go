//go:build gpu

package backend

import (
	"context"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/goki/vgpu/vgpu"

	"github.com/nvandessel/burst-loop/internal/fire"
	"github.com/nvandessel/burst-loop/internal/neural"
	"github.com/nvandessel/burst-loop/internal/store"
)

var (
	gpuInitOnce sync.Once
	gpuInitErr  error
)

func gpuAvailable() bool {
	gpuInitOnce.Do(func() {
		gpuInitErr = vgpu.Init()
	})
	return gpuInitErr == nil
}

// gpuParams is the uniform block for one dynamics dispatch. Layout must
// match the shader's Params block.
type gpuParams struct {
	BurstLo uint32
	BurstHi uint32
	N       uint32
	pad     uint32
}

// gpuNeuron is one candidate neuron's dispatch record: inputs gathered from
// the store, outputs (Fired, Potential, Countdown, Count) read back after
// the dispatch. Layout must match the shader's Neurons block.
type gpuNeuron struct {
	Contrib        float32
	Potential      float32
	Threshold      float32
	ThresholdLimit float32
	Leak           float32
	Resting        float32
	Excitability   float32
	PrePotential   float32
	ID             uint32
	Countdown      uint32
	Period         uint32
	Count          uint32
	Limit          uint32
	Snooze         uint32
	Fired          uint32
	pad            uint32
}

// GPUBackend runs neural dynamics as a compute shader dispatch over the
// candidate list. The shader source is shaders/dynamics.hlsl; its compiled
// SPIR-V (see the compile command in the shader header) is loaded from
// backend.shader_path. Propagation stays on the CPU path: the gather through
// the source index is memory-bound and the contribution sum is exact integer
// arithmetic either way. The dispatch blocks until results are read back,
// so the burst ordering contract holds.
type GPUBackend struct {
	cpu *CPUBackend

	gp *vgpu.GPU
	sy *vgpu.System
	pl *vgpu.Pipeline

	capacity int
	records  []gpuNeuron
}

func newGPUBackend(cfg Config) (ComputeBackend, error) {
	if !gpuAvailable() {
		return nil, fmt.Errorf("vulkan init: %w", gpuInitErr)
	}
	if cfg.ShaderPath == "" {
		return nil, fmt.Errorf("gpu backend requires backend.shader_path")
	}
	if _, err := os.Stat(cfg.ShaderPath); err != nil {
		return nil, fmt.Errorf("dynamics shader: %w", err)
	}

	gp := vgpu.NewComputeGPU()
	gp.Config("burst-loop")

	sy := gp.NewComputeSystem("dynamics")
	pl := sy.NewPipeline("dynamics")
	pl.AddShaderFile("dynamics", vgpu.ComputeShader, cfg.ShaderPath)

	return &GPUBackend{
		cpu: NewCPUBackend(cfg.Workers),
		gp:  gp,
		sy:  sy,
		pl:  pl,
	}, nil
}

func (b *GPUBackend) Name() string { return "gpu-vulkan-lif" }

// configure allocates device buffers for up to capacity candidate neurons.
func (b *GPUBackend) configure(capacity int) {
	vars := b.sy.Vars()
	setp := vars.AddSet()
	setd := vars.AddSet()

	setp.AddStruct("Params", int(unsafe.Sizeof(gpuParams{})), 1, vgpu.Uniform, vgpu.ComputeShader)
	setd.AddStruct("Neurons", int(unsafe.Sizeof(gpuNeuron{})), capacity, vgpu.Storage, vgpu.ComputeShader)

	setp.ConfigVals(1)
	setd.ConfigVals(1)
	b.sy.Config()

	b.capacity = capacity
	b.records = make([]gpuNeuron, capacity)
}

func (b *GPUBackend) Dynamics(ctx context.Context, fcl *fire.CandidateList, neurons *store.NeuronStore, burst uint64, opts DynamicsOptions) (*DynamicsResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("neural dynamics: %w", err)
	}
	if b.capacity == 0 {
		b.configure(neurons.Capacity())
	}

	out := &DynamicsResult{
		Fired:           fire.NewQueue(),
		FiredPotentials: make(map[neural.NeuronID]float32),
	}

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

	// Memory neurons and refractory bookkeeping run host-side; the device
	// handles the integrate/fire arithmetic for the rest.
	n := 0
	for _, id := range fcl.SortedIDs() {
		if !valid[id] {
			continue
		}
		out.Processed++
		contrib, _ := fcl.Get(id)

		if kinds[id] == neural.KindMemory {
			out.Fired.Append(id)
			out.MemoryFired = append(out.MemoryFired, id)
			out.FiredPotentials[id] = potentials[id] + contrib
			decay := opts.MemoryDecay[areas[id]]
			potentials[id] = codec.Quantize(potentials[id] * (1 - decay))
			countdowns[id] = periods[id]
			continue
		}
		if countdowns[id] > 0 {
			countdowns[id]--
			if countdowns[id] == 0 && limits[id] > 0 && counts[id] >= limits[id] {
				counts[id] = 0
			}
			out.InRefractory++
			continue
		}

		b.records[n] = gpuNeuron{
			Contrib:        contrib,
			Potential:      potentials[id],
			Threshold:      thresholds[id],
			ThresholdLimit: thresholdLims[id],
			Leak:           leaks[id],
			Resting:        restings[id],
			Excitability:   excitabilities[id],
			ID:             uint32(id),
			Period:         uint32(periods[id]),
			Count:          uint32(counts[id]),
			Limit:          uint32(limits[id]),
			Snooze:         uint32(snoozes[id]),
		}
		n++
	}

	if n == 0 {
		return out, nil
	}

	pars := gpuParams{
		BurstLo: uint32(burst),
		BurstHi: uint32(burst >> 32),
		N:       uint32(n),
	}

	vars := b.sy.Vars()
	pvl, err := vars.SetMap[0].Vars[0].Vals.ValByIdxTry(0)
	if err != nil {
		return nil, fmt.Errorf("gpu params val: %w", err)
	}
	pvl.CopyFromBytes(unsafe.Pointer(&pars))
	dvl, err := vars.SetMap[1].Vars[0].Vals.ValByIdxTry(0)
	if err != nil {
		return nil, fmt.Errorf("gpu neurons val: %w", err)
	}
	dvl.CopyFromBytes(unsafe.Pointer(&b.records[0]))

	b.sy.Mem.SyncToGPU()
	vars.BindDynValIdx(0, "Params", 0)
	vars.BindDynValIdx(1, "Neurons", 0)
	b.sy.CmdResetBindVars(b.sy.CmdPool.Buff, 0)
	b.pl.RunComputeWait(b.sy.CmdPool.Buff, n, 1, 1)
	b.sy.Mem.SyncValIdxFmGPU(1, "Neurons", 0)
	dvl.CopyToBytes(unsafe.Pointer(&b.records[0]))

	// Apply device results to the store in record order (ids ascending), so
	// the fire queue matches the CPU backend's ordering.
	for i := 0; i < n; i++ {
		rec := &b.records[i]
		id := neural.NeuronID(rec.ID)
		potentials[id] = codec.Quantize(rec.Potential)
		countdowns[id] = uint16(rec.Countdown)
		counts[id] = uint16(rec.Count)
		if rec.Fired != 0 {
			out.Fired.Append(id)
			out.FiredPotentials[id] = rec.PrePotential
		}
	}
	return out, nil
}

func (b *GPUBackend) Propagate(ctx context.Context, fired []neural.NeuronID, neurons *store.NeuronStore, synapses *store.SynapseStore, next *fire.CandidateList, opts PropagationOptions) (int, error) {
	return b.cpu.Propagate(ctx, fired, neurons, synapses, next, opts)
}
