// Package backend provides the compute strategies that execute the two hot
// phases of a burst (neural dynamics and synaptic propagation) on CPU or
// GPU behind one interface. The backend is chosen once, at construction
// time, as a pure function of network size and configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nvandessel/burst-loop/internal/fire"
	"github.com/nvandessel/burst-loop/internal/neural"
	"github.com/nvandessel/burst-loop/internal/store"
)

// ErrBackendUnavailable indicates the GPU backend was requested but cannot
// be used. It is always recovered by falling back to CPU; it is never fatal.
var ErrBackendUnavailable = errors.New("backend unavailable")

// Kind is the closed set of backend strategies.
type Kind int

const (
	KindCPU Kind = iota
	KindGPU
)

func (k Kind) String() string {
	if k == KindGPU {
		return "gpu"
	}
	return "cpu"
}

// Config controls backend selection and execution.
type Config struct {
	// Mode is "auto", "cpu", or "gpu".
	Mode string `json:"mode" yaml:"mode"`

	// HybridEnabled allows auto mode to pick the GPU for large networks.
	HybridEnabled bool `json:"hybrid_enabled" yaml:"hybrid_enabled"`

	// GPUNeuronThreshold is the neuron count at which auto mode prefers GPU.
	GPUNeuronThreshold int `json:"gpu_neuron_threshold" yaml:"gpu_neuron_threshold"`

	// GPUSynapseThreshold is the synapse count at which auto mode prefers GPU.
	GPUSynapseThreshold int `json:"gpu_synapse_threshold" yaml:"gpu_synapse_threshold"`

	// Workers bounds CPU data parallelism. 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`

	// ShaderPath locates the compiled dynamics shader for the GPU backend.
	ShaderPath string `json:"shader_path,omitempty" yaml:"shader_path,omitempty"`
}

// DefaultConfig returns auto selection with the standard size thresholds.
func DefaultConfig() Config {
	return Config{
		Mode:                "auto",
		HybridEnabled:       true,
		GPUNeuronThreshold:  500_000,
		GPUSynapseThreshold: 50_000_000,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Mode {
	case "", "auto", "cpu", "gpu":
	default:
		return fmt.Errorf("invalid backend mode %q (valid: auto, cpu, gpu)", c.Mode)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// Decision records which backend was selected and why, including the
// recovered error when a GPU request fell back to CPU.
type Decision struct {
	Kind        Kind
	Reason      string
	FallbackErr error
}

// DynamicsOptions carries per-area parameters into the dynamics phase.
type DynamicsOptions struct {
	// MemoryDecay maps a memory area to its per-burst potential decay
	// fraction in [0, 1].
	MemoryDecay map[neural.AreaID]float32
}

// DynamicsResult is the outcome of one dynamics phase.
type DynamicsResult struct {
	Fired        *fire.Queue
	Processed    int
	InRefractory int

	// MemoryFired lists memory neurons that force-fired this burst, for
	// replay scheduling.
	MemoryFired []neural.NeuronID

	// FiredPotentials captures each fired neuron's pre-reset membrane
	// potential, consumed by the MP-driven propagation mode.
	FiredPotentials map[neural.NeuronID]float32
}

// PropagationOptions carries per-area parameters into the propagation phase.
type PropagationOptions struct {
	// PSPUniform areas divide each contribution by the source's live
	// fan-out, distributing a fixed amount of potential across targets.
	PSPUniform map[neural.AreaID]bool

	// MPDriven areas scale each contribution by the source's pre-reset
	// membrane potential at fire time.
	MPDriven map[neural.AreaID]bool

	// FiredPotentials is the capture from the preceding dynamics phase.
	FiredPotentials map[neural.NeuronID]float32
}

// ComputeBackend executes the two hot phases of a burst. Both operations
// block until results are fully materialized, preserving burst-to-burst
// ordering regardless of any asynchronous device work underneath.
type ComputeBackend interface {
	Name() string

	// Dynamics processes exactly the neurons present in the candidate list
	// (neurons with no incoming contribution this burst are not touched)
	// and returns the fired set.
	Dynamics(ctx context.Context, fcl *fire.CandidateList, neurons *store.NeuronStore, burst uint64, opts DynamicsOptions) (*DynamicsResult, error)

	// Propagate accumulates the contributions of every valid synapse whose
	// source fired into next, the candidate list of the following burst.
	// Returns the number of contributions applied.
	Propagate(ctx context.Context, fired []neural.NeuronID, neurons *store.NeuronStore, synapses *store.SynapseStore, next *fire.CandidateList, opts PropagationOptions) (int, error)
}

// Select picks a backend kind from network size and configuration. It is a
// pure function; GPU availability enters as the available argument.
func Select(neuronCount, synapseCount int, cfg Config, available bool) Decision {
	if cfg.GPUNeuronThreshold == 0 {
		cfg.GPUNeuronThreshold = 500_000
	}
	if cfg.GPUSynapseThreshold == 0 {
		cfg.GPUSynapseThreshold = 50_000_000
	}

	switch cfg.Mode {
	case "cpu", "":
		return Decision{Kind: KindCPU, Reason: "forced by config"}
	case "gpu":
		if !available {
			return Decision{
				Kind:        KindCPU,
				Reason:      "gpu requested but unavailable, falling back to cpu",
				FallbackErr: ErrBackendUnavailable,
			}
		}
		return Decision{Kind: KindGPU, Reason: "forced by config"}
	}

	// auto
	if !cfg.HybridEnabled {
		return Decision{Kind: KindCPU, Reason: "hybrid selection disabled"}
	}
	large := neuronCount >= cfg.GPUNeuronThreshold || synapseCount >= cfg.GPUSynapseThreshold
	if !large {
		return Decision{Kind: KindCPU, Reason: fmt.Sprintf("network below gpu thresholds (%d neurons, %d synapses)", neuronCount, synapseCount)}
	}
	if !available {
		return Decision{
			Kind:        KindCPU,
			Reason:      "network above gpu thresholds but gpu unavailable",
			FallbackErr: ErrBackendUnavailable,
		}
	}
	return Decision{Kind: KindGPU, Reason: fmt.Sprintf("network above gpu thresholds (%d neurons, %d synapses)", neuronCount, synapseCount)}
}

// New constructs the backend for a network. A GPU decision that fails device
// initialization degrades to CPU; the returned decision records the
// recovered error as a diagnostic.
func New(neuronCount, synapseCount int, cfg Config, log *slog.Logger) (ComputeBackend, Decision) {
	decision := Select(neuronCount, synapseCount, cfg, gpuAvailable())
	if decision.FallbackErr != nil {
		log.Warn("backend fallback", "reason", decision.Reason, "err", decision.FallbackErr)
	}

	if decision.Kind == KindGPU {
		b, err := newGPUBackend(cfg)
		if err != nil {
			decision = Decision{
				Kind:        KindCPU,
				Reason:      "gpu initialization failed, falling back to cpu",
				FallbackErr: fmt.Errorf("%w: %v", ErrBackendUnavailable, err),
			}
			log.Warn("backend fallback", "reason", decision.Reason, "err", err)
		} else {
			log.Info("backend selected", "backend", b.Name(), "reason", decision.Reason)
			return b, decision
		}
	}

	b := NewCPUBackend(cfg.Workers)
	log.Info("backend selected", "backend", b.Name(), "reason", decision.Reason)
	return b, decision
}
