package topology

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/nvandessel/burst-loop/internal/neural"
	"github.com/nvandessel/burst-loop/internal/store"
)

// GenerateConfig describes a seeded random benchmark network.
type GenerateConfig struct {
	Areas             int
	NeuronsPerArea    int
	SynapsesPerNeuron int
	Seed              int64

	// Threshold and Leak apply to every generated neuron.
	Threshold float32
	Leak      float32
}

// Validate checks the generator configuration.
func (c GenerateConfig) Validate() error {
	if c.Areas <= 0 {
		return fmt.Errorf("areas must be positive, got %d", c.Areas)
	}
	if c.NeuronsPerArea <= 0 {
		return fmt.Errorf("neurons per area must be positive, got %d", c.NeuronsPerArea)
	}
	if c.SynapsesPerNeuron < 0 {
		return fmt.Errorf("synapses per neuron must be non-negative, got %d", c.SynapsesPerNeuron)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %g", c.Threshold)
	}
	return nil
}

// Generate writes a seeded random network into the store. The same seed and
// shape always produce the same topology.
func Generate(ctx context.Context, s *Store, cfg GenerateConfig) (neurons, synapses int, err error) {
	if err := cfg.Validate(); err != nil {
		return 0, 0, fmt.Errorf("generate config: %w", err)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	total := cfg.Areas * cfg.NeuronsPerArea
	nrows := make([]Neuron, 0, total)
	for area := 0; area < cfg.Areas; area++ {
		if err := s.SaveArea(ctx, Area{
			ID:   neural.AreaID(area + 1),
			Name: fmt.Sprintf("area-%d", area+1),
		}); err != nil {
			return 0, 0, err
		}
		for i := 0; i < cfg.NeuronsPerArea; i++ {
			id := int64(area*cfg.NeuronsPerArea + i)
			nrows = append(nrows, Neuron{
				ID:    id,
				Area:  neural.AreaID(area + 1),
				Coord: neural.XYZ{X: uint32(i), Y: uint32(area), Z: 0},
				Params: store.NeuronParams{
					Threshold:    cfg.Threshold,
					Leak:         cfg.Leak,
					Excitability: 1.0,
					Area:         neural.AreaID(area + 1),
					Coord:        neural.XYZ{X: uint32(i), Y: uint32(area), Z: 0},
				},
			})
		}
	}
	if err := s.InsertNeurons(ctx, nrows); err != nil {
		return 0, 0, err
	}

	srows := make([]Synapse, 0, total*cfg.SynapsesPerNeuron)
	for src := 0; src < total; src++ {
		for j := 0; j < cfg.SynapsesPerNeuron; j++ {
			tgt := rng.Intn(total)
			typ := neural.Excitatory
			// Roughly 1 in 5 inhibitory, matching a sparse inhibitory
			// population.
			if rng.Intn(5) == 0 {
				typ = neural.Inhibitory
			}
			srows = append(srows, Synapse{
				Source: int64(src),
				Target: int64(tgt),
				Weight: uint8(1 + rng.Intn(255)),
				PSP:    uint8(1 + rng.Intn(255)),
				Type:   typ,
			})
		}
	}
	if err := s.InsertSynapses(ctx, srows); err != nil {
		return 0, 0, err
	}

	return len(nrows), len(srows), nil
}
