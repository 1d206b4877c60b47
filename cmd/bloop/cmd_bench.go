package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/burst-loop/internal/engine"
	"github.com/nvandessel/burst-loop/internal/logging"
	"github.com/nvandessel/burst-loop/internal/topology"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark burst throughput on a generated network",
		Long: `Generates a seeded random network, injects a stimulus, and measures
free-running burst throughput.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			areas, _ := cmd.Flags().GetInt("areas")
			neuronsPer, _ := cmd.Flags().GetInt("neurons")
			synapsesPer, _ := cmd.Flags().GetInt("synapses")
			seed, _ := cmd.Flags().GetInt64("seed")
			bursts, _ := cmd.Flags().GetUint64("bursts")

			gen := topology.GenerateConfig{
				Areas:             areas,
				NeuronsPerArea:    neuronsPer,
				SynapsesPerNeuron: synapsesPer,
				Seed:              seed,
				Threshold:         10,
				Leak:              0.1,
			}
			if err := gen.Validate(); err != nil {
				return err
			}

			total := areas * neuronsPer
			ecfg := cfg.EngineConfig()
			if ecfg.NeuronCapacity < total {
				ecfg.NeuronCapacity = total
			}
			if ecfg.SynapseCapacity < total*synapsesPer {
				ecfg.SynapseCapacity = total * synapsesPer
			}

			log := logging.NewLogger(cfg.Logging.Level, os.Stderr)
			npu, err := engine.New(ecfg, log)
			if err != nil {
				return err
			}

			// The generator writes through the topology store so the bench
			// exercises the same load path as a real deployment.
			ts, err := topology.Open(filepath.Join(os.TempDir(),
				fmt.Sprintf("bloop-bench-%d.db", time.Now().UnixNano())))
			if err != nil {
				return err
			}
			defer ts.Close()

			if _, _, err := topology.Generate(cmd.Context(), ts, gen); err != nil {
				return err
			}
			neurons, synapses, err := ts.LoadInto(cmd.Context(), npu)
			if err != nil {
				return err
			}
			log.Info("bench network ready", "neurons", neurons, "synapses", synapses)

			// Stimulate the first neuron so the network has activity.
			if err := npu.InjectPotential(0, 1000); err != nil {
				return err
			}

			runner, err := engine.NewRunner(npu, engine.RunnerConfig{MaxBursts: bursts},
				logging.NewLogger("info", io.Discard))
			if err != nil {
				return err
			}

			start := time.Now()
			if err := runner.Start(cmd.Context()); err != nil {
				return err
			}
			for runner.Running() {
				time.Sleep(time.Millisecond)
			}
			elapsed := time.Since(start)

			name, _ := npu.Backend()
			perSec := float64(npu.BurstCount()) / elapsed.Seconds()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"neurons":        neurons,
					"synapses":       synapses,
					"bursts":         npu.BurstCount(),
					"elapsed_ms":     elapsed.Milliseconds(),
					"bursts_per_sec": perSec,
					"backend":        name,
				})
			} else {
				fmt.Printf("%d neurons, %d synapses: %d bursts in %v (%.0f bursts/sec) on %s\n",
					neurons, synapses, npu.BurstCount(), elapsed.Round(time.Millisecond), perSec, name)
			}
			return nil
		},
	}

	cmd.Flags().Int("areas", 4, "Number of cortical areas")
	cmd.Flags().Int("neurons", 1000, "Neurons per area")
	cmd.Flags().Int("synapses", 10, "Synapses per neuron")
	cmd.Flags().Int64("seed", 42, "Topology random seed")
	cmd.Flags().Uint64("bursts", 1000, "Bursts to run")
	return cmd
}
