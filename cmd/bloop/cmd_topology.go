package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/burst-loop/internal/topology"
)

func newTopologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Manage the SQLite topology store",
	}
	cmd.PersistentFlags().String("path", "", "Topology database path (overrides config)")

	cmd.AddCommand(
		newTopologyInitCmd(),
		newTopologyGenerateCmd(),
		newTopologyInfoCmd(),
	)
	return cmd
}

// topologyPath resolves the database path from the flag or config.
func topologyPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("path"); path != "" {
		return path, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Topology.Path == "" {
		return "", fmt.Errorf("no topology path: set --path or topology.path in config")
	}
	return cfg.Topology.Path, nil
}

func newTopologyInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty topology database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := topologyPath(cmd)
			if err != nil {
				return err
			}
			ts, err := topology.Open(path)
			if err != nil {
				return err
			}
			defer ts.Close()

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{"path": path})
			} else {
				fmt.Printf("initialized topology database at %s\n", path)
			}
			return nil
		},
	}
}

func newTopologyGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a seeded random network into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := topologyPath(cmd)
			if err != nil {
				return err
			}
			areas, _ := cmd.Flags().GetInt("areas")
			neuronsPer, _ := cmd.Flags().GetInt("neurons")
			synapsesPer, _ := cmd.Flags().GetInt("synapses")
			seed, _ := cmd.Flags().GetInt64("seed")
			threshold, _ := cmd.Flags().GetFloat32("threshold")
			leak, _ := cmd.Flags().GetFloat32("leak")

			ts, err := topology.Open(path)
			if err != nil {
				return err
			}
			defer ts.Close()

			neurons, synapses, err := topology.Generate(cmd.Context(), ts, topology.GenerateConfig{
				Areas:             areas,
				NeuronsPerArea:    neuronsPer,
				SynapsesPerNeuron: synapsesPer,
				Seed:              seed,
				Threshold:         threshold,
				Leak:              leak,
			})
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"path":     path,
					"neurons":  neurons,
					"synapses": synapses,
				})
			} else {
				fmt.Printf("generated %d neurons, %d synapses into %s\n", neurons, synapses, path)
			}
			return nil
		},
	}

	cmd.Flags().Int("areas", 4, "Number of cortical areas")
	cmd.Flags().Int("neurons", 1000, "Neurons per area")
	cmd.Flags().Int("synapses", 10, "Synapses per neuron")
	cmd.Flags().Int64("seed", 42, "Random seed")
	cmd.Flags().Float32("threshold", 10, "Firing threshold for generated neurons")
	cmd.Flags().Float32("leak", 0.1, "Leak coefficient for generated neurons")
	return cmd
}

func newTopologyInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show stored network counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := topologyPath(cmd)
			if err != nil {
				return err
			}
			ts, err := topology.Open(path)
			if err != nil {
				return err
			}
			defer ts.Close()

			neurons, synapses, err := ts.Counts(cmd.Context())
			if err != nil {
				return err
			}
			areas, err := ts.Areas(cmd.Context())
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"path":     path,
					"areas":    len(areas),
					"neurons":  neurons,
					"synapses": synapses,
				})
			} else {
				fmt.Printf("%s: %d areas, %d neurons, %d synapses\n", path, len(areas), neurons, synapses)
			}
			return nil
		},
	}
}
