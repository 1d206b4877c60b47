package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/burst-loop/internal/engine"
	"github.com/nvandessel/burst-loop/internal/logging"
	"github.com/nvandessel/burst-loop/internal/topology"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the burst loop until interrupted",
		Long: `Loads the topology, starts the burst loop at the configured frequency,
and runs until SIGINT/SIGTERM or the configured max burst count.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetFloat64("frequency"); cmd.Flags().Changed("frequency") {
				cfg.Runner.FrequencyHz = v
			}
			if v, _ := cmd.Flags().GetUint64("max-bursts"); cmd.Flags().Changed("max-bursts") {
				cfg.Runner.MaxBursts = v
			}

			log := logging.NewLogger(cfg.Logging.Level, os.Stderr)
			traces := logging.NewTraceLogger(".bloop", cfg.Logging.Level)
			defer traces.Close()

			npu, err := engine.New(cfg.EngineConfig(), log)
			if err != nil {
				return err
			}
			name, decision := npu.Backend()
			log.Info("engine ready", "backend", name, "reason", decision.Reason)
			if decision.FallbackErr != nil {
				log.Warn("gpu unavailable, using cpu", "err", decision.FallbackErr)
			}

			if cfg.Topology.Path != "" {
				ts, err := topology.Open(cfg.Topology.Path)
				if err != nil {
					return err
				}
				defer ts.Close()
				neurons, synapses, err := ts.LoadInto(cmd.Context(), npu)
				if err != nil {
					return fmt.Errorf("loading topology: %w", err)
				}
				log.Info("topology loaded", "path", cfg.Topology.Path,
					"neurons", neurons, "synapses", synapses)
			}

			runner, err := engine.NewRunner(npu, cfg.RunnerConfig(), log)
			if err != nil {
				return err
			}
			if err := runner.Start(cmd.Context()); err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			notifySignals(sig)
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()

			running := true
			for running {
				select {
				case <-sig:
					log.Info("shutdown signal received")
					running = false
				case <-ticker.C:
					if !runner.Running() {
						running = false
					}
				}
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := runner.Stop(stopCtx); err != nil && !errors.Is(err, engine.ErrNotRunning) {
				return err
			}

			traces.Log(map[string]any{
				"event":  "run_complete",
				"bursts": npu.BurstCount(),
			})
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"bursts":  npu.BurstCount(),
					"backend": name,
				})
			} else {
				fmt.Printf("completed %d bursts on %s\n", npu.BurstCount(), name)
			}
			return nil
		},
	}

	cmd.Flags().Float64("frequency", 0, "Burst frequency in Hz (overrides config)")
	cmd.Flags().Uint64("max-bursts", 0, "Stop after this many bursts (overrides config)")
	return cmd
}
