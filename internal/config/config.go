// Package config provides unified configuration loading for bloop.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/burst-loop/internal/backend"
	"github.com/nvandessel/burst-loop/internal/engine"
	"github.com/nvandessel/burst-loop/internal/neural"
)

// BloopConfig contains all bloop configuration settings.
type BloopConfig struct {
	// Engine contains the neural engine settings.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Backend contains compute backend selection settings.
	Backend BackendConfig `json:"backend" yaml:"backend"`

	// Runner contains burst loop timing settings.
	Runner RunnerConfig `json:"runner" yaml:"runner"`

	// Topology contains the network topology store settings.
	Topology TopologyConfig `json:"topology" yaml:"topology"`

	// Logging contains settings for operational and burst trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// EngineConfig sizes and parameterizes the neural engine.
type EngineConfig struct {
	// Precision selects the membrane potential representation: "f32"
	// (default) or "int8".
	Precision string `json:"precision" yaml:"precision"`

	// Int8RangeMin/Max bound the representable potential range when
	// precision is "int8".
	Int8RangeMin float32 `json:"int8_range_min" yaml:"int8_range_min"`
	Int8RangeMax float32 `json:"int8_range_max" yaml:"int8_range_max"`

	// NeuronCapacity and SynapseCapacity fix the store sizes for the
	// lifetime of the instance.
	NeuronCapacity  int `json:"neuron_capacity" yaml:"neuron_capacity"`
	SynapseCapacity int `json:"synapse_capacity" yaml:"synapse_capacity"`
}

// BackendConfig configures compute backend selection.
type BackendConfig struct {
	// Mode selects the backend: "auto" (default), "cpu", or "gpu".
	Mode string `json:"mode" yaml:"mode"`

	// HybridEnabled allows auto mode to pick the GPU for large networks.
	HybridEnabled bool `json:"hybrid_enabled" yaml:"hybrid_enabled"`

	// GPUNeuronThreshold and GPUSynapseThreshold are the auto-mode scale
	// cutoffs above which the GPU is preferred.
	GPUNeuronThreshold  int `json:"gpu_neuron_threshold" yaml:"gpu_neuron_threshold"`
	GPUSynapseThreshold int `json:"gpu_synapse_threshold" yaml:"gpu_synapse_threshold"`

	// Workers is the CPU worker count. Zero means GOMAXPROCS.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`

	// ShaderPath is the compiled dynamics shader (.spv) for the GPU
	// backend. Only used when the gpu build tag is active.
	ShaderPath string `json:"shader_path,omitempty" yaml:"shader_path,omitempty"`
}

// RunnerConfig configures the autonomous burst loop.
type RunnerConfig struct {
	// FrequencyHz is the target burst rate. Zero means free-running.
	FrequencyHz float64 `json:"frequency_hz" yaml:"frequency_hz"`

	// MaxBursts stops the loop after this many bursts. Zero means run
	// until stopped.
	MaxBursts uint64 `json:"max_bursts,omitempty" yaml:"max_bursts,omitempty"`
}

// TopologyConfig configures the SQLite topology store.
type TopologyConfig struct {
	// Path is the SQLite database file holding the network topology.
	// Empty means no persistent topology.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoggingConfig configures bloop's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables burst trace logging to .bloop/bursts.jsonl.
	// "trace" additionally logs every burst's summary.
	Level string `json:"level" yaml:"level"`
}

// Default returns a BloopConfig with sensible defaults.
func Default() *BloopConfig {
	eng := engine.DefaultConfig()
	be := backend.DefaultConfig()
	return &BloopConfig{
		Engine: EngineConfig{
			Precision:       string(eng.Precision),
			Int8RangeMin:    eng.Int8RangeMin,
			Int8RangeMax:    eng.Int8RangeMax,
			NeuronCapacity:  eng.NeuronCapacity,
			SynapseCapacity: eng.SynapseCapacity,
		},
		Backend: BackendConfig{
			Mode:                be.Mode,
			HybridEnabled:       be.HybridEnabled,
			GPUNeuronThreshold:  be.GPUNeuronThreshold,
			GPUSynapseThreshold: be.GPUSynapseThreshold,
		},
		Runner: RunnerConfig{
			FrequencyHz: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.bloop/config.yaml -> environment variables
func Load() (*BloopConfig, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".bloop", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*BloopConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *BloopConfig) Validate() error {
	if err := c.EngineConfig().Validate(); err != nil {
		return err
	}
	if err := c.RunnerConfig().Validate(); err != nil {
		return err
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// EngineConfig converts the file representation to an engine.Config.
func (c *BloopConfig) EngineConfig() engine.Config {
	return engine.Config{
		Precision:       neural.Precision(c.Engine.Precision),
		Int8RangeMin:    c.Engine.Int8RangeMin,
		Int8RangeMax:    c.Engine.Int8RangeMax,
		NeuronCapacity:  c.Engine.NeuronCapacity,
		SynapseCapacity: c.Engine.SynapseCapacity,
		Backend: backend.Config{
			Mode:                c.Backend.Mode,
			HybridEnabled:       c.Backend.HybridEnabled,
			GPUNeuronThreshold:  c.Backend.GPUNeuronThreshold,
			GPUSynapseThreshold: c.Backend.GPUSynapseThreshold,
			Workers:             c.Backend.Workers,
			ShaderPath:          c.Backend.ShaderPath,
		},
	}
}

// RunnerConfig converts the file representation to an engine.RunnerConfig.
func (c *BloopConfig) RunnerConfig() engine.RunnerConfig {
	return engine.RunnerConfig{
		FrequencyHz: c.Runner.FrequencyHz,
		MaxBursts:   c.Runner.MaxBursts,
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *BloopConfig) {
	if v := os.Getenv("BLOOP_PRECISION"); v != "" {
		config.Engine.Precision = v
	}

	if v := os.Getenv("BLOOP_NEURON_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.NeuronCapacity = n
		}
	}
	if v := os.Getenv("BLOOP_SYNAPSE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.SynapseCapacity = n
		}
	}

	if v := os.Getenv("BLOOP_BACKEND"); v != "" {
		config.Backend.Mode = v
	}
	if v := os.Getenv("BLOOP_SHADER_PATH"); v != "" {
		config.Backend.ShaderPath = v
	}
	if v := os.Getenv("BLOOP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Backend.Workers = n
		}
	}

	if v := os.Getenv("BLOOP_FREQUENCY_HZ"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Runner.FrequencyHz = f
		}
	}

	if v := os.Getenv("BLOOP_TOPOLOGY_PATH"); v != "" {
		config.Topology.Path = v
	}

	if v := os.Getenv("BLOOP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
