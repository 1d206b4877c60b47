//go:build !gpu

package backend

import "fmt"

// The GPU backend requires building with -tags gpu (and a Vulkan-capable
// device at runtime). Default builds always select CPU.

func gpuAvailable() bool { return false }

func newGPUBackend(cfg Config) (ComputeBackend, error) {
	return nil, fmt.Errorf("gpu backend not compiled in: %w (build with -tags gpu)", ErrBackendUnavailable)
}
