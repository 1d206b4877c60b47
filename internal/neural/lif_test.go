package neural

import (
	"testing"

	"github.com/chewxy/math32"
)

// difTol is the tolerance for float32 comparisons.
const difTol = float32(1.0e-6)

func TestContribution(t *testing.T) {
	tests := []struct {
		name   string
		weight uint8
		psp    uint8
		typ    SynapseType
		want   float32
	}{
		{"max excitatory", 255, 255, Excitatory, 65025.0},
		{"max inhibitory", 255, 255, Inhibitory, -65025.0},
		{"half weight excitatory", 128, 255, Excitatory, 32640.0},
		{"small excitatory", 2, 3, Excitatory, 6.0},
		{"small inhibitory", 2, 3, Inhibitory, -6.0},
		{"zero weight", 0, 255, Excitatory, 0.0},
		{"zero psp", 255, 0, Inhibitory, 0.0},
		{"unit", 1, 1, Excitatory, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Contribution(tt.weight, tt.psp, tt.typ)
			if got != tt.want {
				t.Errorf("Contribution(%d, %d, %v) = %v, want %v",
					tt.weight, tt.psp, tt.typ, got, tt.want)
			}
		})
	}
}

// The contribution formula is exact integer arithmetic in float32; verify it
// is bit-for-bit the raw product over a sweep, not merely close.
func TestContributionExactSweep(t *testing.T) {
	for w := 0; w <= 255; w += 17 {
		for p := 0; p <= 255; p += 17 {
			want := float32(w) * float32(p)
			if got := Contribution(uint8(w), uint8(p), Excitatory); got != want {
				t.Fatalf("Contribution(%d, %d, Excitatory) = %v, want %v", w, p, got, want)
			}
			if got := Contribution(uint8(w), uint8(p), Inhibitory); got != -want {
				t.Fatalf("Contribution(%d, %d, Inhibitory) = %v, want %v", w, p, got, -want)
			}
		}
	}
}

func TestUpdatePotential(t *testing.T) {
	p := LIFParams{LeakCoefficient: 0.1, RestingPotential: 0.0}

	// 0.5 + 0.3 - 0.1*(0.5-0) = 0.75
	got := UpdatePotential(0.5, 0.3, p)
	if math32.Abs(got-0.75) > difTol {
		t.Errorf("UpdatePotential = %v, want 0.75", got)
	}

	// No leak passes input straight through.
	got = UpdatePotential(1.0, 2.0, LIFParams{LeakCoefficient: 0, RestingPotential: 0})
	if got != 3.0 {
		t.Errorf("UpdatePotential with zero leak = %v, want 3.0", got)
	}

	// Full leak snaps to resting plus input.
	got = UpdatePotential(5.0, 0.0, LIFParams{LeakCoefficient: 1.0, RestingPotential: -1.0})
	if math32.Abs(got-(-1.0)) > difTol {
		t.Errorf("UpdatePotential with full leak = %v, want -1.0", got)
	}
}

func TestShouldFire(t *testing.T) {
	tests := []struct {
		name       string
		potential  float32
		threshold  float32
		refractory uint16
		want       bool
	}{
		{"above threshold", 1.5, 1.0, 0, true},
		{"at threshold", 1.0, 1.0, 0, true},
		{"below threshold", 0.5, 1.0, 0, false},
		{"refractory blocks", 1.5, 1.0, 5, false},
		{"refractory blocks at threshold", 1.0, 1.0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldFire(tt.potential, tt.threshold, tt.refractory); got != tt.want {
				t.Errorf("ShouldFire(%v, %v, %d) = %v, want %v",
					tt.potential, tt.threshold, tt.refractory, got, tt.want)
			}
		})
	}
}

func TestInFiringWindow(t *testing.T) {
	tests := []struct {
		name      string
		potential float32
		threshold float32
		limit     float32
		want      bool
	}{
		{"inside window", 5, 1, 10, true},
		{"below threshold", 0.5, 1, 10, false},
		{"above limit", 11, 1, 10, false},
		{"at limit", 10, 1, 10, true},
		{"zero limit unbounded", 1e9, 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InFiringWindow(tt.potential, tt.threshold, tt.limit); got != tt.want {
				t.Errorf("InFiringWindow(%v, %v, %v) = %v, want %v",
					tt.potential, tt.threshold, tt.limit, got, tt.want)
			}
		})
	}
}

func TestExcitabilityGate(t *testing.T) {
	// Extremes are unconditional.
	if !ExcitabilityGate(1.0, 7, 42) {
		t.Error("excitability 1.0 must always fire")
	}
	if !ExcitabilityGate(0.999, 7, 42) {
		t.Error("excitability 0.999 must always fire")
	}
	if ExcitabilityGate(0.0, 7, 42) {
		t.Error("excitability 0.0 must never fire")
	}

	// The gate is deterministic in (id, burst).
	for burst := uint64(0); burst < 100; burst++ {
		a := ExcitabilityGate(0.5, 123, burst)
		b := ExcitabilityGate(0.5, 123, burst)
		if a != b {
			t.Fatalf("gate not deterministic at burst %d", burst)
		}
	}

	// Over many bursts the observed rate tracks the excitability roughly.
	fired := 0
	const n = 10000
	for burst := uint64(0); burst < n; burst++ {
		if ExcitabilityGate(0.3, 99, burst) {
			fired++
		}
	}
	rate := float64(fired) / n
	if rate < 0.25 || rate > 0.35 {
		t.Errorf("fire rate %v for excitability 0.3, want ~0.3", rate)
	}
}

func TestLIFParamsValidate(t *testing.T) {
	if err := DefaultLIFParams().Validate(); err != nil {
		t.Errorf("default params invalid: %v", err)
	}
	if err := (LIFParams{LeakCoefficient: 1.5}).Validate(); err == nil {
		t.Error("leak 1.5 should be invalid")
	}
	if err := (LIFParams{LeakCoefficient: -0.1}).Validate(); err == nil {
		t.Error("negative leak should be invalid")
	}
}
