package neural

// LIFParams holds the leaky-integrate-and-fire parameters shared by a
// population of neurons.
type LIFParams struct {
	// LeakCoefficient is the fraction of (V - V_rest) lost per burst. Range [0, 1].
	LeakCoefficient float32

	// RestingPotential is the baseline membrane potential with no input.
	RestingPotential float32
}

// DefaultLIFParams returns the standard LIF parameters: 10% leak per burst
// toward a zero baseline.
func DefaultLIFParams() LIFParams {
	return LIFParams{
		LeakCoefficient:  0.1,
		RestingPotential: 0.0,
	}
}

// Validate checks the parameters are in range.
func (p LIFParams) Validate() error {
	if p.LeakCoefficient < 0 || p.LeakCoefficient > 1 {
		return errLeakRange
	}
	return nil
}

// Contribution computes the synaptic contribution of a single active synapse.
//
// Weight and psp are raw unsigned 8-bit magnitudes (0-255). They are cast
// directly to float32 with NO normalization; the result legitimately ranges
// -65025 to +65025. This exact arithmetic is a wire contract shared with
// agents and visualizers and must not be changed.
func Contribution(weight, psp uint8, t SynapseType) float32 {
	return t.Sign() * float32(weight) * float32(psp)
}

// UpdatePotential applies one burst of leaky integration:
//
//	V(t+1) = V(t) + I_syn - leak * (V(t) - V_rest)
func UpdatePotential(current, synapticInput float32, p LIFParams) float32 {
	return current + synapticInput - p.LeakCoefficient*(current-p.RestingPotential)
}

// ShouldFire reports whether a neuron fires: at or above threshold and not
// in its refractory period.
func ShouldFire(potential, threshold float32, refractoryCountdown uint16) bool {
	return refractoryCountdown == 0 && potential >= threshold
}

// InFiringWindow reports whether the potential is inside the firing window
// [threshold, thresholdLimit]. A zero limit means the window is unbounded
// above.
func InFiringWindow(potential, threshold, thresholdLimit float32) bool {
	if potential < threshold {
		return false
	}
	return thresholdLimit == 0 || potential <= thresholdLimit
}

// ExcitabilityGate decides probabilistic firing for a neuron whose
// excitability is strictly between 0 and 1. The decision is a pure function
// of (id, burst) so identical runs replay identically across backends and
// worker counts. Excitability >= 0.999 always fires; <= 0 never fires.
func ExcitabilityGate(excitability float32, id NeuronID, burst uint64) bool {
	if excitability >= 0.999 {
		return true
	}
	if excitability <= 0 {
		return false
	}
	return hashUnit(id, burst) < float64(excitability)
}

// hashUnit maps (id, burst) to [0, 1) via a splitmix64 finalizer.
func hashUnit(id NeuronID, burst uint64) float64 {
	x := uint64(id)*2654435761 ^ burst*2246822519
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return float64(x>>11) / float64(1<<53)
}
