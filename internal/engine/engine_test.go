package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/nvandessel/burst-loop/internal/logging"
	"github.com/nvandessel/burst-loop/internal/neural"
	"github.com/nvandessel/burst-loop/internal/replay"
	"github.com/nvandessel/burst-loop/internal/store"
)

func newNPU(t *testing.T) *NPU {
	t.Helper()
	cfg := DefaultConfig()
	cfg.NeuronCapacity = 64
	cfg.SynapseCapacity = 256
	cfg.Backend.Mode = "cpu"
	n, err := New(cfg, logging.NewLogger("info", io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func addNeuron(t *testing.T, n *NPU, p store.NeuronParams) neural.NeuronID {
	t.Helper()
	if p.Excitability == 0 {
		p.Excitability = 1.0
	}
	id, err := n.AddNeuron(p)
	if err != nil {
		t.Fatalf("AddNeuron: %v", err)
	}
	return id
}

func burst(t *testing.T, n *NPU) BurstSummary {
	t.Helper()
	s, err := n.ProcessBurst(context.Background())
	if err != nil {
		t.Fatalf("ProcessBurst: %v", err)
	}
	return s
}

func firedIDs(n *NPU) map[neural.NeuronID]bool {
	out := make(map[neural.NeuronID]bool)
	for _, f := range n.FiredNeurons() {
		out[f.ID] = true
	}
	return out
}

func TestBurstCountMonotonic(t *testing.T) {
	n := newNPU(t)
	for i := uint64(1); i <= 5; i++ {
		s := burst(t, n)
		if s.Burst != i {
			t.Fatalf("burst %d: summary.Burst = %d", i, s.Burst)
		}
		if n.BurstCount() != i {
			t.Fatalf("burst %d: BurstCount = %d", i, n.BurstCount())
		}
	}
}

func TestInjectionFiresNextBurst(t *testing.T) {
	n := newNPU(t)
	id := addNeuron(t, n, store.NeuronParams{Threshold: 10, Area: 1})

	if err := n.InjectPotential(id, 20); err != nil {
		t.Fatalf("InjectPotential: %v", err)
	}
	s := burst(t, n)
	if s.Fired != 1 {
		t.Fatalf("Fired = %d, want 1", s.Fired)
	}
	if !firedIDs(n)[id] {
		t.Error("injected neuron not in fired set")
	}

	// Nothing queued: next burst is quiet.
	s = burst(t, n)
	if s.Fired != 0 {
		t.Errorf("quiet burst Fired = %d, want 0", s.Fired)
	}
}

func TestInjectionInvalidNeuron(t *testing.T) {
	n := newNPU(t)
	if err := n.InjectPotential(99, 5); !errors.Is(err, store.ErrInvalidReference) {
		t.Errorf("InjectPotential(99) err = %v, want ErrInvalidReference", err)
	}
	if err := n.InjectSensory(1, []SensoryInjection{{Neuron: 99, Potential: 5}}); !errors.Is(err, store.ErrInvalidReference) {
		t.Errorf("InjectSensory err = %v, want ErrInvalidReference", err)
	}
}

func TestInjectSensoryAreaMismatch(t *testing.T) {
	n := newNPU(t)
	id := addNeuron(t, n, store.NeuronParams{Threshold: 10, Area: 1})
	if err := n.InjectSensory(2, []SensoryInjection{{Neuron: id, Potential: 20}}); !errors.Is(err, store.ErrInvalidReference) {
		t.Errorf("InjectSensory wrong area err = %v, want ErrInvalidReference", err)
	}

	if err := n.InjectSensory(1, []SensoryInjection{{Neuron: id, Potential: 20}}); err != nil {
		t.Fatalf("InjectSensory: %v", err)
	}
	burst(t, n)
	if !firedIDs(n)[id] {
		t.Error("sensory-injected neuron did not fire")
	}
}

func TestInjectMemoryNeuronRequiresMemoryKind(t *testing.T) {
	n := newNPU(t)
	standard := addNeuron(t, n, store.NeuronParams{Threshold: 10, Area: 1})
	if err := n.InjectMemoryNeuron(standard, 5); !errors.Is(err, store.ErrInvalidReference) {
		t.Errorf("InjectMemoryNeuron on standard neuron err = %v, want ErrInvalidReference", err)
	}
}

func TestPropagationAcrossBursts(t *testing.T) {
	n := newNPU(t)
	a := addNeuron(t, n, store.NeuronParams{Threshold: 10, Area: 1})
	b := addNeuron(t, n, store.NeuronParams{Threshold: 5, Area: 2})
	if _, err := n.AddSynapse(a, b, 2, 3, neural.Excitatory); err != nil {
		t.Fatalf("AddSynapse: %v", err)
	}

	if err := n.InjectPotential(a, 20); err != nil {
		t.Fatalf("InjectPotential: %v", err)
	}

	// Burst 1: a fires, contribution 2*3=6 lands in the next candidate list.
	s := burst(t, n)
	if !firedIDs(n)[a] {
		t.Fatal("a did not fire in burst 1")
	}
	if s.Contributions != 1 {
		t.Errorf("Contributions = %d, want 1", s.Contributions)
	}

	// Burst 2: b integrates 6 >= 5 and fires.
	burst(t, n)
	if !firedIDs(n)[b] {
		t.Error("b did not fire in burst 2")
	}
}

func TestFireLedgerRecordsWindow(t *testing.T) {
	n := newNPU(t)
	const area = neural.AreaID(7)
	id := addNeuron(t, n, store.NeuronParams{Threshold: 10, Area: area})
	if err := n.ConfigureFireLedgerWindow(area, 4); err != nil {
		t.Fatalf("ConfigureFireLedgerWindow: %v", err)
	}

	if err := n.InjectPotential(id, 20); err != nil {
		t.Fatalf("InjectPotential: %v", err)
	}
	burst(t, n) // fires
	burst(t, n) // quiet

	frames, err := n.FireLedgerWindow(area, 1, 2)
	if err != nil {
		t.Fatalf("FireLedgerWindow: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}
	if !frames[0].Bits.Contains(uint32(id)) {
		t.Error("burst 1 frame missing fired neuron")
	}
	if frames[1].Bits.Contains(uint32(id)) {
		t.Error("burst 2 frame should be empty")
	}
}

// A memory neuron fired at burst F replays its frame with offset k at burst
// F+1+k, exactly once.
func TestMemoryReplay(t *testing.T) {
	const (
		upstreamArea = neural.AreaID(1)
		twinArea     = neural.AreaID(2)
		memoryArea   = neural.AreaID(10)
	)
	for _, k := range []uint64{0, 1, 2} {
		n := newNPU(t)
		coord := neural.XYZ{X: 1, Y: 2, Z: 3}
		twin := addNeuron(t, n, store.NeuronParams{Threshold: 1000, Area: twinArea, Coord: coord})
		mem := addNeuron(t, n, store.NeuronParams{Kind: neural.KindMemory, Area: memoryArea})

		n.RegisterTwinMapping(replay.TwinMapping{
			MemoryArea:   memoryArea,
			UpstreamArea: upstreamArea,
			TwinArea:     twinArea,
			Scalar:       5,
		})
		n.RegisterReplayFrames(mem, []replay.Frame{
			{OffsetBursts: k, UpstreamArea: upstreamArea, Coords: []neural.XYZ{coord}},
		})

		if err := n.InjectMemoryNeuron(mem, 5); err != nil {
			t.Fatalf("k=%d: InjectMemoryNeuron: %v", k, err)
		}

		// Burst F: memory neuron force-fires and schedules the replay.
		burst(t, n)
		if !firedIDs(n)[mem] {
			t.Fatalf("k=%d: memory neuron did not fire", k)
		}

		// Bursts F+1 .. F+k: quiet for the twin.
		for i := uint64(0); i < k; i++ {
			burst(t, n)
			if firedIDs(n)[twin] {
				t.Fatalf("k=%d: twin fired %d bursts early", k, k-i)
			}
		}

		// Burst F+1+k: the twin fires despite its unreachable threshold.
		burst(t, n)
		if !firedIDs(n)[twin] {
			t.Fatalf("k=%d: twin did not fire at offset burst", k)
		}

		// Exactly once: the frame is consumed.
		burst(t, n)
		if firedIDs(n)[twin] {
			t.Fatalf("k=%d: twin replayed twice", k)
		}
	}
}

func TestCapacityThroughEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NeuronCapacity = 2
	cfg.SynapseCapacity = 4
	cfg.Backend.Mode = "cpu"
	n, err := New(cfg, logging.NewLogger("info", io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := n.AddNeuron(store.NeuronParams{Threshold: 1, Excitability: 1}); err != nil {
			t.Fatalf("AddNeuron %d: %v", i, err)
		}
	}
	if _, err := n.AddNeuron(store.NeuronParams{Threshold: 1, Excitability: 1}); !errors.Is(err, store.ErrCapacityExceeded) {
		t.Errorf("AddNeuron over capacity err = %v, want ErrCapacityExceeded", err)
	}
	neurons, _ := n.Counts()
	if neurons != 2 {
		t.Errorf("Counts neurons = %d, want 2", neurons)
	}
}

func TestSetAreaLeak(t *testing.T) {
	n := newNPU(t)
	id := addNeuron(t, n, store.NeuronParams{Threshold: 1000, Area: 3})
	addNeuron(t, n, store.NeuronParams{Threshold: 1000, Area: 4})

	if got := n.SetAreaLeak(3, 0.5); got != 1 {
		t.Fatalf("SetAreaLeak touched %d neurons, want 1", got)
	}

	// Leak applies only on candidate bursts. V = 0 + 8 - 0.5*0 = 8.
	if err := n.InjectPotential(id, 8); err != nil {
		t.Fatalf("InjectPotential: %v", err)
	}
	burst(t, n)
	if v, _ := n.Potential(id); v != 8 {
		t.Fatalf("potential after first burst = %g, want 8", v)
	}

	// Candidate again with zero input: V = 8 + 0 - 0.5*8 = 4.
	if err := n.InjectPotential(id, 0); err != nil {
		t.Fatalf("InjectPotential: %v", err)
	}
	burst(t, n)
	if v, _ := n.Potential(id); v != 4 {
		t.Fatalf("potential after leak burst = %g, want 4", v)
	}
}

func TestMPDrivenPropagation(t *testing.T) {
	n := newNPU(t)
	a := addNeuron(t, n, store.NeuronParams{Threshold: 10, Area: 1})
	b := addNeuron(t, n, store.NeuronParams{Threshold: 1000, Area: 2})
	if _, err := n.AddSynapse(a, b, 2, 3, neural.Excitatory); err != nil {
		t.Fatalf("AddSynapse: %v", err)
	}
	n.SetAreaMPDriven(1, true)

	// a fires with pre-reset potential 20; contribution 6 * 20 = 120 >= b's
	// threshold would be too strong, so keep b's threshold unreachable and
	// just check b became a candidate with the scaled value next burst.
	if err := n.InjectPotential(a, 20); err != nil {
		t.Fatalf("InjectPotential: %v", err)
	}
	burst(t, n)
	s := burst(t, n)
	if s.Processed != 1 {
		t.Errorf("Processed = %d, want 1 (b as candidate)", s.Processed)
	}
}

func TestBackendReported(t *testing.T) {
	n := newNPU(t)
	name, decision := n.Backend()
	if name == "" {
		t.Error("empty backend name")
	}
	if decision.Reason == "" {
		t.Error("empty decision reason")
	}
	s := burst(t, n)
	if s.Backend != name {
		t.Errorf("summary backend %q != %q", s.Backend, name)
	}
}

// Auto-mode selection runs once at construction, before any neurons exist,
// so the configured capacities are the sizes the decision is based on.
func TestBackendSelectedOnCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NeuronCapacity = 64
	cfg.SynapseCapacity = 256
	cfg.Backend.Mode = "auto"
	n, err := New(cfg, logging.NewLogger("info", io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, decision := n.Backend()
	if !strings.Contains(decision.Reason, "64 neurons") {
		t.Errorf("decision reason %q does not reflect the configured capacity", decision.Reason)
	}
}
