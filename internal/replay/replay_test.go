package replay

import (
	"errors"
	"testing"

	"github.com/nvandessel/burst-loop/internal/fire"
	"github.com/nvandessel/burst-loop/internal/neural"
)

func testMapping() TwinMapping {
	return TwinMapping{MemoryArea: 10, UpstreamArea: 1, TwinArea: 2, Scalar: 1.5}
}

func TestOnMemoryFireSchedulesAtOffset(t *testing.T) {
	s := NewScheduler()
	s.RegisterTwinMapping(testMapping())
	coords := []neural.XYZ{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}}
	s.RegisterFrames(100, []Frame{{OffsetBursts: 0, UpstreamArea: 1, Coords: coords}})

	// Memory neuron fires at burst 5; offset 0 lands at burst 6.
	n, err := s.OnMemoryFire(100, 10, 5)
	if err != nil {
		t.Fatalf("OnMemoryFire: %v", err)
	}
	if n != 1 {
		t.Errorf("scheduled %d frames, want 1", n)
	}

	if got := s.Due(5); got != nil {
		t.Error("nothing should be due at the fire burst itself")
	}
	due := s.Due(6)
	if len(due) != 1 {
		t.Fatalf("due at burst 6 = %d fires, want 1", len(due))
	}
	if due[0].TwinArea != 2 || due[0].Scalar != 1.5 || len(due[0].Coords) != 2 {
		t.Errorf("scheduled fire = %+v", due[0])
	}
}

func TestOnMemoryFireOffsets(t *testing.T) {
	for _, offset := range []uint64{1, 2} {
		s := NewScheduler()
		s.RegisterTwinMapping(testMapping())
		s.RegisterFrames(100, []Frame{{OffsetBursts: offset, UpstreamArea: 1, Coords: []neural.XYZ{{}}}})

		if _, err := s.OnMemoryFire(100, 10, 7); err != nil {
			t.Fatalf("OnMemoryFire: %v", err)
		}

		want := 7 + 1 + offset
		for b := uint64(0); b <= want+3; b++ {
			due := s.Due(b)
			if b == want && len(due) != 1 {
				t.Errorf("offset %d: nothing due at burst %d", offset, want)
			}
			if b != want && len(due) != 0 {
				t.Errorf("offset %d: unexpected fire at burst %d", offset, b)
			}
		}
	}
}

// A consumed frame never fires again, even if the memory neuron re-fires.
func TestFramesFireExactlyOnce(t *testing.T) {
	s := NewScheduler()
	s.RegisterTwinMapping(testMapping())
	s.RegisterFrames(100, []Frame{{OffsetBursts: 0, UpstreamArea: 1, Coords: []neural.XYZ{{}}}})

	if _, err := s.OnMemoryFire(100, 10, 5); err != nil {
		t.Fatalf("first fire: %v", err)
	}
	n, err := s.OnMemoryFire(100, 10, 8)
	if err != nil {
		t.Fatalf("second fire: %v", err)
	}
	if n != 0 {
		t.Errorf("second fire scheduled %d frames, want 0", n)
	}
	if len(s.Due(6)) != 1 {
		t.Error("first schedule lost")
	}
	if len(s.Due(9)) != 0 {
		t.Error("consumed frame fired again")
	}
}

func TestOnMemoryFireUnmappedArea(t *testing.T) {
	s := NewScheduler()
	s.RegisterFrames(100, []Frame{{OffsetBursts: 0, UpstreamArea: 1}})

	if _, err := s.OnMemoryFire(100, 99, 5); !errors.Is(err, fire.ErrNotConfigured) {
		t.Errorf("OnMemoryFire without mapping = %v, want ErrNotConfigured", err)
	}
}

func TestFramesFromOtherUpstreamSkipped(t *testing.T) {
	s := NewScheduler()
	s.RegisterTwinMapping(testMapping())
	s.RegisterFrames(100, []Frame{
		{OffsetBursts: 0, UpstreamArea: 1, Coords: []neural.XYZ{{}}},
		{OffsetBursts: 0, UpstreamArea: 42, Coords: []neural.XYZ{{}}},
	})

	if _, err := s.OnMemoryFire(100, 10, 5); err != nil {
		t.Fatalf("OnMemoryFire: %v", err)
	}
	if len(s.Due(6)) != 1 {
		t.Error("frame from a non-upstream area must not be scheduled")
	}
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", s.PendingCount())
	}
}
