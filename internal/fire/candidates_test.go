package fire

import (
	"testing"

	"github.com/nvandessel/burst-loop/internal/neural"
)

func TestCandidateListAccumulates(t *testing.T) {
	fcl := NewCandidateList()

	fcl.Add(1, 6.0)
	fcl.Add(1, 4.0)
	fcl.Add(2, -3.0)

	if v, ok := fcl.Get(1); !ok || v != 10.0 {
		t.Errorf("Get(1) = %v, %v; want 10.0, true", v, ok)
	}
	if v, ok := fcl.Get(2); !ok || v != -3.0 {
		t.Errorf("Get(2) = %v, %v; want -3.0, true", v, ok)
	}
	if _, ok := fcl.Get(3); ok {
		t.Error("Get(3) should report no contribution")
	}
	if fcl.Len() != 2 {
		t.Errorf("Len = %d, want 2", fcl.Len())
	}
}

// Clearing and re-running the same injection set yields identical values.
func TestCandidateListIdempotentReinjection(t *testing.T) {
	inject := func(fcl *CandidateList) {
		fcl.Add(5, 1.5)
		fcl.Add(5, 2.5)
		fcl.Add(9, -1.0)
	}

	fcl := NewCandidateList()
	inject(fcl)
	first, _ := fcl.Get(5)

	fcl.Clear()
	if fcl.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", fcl.Len())
	}
	inject(fcl)
	second, _ := fcl.Get(5)

	if first != second {
		t.Errorf("reinjection not idempotent: %v != %v", first, second)
	}
}

func TestCandidateListMerge(t *testing.T) {
	a := NewCandidateList()
	a.Add(1, 1.0)
	a.Add(2, 2.0)

	b := NewCandidateList()
	b.Add(2, 3.0)
	b.Add(3, 4.0)

	a.Merge(b)
	if v, _ := a.Get(2); v != 5.0 {
		t.Errorf("merged Get(2) = %v, want 5.0", v)
	}
	if a.Len() != 3 {
		t.Errorf("merged Len = %d, want 3", a.Len())
	}
}

func TestCandidateListSortedIDs(t *testing.T) {
	fcl := NewCandidateList()
	for _, id := range []neural.NeuronID{9, 3, 7, 1} {
		fcl.Add(id, 1)
	}
	ids := fcl.SortedIDs()
	want := []neural.NeuronID{1, 3, 7, 9}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("SortedIDs = %v, want %v", ids, want)
		}
	}
}

func TestQueue(t *testing.T) {
	q := NewQueue()
	q.Append(5)
	q.Append(2)
	q.Append(5) // duplicate ignored

	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
	if !q.Contains(5) || !q.Contains(2) || q.Contains(9) {
		t.Error("Contains gave wrong membership")
	}
	ids := q.IDs()
	if ids[0] != 5 || ids[1] != 2 {
		t.Errorf("IDs = %v, want [5 2] (fire order)", ids)
	}
}
