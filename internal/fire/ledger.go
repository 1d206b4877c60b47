package fire

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/nvandessel/burst-loop/internal/neural"
)

// ErrNotConfigured is returned for ledger queries against an area that has
// no configured window. The caller can configure the area and retry.
var ErrNotConfigured = errors.New("fire ledger not configured for area")

// Frame is one burst's firing record for an area.
type Frame struct {
	Burst uint64
	Bits  *roaring.Bitmap // neuron ids fired in this burst
}

// Ledger keeps a dense, burst-aligned window of firing bitmaps per
// configured cortical area. Frames older than the window are evicted as new
// ones are recorded.
type Ledger struct {
	windows map[neural.AreaID]*areaWindow
}

type areaWindow struct {
	size   int
	frames []Frame // ascending by burst, contiguous
}

// NewLedger creates an empty ledger with no tracked areas.
func NewLedger() *Ledger {
	return &Ledger{windows: make(map[neural.AreaID]*areaWindow)}
}

// ConfigureWindow sets how many past bursts are retained for an area.
// Reconfiguring an existing area trims its history to the new size.
func (l *Ledger) ConfigureWindow(area neural.AreaID, size int) error {
	if size <= 0 {
		return fmt.Errorf("configure area %d: window size %d must be positive", area, size)
	}
	w, ok := l.windows[area]
	if !ok {
		l.windows[area] = &areaWindow{size: size}
		return nil
	}
	w.size = size
	w.evict()
	return nil
}

// TrackedAreas returns the areas with configured windows.
func (l *Ledger) TrackedAreas() []neural.AreaID {
	out := make([]neural.AreaID, 0, len(l.windows))
	for area := range l.windows {
		out = append(out, area)
	}
	return out
}

// Tracked reports whether an area has a configured window.
func (l *Ledger) Tracked(area neural.AreaID) bool {
	_, ok := l.windows[area]
	return ok
}

// Record appends the fired set of one burst for an area. Bursts must be
// recorded in increasing order; a burst at or before the last recorded one
// is ignored. Skipped bursts are gap-filled with empty frames so the window
// stays dense. Recording against an untracked area is a no-op: only
// configured areas retain history.
func (l *Ledger) Record(area neural.AreaID, burst uint64, fired []neural.NeuronID) {
	w, ok := l.windows[area]
	if !ok {
		return
	}

	if n := len(w.frames); n > 0 {
		last := w.frames[n-1].Burst
		if burst <= last {
			return
		}
		for gap := last + 1; gap < burst; gap++ {
			w.frames = append(w.frames, Frame{Burst: gap, Bits: roaring.New()})
		}
	}

	bits := roaring.New()
	for _, id := range fired {
		bits.Add(uint32(id))
	}
	w.frames = append(w.frames, Frame{Burst: burst, Bits: bits})
	w.evict()
}

// DenseWindow returns the retained frames for an area with burst in
// [fromBurst, fromBurst+depth). Frames that have aged out are simply absent;
// only an untracked area is an error.
func (l *Ledger) DenseWindow(area neural.AreaID, fromBurst uint64, depth int) ([]Frame, error) {
	w, ok := l.windows[area]
	if !ok {
		return nil, fmt.Errorf("dense window for area %d: %w", area, ErrNotConfigured)
	}

	var out []Frame
	end := fromBurst + uint64(depth)
	for _, f := range w.frames {
		if f.Burst >= fromBurst && f.Burst < end {
			out = append(out, f)
		}
	}
	return out, nil
}

// Fired reports whether a neuron is recorded as fired at (area, burst).
func (l *Ledger) Fired(area neural.AreaID, burst uint64, id neural.NeuronID) (bool, error) {
	frames, err := l.DenseWindow(area, burst, 1)
	if err != nil {
		return false, err
	}
	for _, f := range frames {
		if f.Bits.Contains(uint32(id)) {
			return true, nil
		}
	}
	return false, nil
}

func (w *areaWindow) evict() {
	if excess := len(w.frames) - w.size; excess > 0 {
		w.frames = w.frames[excess:]
	}
}
