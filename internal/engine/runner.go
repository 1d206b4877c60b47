package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvandessel/burst-loop/internal/logging"
)

var (
	// ErrAlreadyRunning is returned by Start when the loop is active.
	ErrAlreadyRunning = errors.New("burst loop already running")
	// ErrNotRunning is returned by Stop when the loop is idle.
	ErrNotRunning = errors.New("burst loop not running")
)

// RunnerConfig controls the autonomous burst loop.
type RunnerConfig struct {
	// FrequencyHz is the target burst rate. Zero means free-running.
	FrequencyHz float64

	// MaxBursts stops the loop after this many bursts. Zero means run
	// until stopped.
	MaxBursts uint64
}

// Validate checks the runner configuration.
func (c RunnerConfig) Validate() error {
	if c.FrequencyHz < 0 {
		return fmt.Errorf("frequency must be non-negative, got %g", c.FrequencyHz)
	}
	return nil
}

// Runner drives an NPU at a configurable burst frequency on a background
// goroutine. Bursts never overlap and a stop request is honored between
// bursts, never mid-burst.
type Runner struct {
	npu *NPU
	log *slog.Logger

	// period is the inter-burst interval in nanoseconds, adjustable while
	// running. Zero means free-running.
	period atomic.Int64

	maxBursts uint64

	mu         sync.Mutex
	running    bool
	stopClosed bool
	stop       chan struct{}
	done       chan struct{}
}

// NewRunner wraps an NPU in a burst loop. The runner starts stopped.
func NewRunner(npu *NPU, cfg RunnerConfig, log *slog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("runner config: %w", err)
	}
	r := &Runner{npu: npu, log: log, maxBursts: cfg.MaxBursts}
	r.period.Store(hzToPeriod(cfg.FrequencyHz))
	return r, nil
}

func hzToPeriod(hz float64) int64 {
	if hz <= 0 {
		return 0
	}
	return int64(float64(time.Second) / hz)
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// SetFrequency adjusts the burst rate. Takes effect from the next burst.
func (r *Runner) SetFrequency(hz float64) error {
	if hz < 0 {
		return fmt.Errorf("frequency must be non-negative, got %g", hz)
	}
	r.period.Store(hzToPeriod(hz))
	return nil
}

// Start launches the loop. Returns ErrAlreadyRunning if it is active.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyRunning
	}
	r.running = true
	r.stopClosed = false
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.stop, r.done)
	r.log.Info("burst loop started", "frequency_hz", periodToHz(r.period.Load()))
	return nil
}

func periodToHz(period int64) float64 {
	if period <= 0 {
		return 0
	}
	return float64(time.Second) / float64(period)
}

// Stop requests a stop and waits for the in-flight burst to finish, or for
// ctx to expire. Returns ErrNotRunning if the loop is idle.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	if !r.stopClosed {
		close(r.stop)
		r.stopClosed = true
	}
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("stop burst loop: %w", ctx.Err())
	}

	r.log.Info("burst loop stopped", "bursts", r.npu.BurstCount())
	return nil
}

func (r *Runner) loop(stop, done chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(done)
	}()

	var bursts uint64
	next := time.Now()
	for {
		select {
		case <-stop:
			return
		default:
		}

		summary, err := r.npu.ProcessBurst(context.Background())
		if err != nil {
			r.log.Error("burst failed, stopping loop", "err", err)
			return
		}
		bursts++
		r.log.Log(context.Background(), logging.LevelTrace, "burst",
			"burst", summary.Burst,
			"fired", summary.Fired,
			"contributions", summary.Contributions,
			"elapsed", summary.Elapsed,
		)

		if r.maxBursts > 0 && bursts >= r.maxBursts {
			return
		}

		period := time.Duration(r.period.Load())
		if period == 0 {
			next = time.Now()
			continue
		}
		// Catch up without skipping bursts when a burst overruns the
		// period: the next deadline advances by exactly one period.
		next = next.Add(period)
		wait := time.Until(next)
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
