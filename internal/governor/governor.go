// Package governor implements the resource governor of spec.md §4.5: it
// polls free system memory and exposes a three-state mode (Normal,
// Throttled, Critical) that the BFS and retrograde drivers consult for
// worker count, dedup-set capacity, and batch sizing. It is grounded on
// the teacher's internal/engine.TimeManager (internal/engine/timeman.go),
// a polled-budget holder the search loop checks before each decision
// point — generalized here from a time budget to a memory budget.
package governor

import (
	"sync"
	"time"

	"github.com/pbnjay/memory"
)

// Mode is the governor's current resource-pressure state.
type Mode int

const (
	Normal Mode = iota
	Throttled
	Critical
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Throttled:
		return "throttled"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Config carries the base tunables of spec.md §6's configuration table
// that the governor scales by mode.
type Config struct {
	WorkerCount int // W0: full worker count in Normal mode
	DedupSetMax int // K: worker-side fingerprint cache cap in Normal mode
	ChunkSize   int // C: BFS parents per worker dispatch in Normal mode
	BatchSize   int // B: retrograde positions per fetch in Normal mode

	MemWarnBytes uint64 // T_warn
	MemCritBytes uint64 // T_crit

	// PollInterval is how often Run samples free memory. spec.md §4.5
	// requires at least 1 Hz.
	PollInterval time.Duration

	// FreeMemory overrides the free-memory source; defaults to
	// memory.FreeMemory. Tests substitute a fake to exercise Throttled
	// and Critical transitions deterministically.
	FreeMemory func() uint64
}

// DefaultConfig returns spec.md §4.5's default thresholds (4 GiB warn,
// 2 GiB critical) for the given base sizes.
func DefaultConfig(workerCount, chunkSize, batchSize, dedupSetMax int) Config {
	const gib = uint64(1) << 30
	return Config{
		WorkerCount:  workerCount,
		DedupSetMax:  dedupSetMax,
		ChunkSize:    chunkSize,
		BatchSize:    batchSize,
		MemWarnBytes: 4 * gib,
		MemCritBytes: 2 * gib,
		PollInterval: time.Second,
		FreeMemory:   memory.FreeMemory,
	}
}

// Governor holds the live, polled resource mode that drivers consult
// before every dispatch decision.
type Governor struct {
	cfg Config

	mu   sync.RWMutex
	mode Mode

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Governor in Normal mode. Call Run to start polling, or
// call Sample directly for single-shot, test-friendly polling.
func New(cfg Config) *Governor {
	if cfg.FreeMemory == nil {
		cfg.FreeMemory = memory.FreeMemory
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Governor{
		cfg:  cfg,
		mode: Normal,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Sample reads free memory once and updates the governor's mode
// immediately, returning the new mode. Drivers and tests can call this
// directly instead of waiting on the Run polling loop.
func (g *Governor) Sample() Mode {
	free := g.cfg.FreeMemory()
	mode := modeFor(free, g.cfg.MemWarnBytes, g.cfg.MemCritBytes)
	g.mu.Lock()
	g.mode = mode
	g.mu.Unlock()
	return mode
}

func modeFor(free, warn, crit uint64) Mode {
	switch {
	case free <= crit:
		return Critical
	case free <= warn:
		return Throttled
	default:
		return Normal
	}
}

// Run polls free memory at cfg.PollInterval until Stop is called. It is
// meant to run in its own goroutine, the way the teacher's
// TimeManager is consulted from the search loop rather than driving its
// own loop — here the governor does drive its own loop because nothing
// else naturally ticks at the required ≥1 Hz cadence independent of
// driver progress.
func (g *Governor) Run() {
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()
	defer close(g.done)

	g.Sample()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.Sample()
		}
	}
}

// Stop signals a running Run loop to exit; it returns without waiting
// for Run to finish. Safe to call multiple times and safe to call even
// if Run was never started.
func (g *Governor) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// Mode returns the most recently sampled mode.
func (g *Governor) Mode() Mode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

// PollInterval returns the interval Run samples free memory at. Callers
// that must wait on the governor to resolve a Critical condition (e.g.
// a driver's dispatch pause) back off by this same interval rather than
// busy-polling ShouldPauseDispatch.
func (g *Governor) PollInterval() time.Duration {
	return g.cfg.PollInterval
}

// WorkerCount returns the worker count to dispatch under the current
// mode. Critical mode does not reduce worker count (spec.md §4.5 reduces
// dedup capacity and batch sizing under pressure, not CPU parallelism)
// but pauses dispatch briefly instead (see ShouldPauseDispatch).
func (g *Governor) WorkerCount() int {
	return g.cfg.WorkerCount
}

// DedupSetMax returns the worker-side fingerprint cache capacity for the
// current mode: full in Normal, halved in Throttled, zero (disabled —
// forcing store-side dedup) in Critical, per spec.md §4.5.
func (g *Governor) DedupSetMax() int {
	switch g.Mode() {
	case Critical:
		return 0
	case Throttled:
		return g.cfg.DedupSetMax / 2
	default:
		return g.cfg.DedupSetMax
	}
}

// UseStoreSideDedup reports whether BFS should fall back to store-side
// deduplication (i.e. disable the worker-side dedup set entirely),
// which happens once DedupSetMax reaches zero.
func (g *Governor) UseStoreSideDedup() bool {
	return g.DedupSetMax() == 0
}

// ChunkSize returns the BFS parents-per-dispatch chunk size for the
// current mode, halved under Throttled or Critical pressure.
func (g *Governor) ChunkSize() int {
	if g.Mode() == Normal {
		return g.cfg.ChunkSize
	}
	return halvedFloor(g.cfg.ChunkSize)
}

// BatchSize returns the retrograde unsolved-positions-per-fetch batch
// size for the current mode, halved under pressure (spec.md §4.3's
// "The governor halves B under memory pressure").
func (g *Governor) BatchSize() int {
	if g.Mode() == Normal {
		return g.cfg.BatchSize
	}
	return halvedFloor(g.cfg.BatchSize)
}

func halvedFloor(n int) int {
	if n <= 1 {
		return 1
	}
	return n / 2
}

// ShouldPauseDispatch reports whether the driver should pause briefly to
// let the store writer drain before dispatching more work, per spec.md
// §4.5's Critical-state policy.
func (g *Governor) ShouldPauseDispatch() bool {
	return g.Mode() == Critical
}
