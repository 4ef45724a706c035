// Package bfs implements the forward-enumeration driver of spec.md §4.2:
// depth-by-depth discovery of every reachable Kalah state, recorded in
// the position store with its minimum BFS depth and seed_level.
//
// The worker fan-out / bounded-write-queue / dedicated-writer shape is
// grounded on the teacher's internal/engine.Engine.FindBestMove
// (internal/engine/engine.go): spawn N worker goroutines against a
// shared sync.WaitGroup, collect results on a buffered channel, a
// second goroutine that signals completion once the group is done.
// Here that shape is generalized by one more stage (a dedicated writer
// goroutine draining the result channel into the store) and expressed
// with golang.org/x/sync/errgroup instead of a hand-rolled WaitGroup +
// done-channel, the form used for exactly this kind of parallel-worker
// pattern in the "erigon-lib" and "negamax" reference files retrieved
// alongside the teacher.
package bfs

import (
	"context"
	"log"
	"time"

	"github.com/hailam/kalahsolve/internal/governor"
	"github.com/hailam/kalahsolve/internal/rules"
	"github.com/hailam/kalahsolve/internal/store"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// defaultDrainBackoff is the wait used when pausing dispatch under
// Critical memory pressure and no Governor is configured (e.g. tests).
const defaultDrainBackoff = 100 * time.Millisecond

// Config wires the rules, store, and governor a Driver needs.
type Config struct {
	Params   rules.Params
	Zobrist  *rules.Zobrist
	Store    store.Store
	Governor *governor.Governor

	// Fallback sizes used when Governor is nil (e.g. in small tests).
	ChunkSize   int
	WorkerCount int

	// QueueCapacity is the write-queue depth in batches; it is used
	// whether or not a Governor is configured.
	QueueCapacity int
}

// Driver runs the BFS enumeration of spec.md §4.2.
type Driver struct {
	cfg Config
}

// New creates a BFS Driver.
func New(cfg Config) *Driver {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100000
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1000
	}
	return &Driver{cfg: cfg}
}

func (d *Driver) chunkSize() int {
	if d.cfg.Governor != nil {
		return d.cfg.Governor.ChunkSize()
	}
	return d.cfg.ChunkSize
}

func (d *Driver) workerCount() int {
	if d.cfg.Governor != nil {
		return d.cfg.Governor.WorkerCount()
	}
	return d.cfg.WorkerCount
}

func (d *Driver) dedupCapacity() int {
	if d.cfg.Governor != nil {
		return d.cfg.Governor.DedupSetMax()
	}
	return 0
}

// Run populates an empty store with exactly the set of states reachable
// from the opening, each assigned its minimum BFS depth, per spec.md
// §4.2's contract. It returns once frontier(d+1) is empty for some d.
func (d *Driver) Run(ctx context.Context) error {
	pr := d.cfg.Params
	st := d.cfg.Store
	z := d.cfg.Zobrist

	opening := rules.Opening(pr)
	openingRec := store.Record{
		Fingerprint: z.Fingerprint(opening),
		PackedCells: rules.Pack(pr, opening),
		Depth:       0,
		SeedLevel:   uint16(rules.SeedLevel(pr, opening)),
	}
	if _, err := st.InsertBatch([]store.Record{openingRec}); err != nil {
		return errors.Wrap(err, "bfs: insert opening position")
	}

	for depth := uint16(0); ; depth++ {
		count, err := st.CountByDepth(depth)
		if err != nil {
			return errors.Wrapf(err, "bfs: count depth %d", depth)
		}
		if count == 0 {
			log.Printf("[BFS] depth=%d frontier=0, enumeration complete", depth)
			return nil
		}

		if err := d.processDepth(ctx, depth, count); err != nil {
			return err
		}
		log.Printf("[BFS] depth=%d frontier=%d processed", depth, count)
	}
}

// processDepth streams frontier(depth) in chunks, fanning each chunk out
// to workers whose children flow through a bounded write queue into the
// store.
func (d *Driver) processDepth(ctx context.Context, depth uint16, total int) error {
	var dedup *dedupSet
	if d.dedupCapacity() > 0 {
		dedup = newDedupSet(d.dedupCapacity())
	}

	for offset := 0; offset < total; {
		if err := ctx.Err(); err != nil {
			return err // cooperative cancellation at the chunk barrier
		}
		if d.cfg.Governor != nil && d.cfg.Governor.ShouldPauseDispatch() {
			// Critical memory pressure: let the writer drain before
			// dispatching more generation work (spec.md §4.5). Back off
			// by the governor's own poll interval instead of spinning,
			// mirroring the ticker-driven cadence governor.Run polls at.
			if err := d.waitForDrain(ctx); err != nil {
				return err
			}
			continue
		}

		chunk, err := d.cfg.Store.ScanByDepth(depth, offset, d.chunkSize())
		if err != nil {
			return errors.Wrapf(err, "bfs: scan depth %d offset %d", depth, offset)
		}
		if len(chunk) == 0 {
			break
		}
		offset += len(chunk)

		if err := d.dispatchChunk(ctx, chunk, dedup); err != nil {
			return err
		}
	}
	return nil
}

// waitForDrain pauses dispatch for one governor poll interval (or
// defaultDrainBackoff if no Governor is configured), remaining
// responsive to cancellation.
func (d *Driver) waitForDrain(ctx context.Context) error {
	interval := defaultDrainBackoff
	if d.cfg.Governor != nil {
		interval = d.cfg.Governor.PollInterval()
	}
	select {
	case <-time.After(interval):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchChunk fans chunk out across workerCount() goroutines via
// errgroup, each producing child records into a bounded results channel
// that a single writer goroutine drains into the store (spec.md §4.2's
// back-pressure: the write queue is bounded, so enqueue blocks when
// full and workers self-throttle to the writer's throughput).
func (d *Driver) dispatchChunk(ctx context.Context, chunk []store.Record, dedup *dedupSet) error {
	results := make(chan []store.Record, d.cfg.QueueCapacity)

	writerErrCh := make(chan error, 1)
	go func() {
		writerErrCh <- d.drainWriter(results)
	}()

	g, gctx := errgroup.WithContext(ctx)
	parts := splitRecords(chunk, d.workerCount())
	for _, part := range parts {
		part := part
		g.Go(func() error {
			return d.worker(gctx, part, dedup, results)
		})
	}

	workErr := g.Wait()
	close(results)
	writerErr := <-writerErrCh

	if workErr != nil {
		return errors.Wrap(workErr, "bfs: worker")
	}
	return errors.Wrap(writerErr, "bfs: writer")
}

// worker generates every child of every parent in part, without any
// in-worker deduplication beyond the optional bounded dedupSet, and
// enqueues result batches onto results (spec.md §4.2 step 2-3).
func (d *Driver) worker(ctx context.Context, part []store.Record, dedup *dedupSet, results chan<- []store.Record) error {
	const flushSize = 4096
	pr := d.cfg.Params
	z := d.cfg.Zobrist

	var batch []store.Record
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		select {
		case results <- batch:
			batch = nil
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, parentRec := range part {
		parentState, err := rules.Unpack(pr, parentRec.PackedCells)
		if err != nil {
			return errors.Wrapf(err, "bfs worker: unpack fingerprint %d", parentRec.Fingerprint)
		}

		for _, move := range rules.LegalMoves(pr, parentState) {
			child, err := rules.Apply(pr, parentState, move)
			if err != nil {
				return errors.Wrapf(err, "bfs worker: apply move %d", move)
			}

			fp := z.Fingerprint(child)
			if dedup != nil && dedup.observe(fp) {
				continue
			}

			batch = append(batch, store.Record{
				Fingerprint: fp,
				PackedCells: rules.Pack(pr, child),
				Depth:       parentRec.Depth + 1,
				SeedLevel:   uint16(rules.SeedLevel(pr, child)),
			})
			if len(batch) >= flushSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// drainWriter is the single dedicated writer goroutine of spec.md §4.2:
// it reads result batches off results and applies insert_batch, which
// silently ignores records whose fingerprint already exists.
func (d *Driver) drainWriter(results <-chan []store.Record) error {
	for batch := range results {
		if _, err := d.cfg.Store.InsertBatch(batch); err != nil {
			return errors.Wrap(err, "bfs writer: insert batch")
		}
	}
	return nil
}

// splitRecords divides records into at most n roughly equal contiguous
// parts, so each worker gets ordered, non-overlapping work.
func splitRecords(records []store.Record, n int) [][]store.Record {
	if n <= 1 || len(records) <= 1 {
		return [][]store.Record{records}
	}
	if n > len(records) {
		n = len(records)
	}
	parts := make([][]store.Record, 0, n)
	size := (len(records) + n - 1) / n
	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		parts = append(parts, records[i:end])
	}
	return parts
}
