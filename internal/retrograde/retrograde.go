// Package retrograde implements the backward-induction solver of
// spec.md §4.3: given a store in which every reachable position carries
// depth and seed_level but no score, it assigns score and best_move to
// every record by iterating seed_level L = 0..2ps, fixpointing within
// each level to resolve dependencies between positions at the same level.
//
// The per-level fetch/dispatch/write-back shape is grounded on the
// teacher's internal/engine.Engine search loop (internal/engine/engine.go):
// a driver goroutine streams work in bounded batches, fans it out to
// worker goroutines via golang.org/x/sync/errgroup, and a single writer
// goroutine applies results — the same shape internal/bfs uses, here
// with an intra-level retry loop standing in for BFS's single forward
// pass, since a position can come back "pending" when one of its
// children has not yet been scored.
package retrograde

import (
	"context"
	"log"

	"github.com/hailam/kalahsolve/internal/governor"
	"github.com/hailam/kalahsolve/internal/rules"
	"github.com/hailam/kalahsolve/internal/store"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrFixpointStalled is returned when a level's unsolved count does not
// decrease across a full pass, per spec.md §4.3 step 2d: "if U did not
// decrease this pass, an invariant has been violated."
var ErrFixpointStalled = errors.New("retrograde: fixpoint made no progress within seed level")

// Config wires the rules, store, and governor a Driver needs.
type Config struct {
	Params   rules.Params
	Zobrist  *rules.Zobrist
	Store    store.Store
	Governor *governor.Governor

	BatchSize   int // fallback when Governor is nil
	WorkerCount int // fallback when Governor is nil
}

// Driver runs the retrograde minimax pass of spec.md §4.3.
type Driver struct {
	cfg Config
}

// New creates a retrograde Driver.
func New(cfg Config) *Driver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100000
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &Driver{cfg: cfg}
}

func (d *Driver) batchSize() int {
	if d.cfg.Governor != nil {
		return d.cfg.Governor.BatchSize()
	}
	return d.cfg.BatchSize
}

func (d *Driver) workerCount() int {
	if d.cfg.Governor != nil {
		return d.cfg.Governor.WorkerCount()
	}
	return d.cfg.WorkerCount
}

// scoredUpdate is the (fingerprint, score, best_move) triple of spec.md
// §4.3 step 2c, accumulated by workers and applied by the writer.
type scoredUpdate struct {
	fingerprint uint64
	score       int8
	bestMove    int8
}

// Run scores every record in the store, proceeding seed_level 0 up to
// 2ps, fixpointing within each level.
func (d *Driver) Run(ctx context.Context) error {
	maxLevel := uint16(d.cfg.Params.TotalSeeds())

	for level := uint16(0); level <= maxLevel; level++ {
		if err := d.solveLevel(ctx, level); err != nil {
			return errors.Wrapf(err, "retrograde: level %d", level)
		}
	}
	return nil
}

// solveLevel implements spec.md §4.3's per-level procedure: repeatedly
// fetch the unsolved subset of level, attempt to score each position,
// and write back whatever resolved, until none remain or no progress is
// made in a pass.
func (d *Driver) solveLevel(ctx context.Context, level uint16) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		before, err := d.cfg.Store.CountUnsolvedByLevel(level)
		if err != nil {
			return errors.Wrap(err, "count unsolved")
		}
		if before == 0 {
			return nil
		}

		if err := d.passOverLevel(ctx, level, before); err != nil {
			return err
		}

		after, err := d.cfg.Store.CountUnsolvedByLevel(level)
		if err != nil {
			return errors.Wrap(err, "count unsolved")
		}
		log.Printf("[RETROGRADE] level=%d unsolved %d -> %d", level, before, after)
		if after == before {
			return errors.Wrapf(ErrFixpointStalled, "level %d stuck at %d unsolved", level, after)
		}
	}
}

// passOverLevel makes one offset-paged pass over the unsolved positions
// at level, resolving as many as have all children already scored.
// Offsets index the store's current unsolved set, which shrinks as
// positions are solved, so a pass can skip some unsolved positions;
// solveLevel's next pass picks them up.
func (d *Driver) passOverLevel(ctx context.Context, level uint16, total int) error {
	batchSize := d.batchSize()

	for offset := 0; offset < total; {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := d.cfg.Store.ScanUnsolvedByLevel(level, offset, batchSize)
		if err != nil {
			return errors.Wrapf(err, "scan unsolved level %d offset %d", level, offset)
		}
		if len(batch) == 0 {
			break
		}
		offset += len(batch)

		if err := d.dispatchBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// dispatchBatch fans batch out across worker goroutines, each producing
// scoredUpdates for the positions whose children are all scored, and
// funnels results through a single writer goroutine applying
// update_score (spec.md §4.3 step 2b-c).
func (d *Driver) dispatchBatch(ctx context.Context, batch []store.Record) error {
	updates := make(chan []scoredUpdate, d.workerCount())

	writerErrCh := make(chan error, 1)
	go func() {
		writerErrCh <- d.drainWriter(updates)
	}()

	g, gctx := errgroup.WithContext(ctx)
	parts := splitRecords(batch, d.workerCount())
	for _, part := range parts {
		part := part
		g.Go(func() error {
			return d.worker(gctx, part, updates)
		})
	}

	workErr := g.Wait()
	close(updates)
	writerErr := <-writerErrCh

	if workErr != nil {
		return errors.Wrap(workErr, "worker")
	}
	return errors.Wrap(writerErr, "writer")
}

// worker evaluates each position in part, producing a scoredUpdate for
// every position whose children are all already scored (spec.md §4.3
// step 2b). Positions with an unscored child are skipped this pass —
// they remain unsolved and will be retried on the level's next pass.
func (d *Driver) worker(ctx context.Context, part []store.Record, updates chan<- []scoredUpdate) error {
	pr := d.cfg.Params
	z := d.cfg.Zobrist

	var batch []scoredUpdate
	for _, rec := range part {
		if err := ctx.Err(); err != nil {
			return err
		}

		st, err := rules.Unpack(pr, rec.PackedCells)
		if err != nil {
			return errors.Wrapf(err, "unpack fingerprint %d", rec.Fingerprint)
		}

		if rules.IsTerminal(pr, st) {
			batch = append(batch, scoredUpdate{
				fingerprint: rec.Fingerprint,
				score:       int8(rules.Payoff(pr, st)),
				bestMove:    -1,
			})
			continue
		}

		update, resolved, err := d.evaluate(pr, z, rec, st)
		if err != nil {
			return err
		}
		if resolved {
			batch = append(batch, update)
		}
	}

	select {
	case updates <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// evaluate computes minimax score and best_move for a non-terminal
// position, consulting the store for each child's score. If any child
// is not yet scored, the position is pending this pass.
func (d *Driver) evaluate(pr rules.Params, z *rules.Zobrist, rec store.Record, st rules.State) (scoredUpdate, bool, error) {
	maximizing := st.Side == rules.A

	best := scoredUpdate{fingerprint: rec.Fingerprint}
	haveBest := false

	for _, move := range rules.LegalMoves(pr, st) {
		child, err := rules.Apply(pr, st, move)
		if err != nil {
			return scoredUpdate{}, false, errors.Wrapf(err, "apply move %d", move)
		}
		childFP := z.Fingerprint(child)

		childRec, err := d.cfg.Store.Get(childFP)
		if err != nil {
			return scoredUpdate{}, false, errors.Wrapf(err, "get child fingerprint %d", childFP)
		}
		if !childRec.Solved {
			return scoredUpdate{}, false, nil // pending: retry next pass
		}

		if !haveBest {
			best.score = childRec.Score
			best.bestMove = int8(move)
			haveBest = true
			continue
		}
		// Tie-break: lowest pit index wins, so a strictly-better child
		// score always replaces the incumbent, while an equal score
		// never does (moves are enumerated lowest-pit-index first).
		if maximizing && childRec.Score > best.score {
			best.score = childRec.Score
			best.bestMove = int8(move)
		} else if !maximizing && childRec.Score < best.score {
			best.score = childRec.Score
			best.bestMove = int8(move)
		}
	}

	return best, true, nil
}

func (d *Driver) drainWriter(updates <-chan []scoredUpdate) error {
	for batch := range updates {
		for _, u := range batch {
			if err := d.cfg.Store.UpdateScore(u.fingerprint, u.score, u.bestMove); err != nil {
				return errors.Wrapf(err, "update score fingerprint %d", u.fingerprint)
			}
		}
	}
	return nil
}

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
