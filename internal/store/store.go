// Package store implements the position store of spec.md §4.4: a durable
// keyed collection of position records supporting concurrent BFS/
// retrograde workers. The capability-set interface below mirrors the
// teacher's internal/tablebase.Prober abstraction (Probe/ProbeRoot/
// MaxPieces/Available) almost field for field, generalized from "probe a
// downloaded endgame tablebase" to "read and write our own, which we are
// computing locally."
package store

import "github.com/pkg/errors"

// Record is the stored position record of spec.md §3.3.
type Record struct {
	Fingerprint uint64
	PackedCells []byte
	Depth       uint16
	SeedLevel   uint16

	// Solved is false until the retrograde pass backs up a score for
	// this record. Score and BestMove are meaningless while Solved is
	// false.
	Solved bool
	Score  int8
	// BestMove is the pit index to play under perfect play, or -1 for a
	// terminal record (spec.md §3.3: "best_move ⊥ iff terminal").
	BestMove int8
}

// ErrNotFound is returned by Get when no record exists for a fingerprint.
var ErrNotFound = errors.New("store: record not found")

// ErrClosed is returned by any operation on a Store whose backend has
// already been closed.
var ErrClosed = errors.New("store: backend closed")

// Store is the capability set of spec.md §4.4.
type Store interface {
	// InsertBatch inserts every record whose fingerprint is not already
	// present and silently skips the rest. It returns the count of
	// newly inserted records. Per spec.md it is atomic per record, not
	// required to be atomic across the batch.
	InsertBatch(records []Record) (inserted int, err error)

	// Exists reports whether fingerprint is already stored.
	Exists(fingerprint uint64) (bool, error)

	// Get returns the full record for fingerprint, or ErrNotFound.
	Get(fingerprint uint64) (Record, error)

	// ScanByDepth streams up to limit records at depth d starting at a
	// stable, store-defined offset.
	ScanByDepth(depth uint16, offset, limit int) ([]Record, error)

	// ScanUnsolvedByLevel streams up to limit unsolved records at seed
	// level level.
	ScanUnsolvedByLevel(level uint16, offset, limit int) ([]Record, error)

	// CountByDepth returns the exact count of records at depth d.
	CountByDepth(depth uint16) (int, error)

	// CountUnsolvedByLevel returns the exact count of unsolved records
	// at seed level level.
	CountUnsolvedByLevel(level uint16) (int, error)

	// UpdateScore sets score and bestMove on the record for fingerprint.
	// It is idempotent: two calls with equal arguments are
	// indistinguishable from one.
	UpdateScore(fingerprint uint64, score int8, bestMove int8) error

	// Flush durably persists all prior writes.
	Flush() error

	// Close releases backend resources.
	Close() error
}
