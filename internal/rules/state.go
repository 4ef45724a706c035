// Package rules implements the Kalah(p,s) board representation, legal move
// generation, and move application. It has no dependency on the solver's
// concurrency or storage machinery: everything here is pure and
// deterministic, the way the teacher's internal/board package keeps move
// generation independent of search.
package rules

import "github.com/pkg/errors"

// Side identifies which player is to move.
type Side uint8

const (
	A Side = iota
	B
)

// Other returns the opponent of s.
func (s Side) Other() Side {
	if s == A {
		return B
	}
	return A
}

func (s Side) String() string {
	if s == A {
		return "A"
	}
	return "B"
}

// Params carries the (p, s) dimensions of a Kalah variant. It is created
// once per solve and passed by value into every rules function, mirroring
// the teacher's "Zobrist tables are immutable after initialization; share
// by value or by borrowed reference" guidance (spec.md §9).
type Params struct {
	P int // pits per side
	S int // seeds per pit at the opening
}

// NumCells returns 2p+2, the number of cells in a State.
func (pr Params) NumCells() int { return 2*pr.P + 2 }

// StoreIndex returns the cell index of side s's store.
func (pr Params) StoreIndex(s Side) int {
	if s == A {
		return pr.P
	}
	return 2*pr.P + 1
}

// PitRange returns the [lo, hi] inclusive cell index range of side s's pits.
func (pr Params) PitRange(s Side) (lo, hi int) {
	if s == A {
		return 0, pr.P - 1
	}
	return pr.P + 1, 2 * pr.P
}

// TotalSeeds returns the conserved quantity 2*p*s.
func (pr Params) TotalSeeds() int { return 2 * pr.P * pr.S }

// State is the tuple (cells, side-to-move) of spec.md §3.1. Cells has length
// NumCells(): indices 0..p-1 are A's pits, p is A's store, p+1..2p are B's
// pits, 2p+1 is B's store.
type State struct {
	Cells []uint8
	Side  Side
}

// Clone returns a deep copy of st, since Cells is backed by a slice and
// Apply must never mutate its caller's state.
func (st State) Clone() State {
	cells := make([]uint8, len(st.Cells))
	copy(cells, st.Cells)
	return State{Cells: cells, Side: st.Side}
}

// Opening returns the opening position contract of spec.md §6: side A to
// move, s seeds in every pit, both stores empty.
func Opening(pr Params) State {
	cells := make([]uint8, pr.NumCells())
	for i := range cells {
		if i == pr.StoreIndex(A) || i == pr.StoreIndex(B) {
			continue
		}
		cells[i] = uint8(pr.S)
	}
	return State{Cells: cells, Side: A}
}

// SeedLevel returns the sum of seeds currently in pits, excluding both
// stores (spec.md §3.3). It is monotone weak-decreasing across moves.
func SeedLevel(pr Params, st State) int {
	total := 0
	for i, c := range st.Cells {
		if i == pr.StoreIndex(A) || i == pr.StoreIndex(B) {
			continue
		}
		total += int(c)
	}
	return total
}

// sideEmpty reports whether every pit of side s holds zero seeds.
func sideEmpty(pr Params, st State, s Side) bool {
	lo, hi := pr.PitRange(s)
	for i := lo; i <= hi; i++ {
		if st.Cells[i] != 0 {
			return false
		}
	}
	return true
}

// IsTerminal reports whether st has all pits on one side empty, per the
// terminal-state invariant of spec.md §3.1.
func IsTerminal(pr Params, st State) bool {
	return sideEmpty(pr, st, A) || sideEmpty(pr, st, B)
}

// Payoff returns the A-store minus B-store score. It is only meaningful
// once Apply has performed the terminal sweep (step 6 of spec.md §4.1);
// callers should check IsTerminal first.
func Payoff(pr Params, st State) int {
	return int(st.Cells[pr.StoreIndex(A)]) - int(st.Cells[pr.StoreIndex(B)])
}

// ErrIllegalMove is returned by Apply when asked to play an empty pit.
// Per spec.md §4.1, this is a programmer-error precondition violation, not
// a user-facing error: callers must only ever pass indices returned by
// LegalMoves.
var ErrIllegalMove = errors.New("rules: illegal move: pit is empty or out of range")

// ErrMalformedState is returned by Unpack when packed bytes do not decode
// to a state (wrong length or a truncated field). Unpack does not check
// seed conservation.
var ErrMalformedState = errors.New("rules: malformed packed state")
