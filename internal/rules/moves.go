package rules

import "github.com/pkg/errors"

// LegalMoves returns, in ascending pit index order, every pit index i with
// side-to-move's cells[i] > 0. An empty result means st is terminal
// (spec.md §4.1).
func LegalMoves(pr Params, st State) []int {
	lo, hi := pr.PitRange(st.Side)
	var moves []int
	for i := lo; i <= hi; i++ {
		if st.Cells[i] > 0 {
			moves = append(moves, i)
		}
	}
	return moves
}

// opposite returns the pit index on the other side directly across the
// board from pit k, per spec.md §4.1 step 5: "Opposite-index formula: for
// side-A pit k in [0,p-1], opposite = 2p-k; for side-B pit k in [p+1,2p],
// opposite = 2p-k (same formula)."
func opposite(pr Params, k int) int {
	return 2*pr.P - k
}

// Apply plays pit i for st's side-to-move and returns the resulting state,
// following spec.md §4.1 steps 1-6 exactly: sowing with opponent-store
// skipping, the extra-turn rule, the capture rule, and the terminal sweep.
// Apply is a total function on legal moves; applying to an empty pit is a
// precondition violation (ErrIllegalMove), mirroring the teacher's
// "programmer error" semantics for illegal chess moves passed to Position
// mutators.
func Apply(pr Params, st State, i int) (State, error) {
	lo, hi := pr.PitRange(st.Side)
	if i < lo || i > hi || st.Cells[i] == 0 {
		return State{}, errors.Wrapf(ErrIllegalMove, "pit %d (side %s)", i, st.Side)
	}

	next := st.Clone()
	n := int(next.Cells[i])
	next.Cells[i] = 0

	numCells := pr.NumCells()
	opponentStore := pr.StoreIndex(st.Side.Other())

	last := i
	pos := i
	for n > 0 {
		pos = (pos + 1) % numCells
		if pos == opponentStore {
			continue // seeds never land in the opponent's store
		}
		next.Cells[pos]++
		last = pos
		n--
	}

	// Extra-turn rule (step 4): landing in the mover's own store grants
	// another turn; otherwise the turn passes.
	mover := st.Side
	ownStore := pr.StoreIndex(mover)
	if last == ownStore {
		next.Side = mover
	} else {
		next.Side = mover.Other()
	}

	// Capture rule (step 5): landing in an own pit that was empty before
	// this seed, with a non-empty opposite pit, sweeps both into the
	// mover's store.
	moverLo, moverHi := pr.PitRange(mover)
	if last != ownStore && last >= moverLo && last <= moverHi && next.Cells[last] == 1 {
		opp := opposite(pr, last)
		if next.Cells[opp] > 0 {
			captured := next.Cells[last] + next.Cells[opp]
			next.Cells[last] = 0
			next.Cells[opp] = 0
			next.Cells[ownStore] += captured
		}
	}

	// Terminal sweep (step 6): if either side's pits are now all empty,
	// the other side's remaining pit seeds move into that side's store.
	if sideEmpty(pr, next, A) {
		sweepInto(pr, &next, B)
	}
	if sideEmpty(pr, next, B) {
		sweepInto(pr, &next, A)
	}

	return next, nil
}

// sweepInto moves every seed remaining in side s's pits into s's own
// store, zeroing the pits. It is called once the opposite side has been
// found empty, per spec.md §4.1 step 6.
func sweepInto(pr Params, st *State, s Side) {
	lo, hi := pr.PitRange(s)
	store := pr.StoreIndex(s)
	var total uint8
	for k := lo; k <= hi; k++ {
		total += st.Cells[k]
		st.Cells[k] = 0
	}
	st.Cells[store] += total
}
