package store

import (
	"github.com/hailam/kalahsolve/internal/rules"
	"github.com/pkg/errors"
)

// PrincipalLine is the result of walking best_move from the opening to a
// terminal position in a fully solved store.
type PrincipalLine struct {
	Moves []int
	Score int
}

// ExportOpeningLine walks best_move from the opening position to a
// terminal state in a fully solved store, returning the sequence of pit
// indices played under perfect play. It is the supplemental convenience
// of SPEC_FULL.md §5, grounded on the teacher's internal/book.Book
// heaviest-entry walk, adapted from "follow the best-weighted Polyglot
// entry" to "follow the minimax-optimal child in our own solved store."
func ExportOpeningLine(s Store, pr rules.Params, z *rules.Zobrist) (PrincipalLine, error) {
	st := rules.Opening(pr)
	var line PrincipalLine

	for {
		fp := z.Fingerprint(st)
		rec, err := s.Get(fp)
		if err != nil {
			return PrincipalLine{}, errors.Wrapf(err, "export opening line: fingerprint %d", fp)
		}
		if !rec.Solved {
			return PrincipalLine{}, errors.Errorf("export opening line: fingerprint %d is unsolved", fp)
		}
		if len(line.Moves) == 0 {
			line.Score = int(rec.Score)
		}
		if rec.BestMove < 0 {
			break // terminal
		}
		st, err = rules.Apply(pr, st, int(rec.BestMove))
		if err != nil {
			return PrincipalLine{}, err
		}
		line.Moves = append(line.Moves, int(rec.BestMove))
	}

	return line, nil
}
