package retrograde

import (
	"context"
	"testing"

	"github.com/hailam/kalahsolve/internal/bfs"
	"github.com/hailam/kalahsolve/internal/rules"
	"github.com/hailam/kalahsolve/internal/store"
	"github.com/stretchr/testify/require"
)

// solveFully runs BFS enumeration followed by retrograde scoring against
// a fresh in-memory store, the end-to-end pipeline of SPEC_FULL.md §4.
func solveFully(t *testing.T, pr rules.Params) (store.Store, *rules.Zobrist) {
	t.Helper()
	z := rules.NewZobrist(pr)
	s := store.NewMemStore()
	t.Cleanup(func() { s.Close() })

	bd := bfs.New(bfs.Config{Params: pr, Zobrist: z, Store: s, WorkerCount: 2, ChunkSize: 8, QueueCapacity: 4})
	require.NoError(t, bd.Run(context.Background()))

	rd := New(Config{Params: pr, Zobrist: z, Store: s, WorkerCount: 2, BatchSize: 8})
	require.NoError(t, rd.Run(context.Background()))

	return s, z
}

// TestKalah1x1OpeningScoreIsZero is spec.md §8 scenario #1: Kalah(1,1)
// has opening_score = 0.
func TestKalah1x1OpeningScoreIsZero(t *testing.T) {
	pr := rules.Params{P: 1, S: 1}
	s, z := solveFully(t, pr)

	line, err := store.ExportOpeningLine(s, pr, z)
	require.NoError(t, err)
	require.Equal(t, 0, line.Score)
}

// TestKalah2x1EveryPositionSolved is spec.md §8 scenario #2: every
// reachable position ends up with a score and every non-terminal one has
// a best_move, with the known reachable-state bound of fewer than 40.
func TestKalah2x1EveryPositionSolved(t *testing.T) {
	pr := rules.Params{P: 2, S: 1}
	s, _ := solveFully(t, pr)

	total := 0
	for level := uint16(0); level <= uint16(pr.TotalSeeds()); level++ {
		n, err := s.CountUnsolvedByLevel(level)
		require.NoError(t, err)
		require.Zero(t, n, "level %d still has unsolved positions after retrograde", level)
	}

	for depth := uint16(0); ; depth++ {
		n, err := s.CountByDepth(depth)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		total += n
		recs, err := s.ScanByDepth(depth, 0, n)
		require.NoError(t, err)
		for _, rec := range recs {
			require.True(t, rec.Solved)
			st, err := rules.Unpack(pr, rec.PackedCells)
			require.NoError(t, err)
			if rules.IsTerminal(pr, st) {
				require.EqualValues(t, -1, rec.BestMove)
			} else {
				require.GreaterOrEqual(t, rec.BestMove, int8(0))
			}
		}
	}
	require.Less(t, total, 40)
}

// TestUpdateScoreIdempotentAcrossRetrogradeReruns exercises spec.md
// §7's resumability contract: re-running retrograde against an already
// fully solved store is a no-op that leaves every score unchanged.
func TestUpdateScoreIdempotentAcrossRetrogradeReruns(t *testing.T) {
	pr := rules.Params{P: 1, S: 2}
	s, z := solveFully(t, pr)

	before, err := store.ExportOpeningLine(s, pr, z)
	require.NoError(t, err)

	rd := New(Config{Params: pr, Zobrist: z, Store: s, WorkerCount: 1, BatchSize: 4})
	require.NoError(t, rd.Run(context.Background()))

	after, err := store.ExportOpeningLine(s, pr, z)
	require.NoError(t, err)
	require.Equal(t, before, after)
}
