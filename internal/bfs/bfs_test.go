package bfs

import (
	"context"
	"testing"

	"github.com/hailam/kalahsolve/internal/rules"
	"github.com/hailam/kalahsolve/internal/store"
	"github.com/stretchr/testify/require"
)

func runToCompletion(t *testing.T, pr rules.Params) (store.Store, *rules.Zobrist) {
	t.Helper()
	z := rules.NewZobrist(pr)
	s := store.NewMemStore()
	t.Cleanup(func() { s.Close() })

	d := New(Config{
		Params:        pr,
		Zobrist:       z,
		Store:         s,
		WorkerCount:   2,
		ChunkSize:     8,
		QueueCapacity: 4,
	})
	require.NoError(t, d.Run(context.Background()))
	return s, z
}

// TestKalah1x1EnumeratesOpeningAndTerminal exercises the smallest
// nontrivial board end to end: one pit per side, one seed each.
func TestKalah1x1EnumeratesOpeningAndTerminal(t *testing.T) {
	pr := rules.Params{P: 1, S: 1}
	s, z := runToCompletion(t, pr)

	opening := rules.Opening(pr)
	rec, err := s.Get(z.Fingerprint(opening))
	require.NoError(t, err)
	require.EqualValues(t, 0, rec.Depth)

	count, err := s.CountByDepth(0)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// The single legal move from the opening drops its one seed into A's
	// own store (an extra turn for A), which leaves A's side empty; the
	// terminal sweep moves B's seed into B's store, so depth 1 holds one
	// terminal position.
	depth1, err := s.CountByDepth(1)
	require.NoError(t, err)
	require.Equal(t, 1, depth1)
}

// TestKalah2x1DeduplicatesTranspositions asserts the same reachable
// state is never recorded twice even when multiple move orders reach it,
// the forward-enumeration analogue of the store's own deduplication law.
func TestKalah2x1DeduplicatesTranspositions(t *testing.T) {
	pr := rules.Params{P: 2, S: 1}
	s, _ := runToCompletion(t, pr)

	seenTotal := 0
	for depth := uint16(0); ; depth++ {
		n, err := s.CountByDepth(depth)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		seenTotal += n

		recs, err := s.ScanByDepth(depth, 0, n)
		require.NoError(t, err)
		fps := make(map[uint64]bool, len(recs))
		for _, r := range recs {
			require.False(t, fps[r.Fingerprint], "duplicate fingerprint within a single depth level")
			fps[r.Fingerprint] = true
		}
	}
	require.Greater(t, seenTotal, 1)
}

// TestRunRespectsContextCancellation confirms a canceled context stops
// enumeration instead of running to completion.
func TestRunRespectsContextCancellation(t *testing.T) {
	pr := rules.Params{P: 3, S: 2}
	z := rules.NewZobrist(pr)
	s := store.NewMemStore()
	defer s.Close()

	d := New(Config{Params: pr, Zobrist: z, Store: s, WorkerCount: 1, ChunkSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Run(ctx)
	require.Error(t, err)
}
