package retrograde

import (
	"testing"

	"github.com/hailam/kalahsolve/internal/rules"
	"github.com/hailam/kalahsolve/internal/store"
	"github.com/stretchr/testify/require"
)

// TestKalah4x2OpeningScoreMatchesPublishedValue is spec.md §8 scenario
// #3: Kalah(4,2) has opening_score = +6, against ~6·10⁵ reachable
// states. That size makes it a validation target rather than a routine
// unit test (SPEC_FULL.md §6), so it only runs outside `go test -short`,
// the same gate the teacher used for its own expensive perft depths in
// internal/board/perft_test.go.
func TestKalah4x2OpeningScoreMatchesPublishedValue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Kalah(4,2) full solve in -short mode")
	}

	pr := rules.Params{P: 4, S: 2}
	s, z := solveFully(t, pr)

	line, err := store.ExportOpeningLine(s, pr, z)
	require.NoError(t, err)
	require.Equal(t, 6, line.Score)
}
