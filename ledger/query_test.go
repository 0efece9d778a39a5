package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedInterleaved commits records for node-a and node-b alternating,
// starting with node-a at index 0.
func seedInterleaved(t *testing.T, l *Ledger, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		node := "node-a"
		if i%2 == 1 {
			node = "node-b"
		}
		_, err := l.AppendMetrics(admin, node, float64(100+i), float64(i), 1000, StatusNormal)
		require.NoError(t, err)
	}
}

func TestQueryReturnsMatchesInLedgerOrder(t *testing.T) {
	l := newTestLedger(t)
	seedInterleaved(t, l, 6) // a b a b a b

	got, err := l.QueryMetricsHistory("node-a", 0, 6)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 100.0, got[0].MemoryUsageMB)
	assert.Equal(t, 102.0, got[1].MemoryUsageMB)
	assert.Equal(t, 104.0, got[2].MemoryUsageMB)
	for _, rec := range got {
		assert.Equal(t, "node-a", rec.NodeID)
	}
}

func TestQueryPartialWindow(t *testing.T) {
	l := newTestLedger(t)
	seedInterleaved(t, l, 6)

	// Window [1,4) covers indices 1,2,3 => b a b.
	got, err := l.QueryMetricsHistory("node-a", 1, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 102.0, got[0].MemoryUsageMB)
}

func TestQueryZeroMatchesIsEmptyNotError(t *testing.T) {
	l := newTestLedger(t)
	seedInterleaved(t, l, 4)

	got, err := l.QueryMetricsHistory("node-z", 0, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryZeroCount(t *testing.T) {
	l := newTestLedger(t)
	seedInterleaved(t, l, 4)

	got, err := l.QueryMetricsHistory("node-a", 2, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryWindowExceedsLedger(t *testing.T) {
	l := newTestLedger(t)
	seedInterleaved(t, l, 4)

	_, err := l.QueryMetricsHistory("node-a", 0, 5)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = l.QueryMetricsHistory("node-a", 4, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = l.QueryMetricsHistory("node-a", -1, 2)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = l.QueryMetricsHistory("node-a", 1, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	// The failed queries changed nothing.
	assert.Equal(t, 4, l.MetricsCount())
}

func TestQueryHugeCountDoesNotWrap(t *testing.T) {
	l := newTestLedger(t)
	seedInterleaved(t, l, 1)

	// start+count would overflow int; the window still must not pass.
	_, err := l.QueryMetricsHistory("node-a", 1, math.MaxInt)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = l.QueryMetricsHistory("node-a", 0, math.MaxInt)
	assert.ErrorIs(t, err, ErrOutOfRange)

	// Start beyond the ledger is out of range even with count zero.
	_, err = l.QueryMetricsHistory("node-a", 2, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestQueryOnEmptyLedger(t *testing.T) {
	l := newTestLedger(t)

	got, err := l.QueryMetricsHistory("node-a", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = l.QueryMetricsHistory("node-a", 0, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
