package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

func TestWindow_SortsMostRecentFirst(t *testing.T) {
	signals := []model.Signal{
		sig("Old", withDate("2025-01-05")),
		sig("New", withDate("2025-06-20")),
		sig("Mid", withDate("2025-03-11")),
	}

	out := Window(signals, 0, 10)
	require.Len(t, out, 3)
	assert.Equal(t, "New", out[0].Institution)
	assert.Equal(t, "Mid", out[1].Institution)
	assert.Equal(t, "Old", out[2].Institution)
}

func TestWindow_BlankDatesSortLast(t *testing.T) {
	signals := []model.Signal{
		sig("Undated"),
		sig("Dated", withDate("2025-02-01")),
	}

	out := Window(signals, 0, 10)
	assert.Equal(t, "Dated", out[0].Institution)
	assert.Equal(t, "Undated", out[1].Institution)
}

func TestWindow_RunTimestampBreaksTies(t *testing.T) {
	a := sig("Earlier Run", withDate("2025-05-01"))
	a.RunTimestamp = "2025-05-02T08:00:00Z"
	b := sig("Later Run", withDate("2025-05-01"))
	b.RunTimestamp = "2025-05-03T08:00:00Z"

	out := Window([]model.Signal{a, b}, 0, 10)
	assert.Equal(t, "Later Run", out[0].Institution)
}

func TestWindow_TruncatesToMax(t *testing.T) {
	signals := []model.Signal{
		sig("A", withDate("2025-06-01")),
		sig("B", withDate("2025-05-01")),
		sig("C", withDate("2025-04-01")),
	}

	out := Window(signals, 0, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Institution)
	assert.Equal(t, "B", out[1].Institution)
}

func TestWindow_BelowMinimumReturnsWhatExists(t *testing.T) {
	signals := []model.Signal{sig("Only", withDate("2025-06-01"))}

	out := Window(signals, 20, 25)
	assert.Len(t, out, 1, "no fabrication to reach the minimum")
}

func TestWindow_DoesNotMutateInput(t *testing.T) {
	signals := []model.Signal{
		sig("Old", withDate("2025-01-05")),
		sig("New", withDate("2025-06-20")),
	}

	_ = Window(signals, 0, 10)
	assert.Equal(t, "Old", signals[0].Institution)
}
