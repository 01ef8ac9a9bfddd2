package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/audiolibrelab/homebooth/internal/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestRecordAndRecent(t *testing.T) {
	j := openTemp(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	reports := []recording.Report{
		{Path: "/r/response_1.mp4", Outcome: recording.OutcomeSaved, Status: recording.StatusStoppedClean, Bytes: 52000, StartedAt: base, FinishedAt: base.Add(30 * time.Second)},
		{Path: "/r/response_2.mp4", Outcome: recording.OutcomeTooSmall, Status: recording.StatusStoppedCorrupt, Bytes: 12, StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + 5*time.Second), Detail: "12 bytes"},
		{Path: "/r/response_3.mp4", Outcome: recording.OutcomeSaved, Status: recording.StatusStoppedClean, Bytes: 80000, StartedAt: base.Add(2 * time.Minute), FinishedAt: base.Add(2*time.Minute + 30*time.Second)},
	}
	for _, r := range reports {
		require.NoError(t, j.Record(r))
	}

	entries, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "/r/response_3.mp4", entries[0].Path)
	assert.Equal(t, "/r/response_1.mp4", entries[2].Path)

	second := entries[1]
	assert.Equal(t, recording.OutcomeTooSmall, second.Outcome)
	assert.Equal(t, recording.StatusStoppedCorrupt, second.Status)
	assert.Equal(t, int64(12), second.Bytes)
	assert.Equal(t, "12 bytes", second.Detail)
	assert.True(t, second.FinishedAt.Equal(base.Add(time.Minute+5*time.Second)))

	limited, err := j.Recent(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecord_FillsFinishTime(t *testing.T) {
	j := openTemp(t)
	fixed := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	require.NoError(t, j.Record(recording.Report{Path: "/r/x.mp4", Outcome: recording.OutcomeNoFileProduced, Status: recording.StatusFailed}))

	entries, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].FinishedAt.Equal(fixed))
}

func TestSummary(t *testing.T) {
	j := openTemp(t)

	s, err := j.Summary()
	require.NoError(t, err)
	assert.Zero(t, s.Total)

	for _, o := range []recording.Outcome{recording.OutcomeSaved, recording.OutcomeSaved, recording.OutcomeCorrupt} {
		require.NoError(t, j.Record(recording.Report{Path: "/r/x.mp4", Outcome: o, Status: recording.StatusStoppedClean}))
	}

	s, err = j.Summary()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Saved)
	assert.Equal(t, 1, s.ByOutcome[recording.OutcomeCorrupt])
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(recording.Report{Path: "/r/a.mp4", Outcome: recording.OutcomeSaved, Status: recording.StatusStoppedClean}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
