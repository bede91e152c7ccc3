package eventlog

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	l, err := NewLogger(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestLogger_WriteAndReadBack(t *testing.T) {
	l, path := tempLogger(t)

	require.NoError(t, l.Log(DeviceResolved, &SessionDetails{DeviceID: "default"}))
	require.NoError(t, l.Log(CaptureStarted, &SessionDetails{DeviceID: "default"}))
	require.NoError(t, l.Log(AutoStop, &SessionDetails{
		DeviceID:     "default",
		Reason:       "silence",
		DurationMs:   8100,
		ThresholdRMS: 0.02,
	}))

	events, err := ReadLast(path, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Newest first.
	assert.Equal(t, AutoStop, events[0].Type)
	assert.Equal(t, "silence", events[0].Details.Reason)
	assert.Equal(t, int64(8100), events[0].Details.DurationMs)
	assert.Equal(t, CaptureStarted, events[1].Type)
	assert.Equal(t, DeviceResolved, events[2].Type)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestReadLast_Limit(t *testing.T) {
	l, path := tempLogger(t)
	for i := 0; i < 20; i++ {
		require.NoError(t, l.Log(CaptureStarted, &SessionDetails{DeviceID: strconv.Itoa(i)}))
	}

	events, err := ReadLast(path, 5)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, "19", events[0].Details.DeviceID)
	assert.Equal(t, "15", events[4].Details.DeviceID)
}

func TestReadLast_MissingFile(t *testing.T) {
	events, err := ReadLast(filepath.Join(t.TempDir(), "nope.jsonl"), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReadLast_SkipsMalformedLines(t *testing.T) {
	l, path := tempLogger(t)
	require.NoError(t, l.Log(CaptureStopped, &SessionDetails{Bytes: 1024}))
	require.NoError(t, l.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json at all\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := ReadLast(path, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, CaptureStopped, events[0].Type)
}

func TestReadLast_NonPositiveLimit(t *testing.T) {
	_, path := tempLogger(t)
	events, err := ReadLast(path, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}
