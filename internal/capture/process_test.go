//go:build !windows

package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shell scripts stand in for the capture tool. exec replaces the shell
// so signals land on the long-running command directly.
const (
	scriptStream = `printf 'abcdefgh'; exec sleep 30`
	scriptCrash  = `printf 'abcd'; sleep 1; echo 'device disconnected' >&2; exit 3`
	scriptFail   = `echo 'cannot open audio device' >&2; exit 1`

	// Flushes a full pipe's worth of data on SIGINT before exiting, the
	// way capture tools emit buffered audio on a graceful stop.
	scriptFlushOnStop = `trap 'head -c 262144 /dev/zero; exit 0' INT
printf 'abcd'
sleep 30 & wait`

	// Ignores SIGINT entirely; only a kill ends it. The sleep's stdout
	// is redirected so the pipe closes with the shell.
	scriptIgnoreStop = `trap '' INT
printf 'x'
sleep 30 > /dev/null 2>&1 &
wait`
)

func shProcess(script string, onData func([]byte)) *Process {
	return New("sh", []string{"-c", script}, onData, false)
}

func TestStart_SpawnFailure(t *testing.T) {
	p := New("definitely-not-a-real-binary-4yq", nil, nil, false)

	err := p.Start(context.Background())
	require.ErrorIs(t, err, ErrSpawnFailed)
	assert.Equal(t, StateStopped, p.State())
}

func TestStart_ExitInsideGraceWindow(t *testing.T) {
	p := shProcess(scriptFail, nil)

	err := p.Start(context.Background())
	require.ErrorIs(t, err, ErrSpawnFailed)
	// The tool's own stderr message is carried in the error.
	assert.Contains(t, err.Error(), "cannot open audio device")
	assert.Equal(t, StateStopped, p.State())
}

func TestStartStop_DeliversBuffer(t *testing.T) {
	var mu sync.Mutex
	var chunks [][]byte
	p := shProcess(scriptStream, func(chunk []byte) {
		mu.Lock()
		chunks = append(chunks, chunk)
		mu.Unlock()
	})

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateCapturing, p.State())

	data, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefgh"), data)
	assert.Equal(t, StateStopped, p.State())

	// The callback saw the same bytes in order.
	mu.Lock()
	var total []byte
	for _, c := range chunks {
		total = append(total, c...)
	}
	mu.Unlock()
	assert.Equal(t, []byte("abcdefgh"), total)
}

// Bytes the tool flushes in response to the stop signal must be in the
// returned buffer: the snapshot may only happen after the stdout pipe
// has drained to EOF, even when the data callback lags behind.
func TestStop_IncludesFinalFlush(t *testing.T) {
	p := shProcess(scriptFlushOnStop, func([]byte) {
		// Downstream per-chunk work keeps the reader behind the flush.
		time.Sleep(2 * time.Millisecond)
	})
	require.NoError(t, p.Start(context.Background()))

	data, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Len(t, data, 4+262144)
	assert.Equal(t, []byte("abcd"), data[:4])
}

// A tool that ignores the graceful signal is killed after the grace
// period; Stop still returns inside the absolute bound with whatever
// was captured.
func TestStop_ForcesKillWhenSignalIgnored(t *testing.T) {
	p := shProcess(scriptIgnoreStop, nil)
	require.NoError(t, p.Start(context.Background()))

	begin := time.Now()
	data, err := p.Stop(context.Background())
	elapsed := time.Since(begin)

	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
	assert.GreaterOrEqual(t, elapsed, StopGracePeriod)
	assert.Less(t, elapsed, StopTimeout)
	assert.Equal(t, StateStopped, p.State())
}

func TestStop_WithoutStart(t *testing.T) {
	p := shProcess(scriptStream, nil)

	_, err := p.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotCapturing)
}

func TestStart_Twice(t *testing.T) {
	p := shProcess(scriptStream, nil)
	require.NoError(t, p.Start(context.Background()))
	defer func() {
		_, _ = p.Stop(context.Background())
	}()

	err := p.Start(context.Background())
	require.Error(t, err)
}

func TestUnexpectedExit_DiscardsBuffer(t *testing.T) {
	p := shProcess(scriptCrash, nil)
	require.NoError(t, p.Start(context.Background()))

	select {
	case err := <-p.Done():
		require.ErrorIs(t, err, ErrUnexpectedExit)
		assert.Contains(t, err.Error(), "device disconnected")
	case <-time.After(5 * time.Second):
		t.Fatal("expected exit notification")
	}

	assert.Equal(t, StateStopped, p.State())

	// Stop after the crash fails; the partial buffer is never returned.
	_, err := p.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotCapturing)
}

func TestStart_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := shProcess(scriptStream, nil)
	err := p.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateStopped, p.State())
}
