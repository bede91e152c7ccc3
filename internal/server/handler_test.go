package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylin1zhang/voicecap/internal/audio"
	"github.com/kylin1zhang/voicecap/internal/config"
	"github.com/kylin1zhang/voicecap/internal/recorder"
)

func newTestClient() *Client {
	return &Client{send: make(chan any, sendQueueSize)}
}

// nextResult drains one queued response from the client.
func nextResult(t *testing.T, c *Client) WSResult {
	t.Helper()
	select {
	case msg := <-c.send:
		res, ok := msg.(WSResult)
		require.True(t, ok, "expected WSResult, got %T", msg)
		return res
	default:
		t.Fatal("no queued response")
		return WSResult{}
	}
}

func TestDecodeAndValidate(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		c := newTestClient()
		cmd := WSCommand{Type: "recording/start", Data: json.RawMessage(`{"enable_vad":true,"silence_threshold_rms":0.02}`)}

		var req StartRequest
		require.True(t, decodeAndValidate(cmd, c, &req))
		assert.True(t, req.EnableVAD)
		require.NotNil(t, req.SilenceThresholdRMS)
		assert.Equal(t, 0.02, *req.SilenceThresholdRMS)
	})

	t.Run("empty payload uses zero values", func(t *testing.T) {
		c := newTestClient()
		var req StartRequest
		require.True(t, decodeAndValidate(WSCommand{Type: "recording/start"}, c, &req))
		assert.False(t, req.EnableVAD)
		assert.Nil(t, req.SilenceThresholdRMS)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		c := newTestClient()
		cmd := WSCommand{Type: "recording/start", ID: "7", Data: json.RawMessage(`{nope`)}

		var req StartRequest
		require.False(t, decodeAndValidate(cmd, c, &req))
		res := nextResult(t, c)
		assert.False(t, res.Success)
		assert.Equal(t, "7", res.ID)
		assert.Contains(t, res.Error, "invalid JSON")
	})

	t.Run("validation failure names the json field", func(t *testing.T) {
		c := newTestClient()
		cmd := WSCommand{Type: "recording/start", Data: json.RawMessage(`{"silence_threshold_rms":2}`)}

		var req StartRequest
		require.False(t, decodeAndValidate(cmd, c, &req))
		res := nextResult(t, c)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "silence_threshold_rms")
	})

	t.Run("events limit bounds", func(t *testing.T) {
		c := newTestClient()
		cmd := WSCommand{Type: "events/recent", Data: json.RawMessage(`{"limit":10000}`)}

		var req EventsRequest
		require.False(t, decodeAndValidate(cmd, c, &req))
	})
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{name: "no origin header", origin: "", host: "example.com:8089", want: true},
		{name: "localhost", origin: "http://localhost:3000", host: "example.com:8089", want: true},
		{name: "loopback v4", origin: "http://127.0.0.1:8089", host: "example.com:8089", want: true},
		{name: "private address", origin: "http://192.168.1.20:8089", host: "example.com:8089", want: true},
		{name: "same host", origin: "http://capture.example.com", host: "capture.example.com:8089", want: true},
		{name: "public origin", origin: "https://evil.example.org", host: "capture.example.com:8089", want: false},
		{name: "unparseable origin", origin: "http://bad host/", host: "example.com:8089", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := http.NewRequest(http.MethodGet, "/ws", nil)
			require.NoError(t, err)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(r))
		})
	}
}

// stubResolver and stubBackend satisfy the recorder interfaces so
// command dispatch can be exercised without a capture subprocess.
type stubResolver struct{}

func (stubResolver) ResolveDefaultInput(context.Context) (string, error) { return "default", nil }

type stubSession struct{ done chan error }

func (s *stubSession) Stop(context.Context) ([]byte, error) { return []byte{1, 2}, nil }
func (s *stubSession) Done() <-chan error                   { return s.done }

type stubBackend struct{}

func (stubBackend) Start(context.Context, string, audio.Format, func([]byte)) (recorder.Session, error) {
	return &stubSession{done: make(chan error, 1)}, nil
}

func newTestHandler() (*CommandHandler, *Hub) {
	cfg := &config.Config{Port: 8089, SampleRate: 16000, Channels: 1, SilenceDurationMs: 5000, MinRecordingDurationMs: 3000}
	rec := recorder.New(stubResolver{}, stubBackend{}, audio.DefaultFormat())
	hub := NewHub()
	return NewCommandHandler(cfg, rec, audio.NewResolver(""), hub), hub
}

func TestHandle_Status(t *testing.T) {
	h, _ := newTestHandler()
	c := newTestClient()

	h.Handle(WSCommand{Type: "status", ID: "1"}, c)

	res := nextResult(t, c)
	assert.True(t, res.Success)
	assert.Equal(t, "status", res.Type)
	assert.Equal(t, "1", res.ID)

	st, ok := res.Data.(StatusResult)
	require.True(t, ok)
	assert.Equal(t, 16000, st.SampleRate)
	assert.False(t, st.Recorder.Recording)
}

func TestHandle_UnknownCommand(t *testing.T) {
	h, _ := newTestHandler()
	c := newTestClient()

	h.Handle(WSCommand{Type: "bogus/thing"}, c)

	res := nextResult(t, c)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown command")
}

func TestHandle_StartRejectsBadThreshold(t *testing.T) {
	h, _ := newTestHandler()
	c := newTestClient()

	h.Handle(WSCommand{
		Type: "recording/start",
		Data: json.RawMessage(`{"enable_vad":true,"silence_threshold_rms":5}`),
	}, c)

	res := nextResult(t, c)
	assert.False(t, res.Success)
}

// VAD without any threshold, request or daemon config, must fail before
// a session starts.
func TestHandle_StartVADWithoutThreshold(t *testing.T) {
	h, _ := newTestHandler()
	c := newTestClient()

	h.Handle(WSCommand{
		Type: "recording/start",
		Data: json.RawMessage(`{"enable_vad":true}`),
	}, c)

	res := nextResult(t, c)
	assert.False(t, res.Success)
	assert.False(t, h.rec.Status().Recording)
}

func TestHandle_StartStopRoundTrip(t *testing.T) {
	h, _ := newTestHandler()
	c := newTestClient()

	h.Handle(WSCommand{Type: "recording/start", ID: "a"}, c)
	res := nextResult(t, c)
	require.True(t, res.Success)
	assert.True(t, h.rec.Status().Recording)

	h.Handle(WSCommand{Type: "recording/stop", ID: "b"}, c)
	res = nextResult(t, c)
	require.True(t, res.Success)
	stop, ok := res.Data.(StopResult)
	require.True(t, ok)
	assert.Equal(t, 2, stop.Bytes)
	assert.Equal(t, []byte{1, 2}, stop.PCM)
	assert.False(t, h.rec.Status().Recording)
}

func TestHandle_EventsWithoutLogConfigured(t *testing.T) {
	h, _ := newTestHandler()
	c := newTestClient()

	h.Handle(WSCommand{Type: "events/recent"}, c)

	res := nextResult(t, c)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "event log not configured")
}
