package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/kylin1zhang/voicecap/internal/audio"
	"github.com/kylin1zhang/voicecap/internal/config"
	"github.com/kylin1zhang/voicecap/internal/eventlog"
	"github.com/kylin1zhang/voicecap/internal/notify"
	"github.com/kylin1zhang/voicecap/internal/recorder"
)

const (
	// levelInterval throttles pushed level updates.
	levelInterval = 100 * time.Millisecond
	// stopBudget must exceed the capture layer's absolute stop timeout.
	stopBudget = 10 * time.Second
	// permissionBudget bounds the trial capture round trip.
	permissionBudget = 15 * time.Second
	// defaultEventLimit is how many events events/recent returns when
	// the request does not say.
	defaultEventLimit = 50
)

// WSEvent is a pushed session event.
type WSEvent struct {
	Type   string `json:"type"` // always "event"
	Event  string `json:"event"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// WSLevels is a pushed audio level update.
type WSLevels struct {
	Type string  `json:"type"` // always "levels"
	RMS  float64 `json:"rms"`
}

// StopResult is the recording/stop response body. PCM is PCM16LE,
// base64-encoded by JSON marshaling.
type StopResult struct {
	Bytes int    `json:"bytes"`
	PCM   []byte `json:"pcm"`
}

// StatusResult is the status response body.
type StatusResult struct {
	Platform   string          `json:"platform"`
	SampleRate int             `json:"sample_rate"`
	Channels   int             `json:"channels"`
	Recorder   recorder.Status `json:"recorder"`
}

// CommandHandler processes WebSocket commands against the recorder.
type CommandHandler struct {
	cfg      *config.Config
	rec      *recorder.Recorder
	resolver *audio.Resolver
	hub      *Hub

	mu        sync.Mutex
	lastLevel time.Time
}

// NewCommandHandler creates a command handler.
func NewCommandHandler(cfg *config.Config, rec *recorder.Recorder, resolver *audio.Resolver, hub *Hub) *CommandHandler {
	return &CommandHandler{cfg: cfg, rec: rec, resolver: resolver, hub: hub}
}

// ServeWS upgrades the connection and runs the client read loop.
func (h *CommandHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := UpgradeConnection(w, r)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := h.hub.Add(conn)
	defer func() {
		h.hub.Remove(client)
		_ = conn.Close()
	}()

	for {
		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		h.Handle(cmd, client)
	}
}

// Handle processes one command. Commands use slash-style format:
// namespace/action (e.g., "recording/start", "devices/list").
func (h *CommandHandler) Handle(cmd WSCommand, c *Client) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")

	switch namespace {
	case "recording":
		h.handleRecording(cmd, c, action)
	case "devices":
		h.handleDevices(cmd, c, action)
	case "events":
		h.handleEvents(cmd, c)
	case "webhook":
		h.handleWebhook(cmd, c)
	case "status":
		sendResult(c, cmd, h.status())
	default:
		sendError(c, cmd, errors.New("unknown command: "+cmd.Type))
	}
}

func (h *CommandHandler) handleRecording(cmd WSCommand, c *Client, action string) {
	switch action {
	case "start":
		var req StartRequest
		if !decodeAndValidate(cmd, c, &req) {
			return
		}
		if err := h.startRecording(req); err != nil {
			sendError(c, cmd, err)
			return
		}
		h.hub.Broadcast(WSEvent{Type: "event", Event: "started"})
		sendResult(c, cmd, nil)

	case "stop":
		ctx, cancel := context.WithTimeout(context.Background(), stopBudget)
		defer cancel()

		data, err := h.rec.Stop(ctx)
		if err != nil {
			h.hub.Broadcast(WSEvent{Type: "event", Event: "stopped", Error: err.Error()})
			sendError(c, cmd, err)
			return
		}
		h.hub.Broadcast(WSEvent{Type: "event", Event: "stopped"})
		sendResult(c, cmd, StopResult{Bytes: len(data), PCM: data})

	case "permission":
		ctx, cancel := context.WithTimeout(context.Background(), permissionBudget)
		defer cancel()

		granted, err := h.rec.CheckPermission(ctx)
		if err != nil && !errors.Is(err, recorder.ErrPermissionDenied) {
			sendError(c, cmd, err)
			return
		}
		sendResult(c, cmd, map[string]bool{"granted": granted})

	case "status":
		sendResult(c, cmd, h.status())

	default:
		sendError(c, cmd, errors.New("unknown command: "+cmd.Type))
	}
}

// startRecording resolves per-session endpointing parameters from the
// request with daemon config as fallback, then starts the session with
// hub-broadcasting listeners.
func (h *CommandHandler) startRecording(req StartRequest) error {
	opts := recorder.Options{
		EnableVAD:            req.EnableVAD,
		SilenceThresholdRMS:  h.cfg.SilenceThresholdRMS,
		SilenceDuration:      h.cfg.SilenceDuration(),
		MinRecordingDuration: h.cfg.MinRecordingDuration(),
		OnData:               h.pushLevels,
		OnAutoStop: func(reason string) {
			h.hub.Broadcast(WSEvent{Type: "event", Event: "auto_stop", Reason: reason})
		},
	}
	if req.SilenceThresholdRMS != nil {
		opts.SilenceThresholdRMS = *req.SilenceThresholdRMS
	}
	if req.SilenceDurationMs != nil {
		opts.SilenceDuration = time.Duration(*req.SilenceDurationMs) * time.Millisecond
	}
	if req.MinRecordingDurationMs != nil {
		opts.MinRecordingDuration = time.Duration(*req.MinRecordingDurationMs) * time.Millisecond
	}

	return h.rec.Start(context.Background(), opts)
}

// pushLevels broadcasts chunk energy to clients, throttled so a chunk
// storm does not flood the sockets.
func (h *CommandHandler) pushLevels(chunk []byte) {
	h.mu.Lock()
	if time.Since(h.lastLevel) < levelInterval {
		h.mu.Unlock()
		return
	}
	h.lastLevel = time.Now()
	h.mu.Unlock()

	h.hub.Broadcast(WSLevels{Type: "levels", RMS: audio.ChunkRMS(chunk)})
}

func (h *CommandHandler) handleDevices(cmd WSCommand, c *Client, action string) {
	ctx, cancel := context.WithTimeout(context.Background(), audio.EnumTimeout)
	defer cancel()

	switch action {
	case "list":
		devices, err := h.resolver.Devices(ctx)
		if err != nil {
			sendError(c, cmd, err)
			return
		}
		sendResult(c, cmd, devices)
	case "resolve":
		deviceID, err := h.resolver.ResolveDefaultInput(ctx)
		if err != nil {
			sendError(c, cmd, err)
			return
		}
		sendResult(c, cmd, map[string]string{"device_id": deviceID})
	default:
		sendError(c, cmd, errors.New("unknown command: "+cmd.Type))
	}
}

func (h *CommandHandler) handleEvents(cmd WSCommand, c *Client) {
	var req EventsRequest
	if !decodeAndValidate(cmd, c, &req) {
		return
	}
	if h.cfg.EventLogPath == "" {
		sendError(c, cmd, errors.New("event log not configured"))
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultEventLimit
	}
	events, err := eventlog.ReadLast(h.cfg.EventLogPath, limit)
	if err != nil {
		sendError(c, cmd, err)
		return
	}
	sendResult(c, cmd, events)
}

func (h *CommandHandler) handleWebhook(cmd WSCommand, c *Client) {
	var req WebhookTestRequest
	if !decodeAndValidate(cmd, c, &req) {
		return
	}

	url := req.URL
	if url == "" {
		url = h.cfg.AutoStopWebhookURL
	}
	if err := notify.SendTest(url); err != nil {
		sendError(c, cmd, err)
		return
	}
	sendResult(c, cmd, nil)
}

func (h *CommandHandler) status() StatusResult {
	return StatusResult{
		Platform:   runtime.GOOS,
		SampleRate: h.cfg.SampleRate,
		Channels:   h.cfg.Channels,
		Recorder:   h.rec.Status(),
	}
}
