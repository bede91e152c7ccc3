// Package recorder orchestrates device resolution, subprocess capture,
// and voice-activity endpointing into a single recording API. A
// Recorder owns at most one capture session at a time; starting while a
// session is active fails fast and leaves the existing session intact.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kylin1zhang/voicecap/internal/audio"
	"github.com/kylin1zhang/voicecap/internal/eventlog"
	"github.com/kylin1zhang/voicecap/internal/notify"
	"github.com/kylin1zhang/voicecap/internal/util"
	"github.com/kylin1zhang/voicecap/internal/vad"
)

// Sentinel errors for recording operations.
var (
	// ErrSessionActive is returned by Start while a session exists.
	ErrSessionActive = errors.New("a recording session is already active")
	// ErrNoSession is returned by Stop when nothing is recording.
	ErrNoSession = errors.New("no active recording session")
	// ErrPermissionDenied indicates the OS refused microphone access.
	// Remediation (prompting privacy settings) is a caller concern.
	ErrPermissionDenied = errors.New("audio input permission denied")
)

// ReasonSilence is the auto-stop reason for endpointing-driven stops.
const ReasonSilence = "silence"

// trialCaptureDuration is how long the permission probe captures.
const trialCaptureDuration = 400 * time.Millisecond

// DeviceResolver discovers the default audio input device.
type DeviceResolver interface {
	ResolveDefaultInput(ctx context.Context) (string, error)
}

// Options configures one recording session. The callbacks are scoped to
// the session: they are replaced wholesale on every Start, so handlers
// never stack across repeated start/stop cycles.
type Options struct {
	// EnableVAD arms the endpointing engine for this session.
	EnableVAD bool
	// SilenceThresholdRMS is the normalized RMS silence threshold.
	// Required when EnableVAD is set; there is no default.
	SilenceThresholdRMS float64
	// SilenceDuration overrides how long smoothed energy must stay
	// below threshold before auto-stop (default 5s).
	SilenceDuration time.Duration
	// MinRecordingDuration overrides the initial guard window during
	// which endpointing is suppressed (default 3s).
	MinRecordingDuration time.Duration

	// OnData receives each captured chunk in arrival order.
	OnData func(chunk []byte)
	// OnAutoStop fires exactly once per session when the endpointing
	// engine detects sustained silence. It only signals; the caller
	// drives the actual stop through Stop, so user-initiated and
	// automatic termination share one stop path.
	OnAutoStop func(reason string)
}

// Status is a point-in-time view of the recorder.
type Status struct {
	Recording  bool   `json:"recording"`
	DeviceID   string `json:"device_id,omitempty"`
	Uptime     string `json:"uptime,omitempty"`
	VADEnabled bool   `json:"vad_enabled"`
	LastError  string `json:"last_error,omitempty"`
}

// Recorder composes the device resolver, capture backend, and
// endpointing engine. It is safe for concurrent use.
type Recorder struct {
	resolver   DeviceResolver
	backend    Backend
	format     audio.Format
	events     *eventlog.Logger
	webhookURL string

	mu        sync.Mutex
	busy      bool // start or permission probe in flight
	sess      *session
	lastError string
}

// session holds per-session state, created by Start and discarded by
// Stop or an unexpected subprocess exit.
type session struct {
	rec        *Recorder
	deviceID   string
	startedAt  time.Time
	detector   *vad.Detector
	onData     func([]byte)
	onAutoStop func(string)
	autoStop   sync.Once
	capture    Session
	closed     chan struct{}
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithEventLog attaches a session event logger.
func WithEventLog(l *eventlog.Logger) Option {
	return func(r *Recorder) { r.events = l }
}

// WithAutoStopWebhook sets a webhook notified on endpointing stops.
func WithAutoStopWebhook(url string) Option {
	return func(r *Recorder) { r.webhookURL = url }
}

// New creates a Recorder capturing in the given format.
func New(resolver DeviceResolver, backend Backend, format audio.Format, opts ...Option) *Recorder {
	r := &Recorder{
		resolver: resolver,
		backend:  backend,
		format:   format,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Format returns the capture format.
func (r *Recorder) Format() audio.Format {
	return r.format
}

// Status returns the current recorder status.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{LastError: r.lastError}
	if r.sess != nil {
		st.Recording = true
		st.DeviceID = r.sess.deviceID
		st.Uptime = time.Since(r.sess.startedAt).Truncate(time.Second).String()
		st.VADEnabled = r.sess.detector != nil
	}
	return st
}

// Start resolves the input device, launches capture, and optionally
// arms the endpointing engine. It returns once capture is confirmed
// started, and fails with ErrSessionActive if a session already exists,
// with no side effects on it.
func (r *Recorder) Start(ctx context.Context, opts Options) error {
	if err := r.acquire(); err != nil {
		return err
	}
	defer r.release()

	sess := &session{
		rec:        r,
		onData:     opts.OnData,
		onAutoStop: opts.OnAutoStop,
		closed:     make(chan struct{}),
	}

	if opts.EnableVAD {
		det, err := vad.NewDetector(vad.Config{
			ThresholdRMS:         opts.SilenceThresholdRMS,
			SilenceDuration:      opts.SilenceDuration,
			MinRecordingDuration: opts.MinRecordingDuration,
		})
		if err != nil {
			return util.WrapError("configure endpointing", err)
		}
		sess.detector = det
	}

	deviceID, err := r.resolver.ResolveDefaultInput(ctx)
	if err != nil {
		r.logEvent(eventlog.CaptureError, &eventlog.SessionDetails{Error: err.Error()})
		return util.WrapError("resolve input device", err)
	}
	sess.deviceID = deviceID
	r.logEvent(eventlog.DeviceResolved, &eventlog.SessionDetails{DeviceID: deviceID})

	// Arm before launch: chunks arriving during the start grace window
	// already count toward the session.
	sess.startedAt = time.Now()
	if sess.detector != nil {
		sess.detector.Arm(sess.startedAt)
	}

	capt, err := r.backend.Start(ctx, deviceID, r.format, sess.handleChunk)
	if err != nil {
		r.logEvent(eventlog.CaptureError, &eventlog.SessionDetails{DeviceID: deviceID, Error: err.Error()})
		if isPermissionError(err) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return util.WrapError("start capture", err)
	}
	sess.capture = capt

	r.mu.Lock()
	r.sess = sess
	r.lastError = ""
	r.mu.Unlock()

	go r.watch(sess)

	slog.Info("recording started",
		"device", deviceID,
		"sample_rate", r.format.SampleRate,
		"channels", r.format.Channels,
		"vad", sess.detector != nil)
	r.logEvent(eventlog.CaptureStarted, &eventlog.SessionDetails{DeviceID: deviceID})
	return nil
}

// Stop terminates the active session and returns the finalized buffer:
// the exact concatenation, in arrival order, of every chunk received
// since Start.
func (r *Recorder) Stop(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	sess := r.sess
	if sess == nil {
		r.mu.Unlock()
		return nil, ErrNoSession
	}
	r.sess = nil
	r.mu.Unlock()
	close(sess.closed)

	data, err := sess.capture.Stop(ctx)
	if err != nil {
		// The subprocess may have died in the window between our check
		// and the stop request; surface that as the real cause.
		select {
		case exitErr := <-sess.capture.Done():
			err = exitErr
		default:
		}
		r.setLastError(err)
		r.logEvent(eventlog.CaptureError, &eventlog.SessionDetails{DeviceID: sess.deviceID, Error: err.Error()})
		return nil, err
	}

	durationMs := time.Since(sess.startedAt).Milliseconds()
	slog.Info("recording stopped", "device", sess.deviceID, "bytes", len(data), "duration_ms", durationMs)
	r.logEvent(eventlog.CaptureStopped, &eventlog.SessionDetails{
		DeviceID:   sess.deviceID,
		DurationMs: durationMs,
		Bytes:      len(data),
	})
	return data, nil
}

// CheckPermission runs a sub-second trial capture purely to confirm
// device accessibility, independent of a real recording session. It
// refuses to probe while a session is active.
func (r *Recorder) CheckPermission(ctx context.Context) (bool, error) {
	if err := r.acquire(); err != nil {
		return false, err
	}
	defer r.release()

	deviceID, err := r.resolver.ResolveDefaultInput(ctx)
	if err != nil {
		return false, util.WrapError("resolve input device", err)
	}

	trial, err := r.backend.Start(ctx, deviceID, r.format, nil)
	if err != nil {
		r.logEvent(eventlog.PermissionCheck, &eventlog.SessionDetails{DeviceID: deviceID, Error: err.Error()})
		if isPermissionError(err) {
			return false, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return false, err
	}

	select {
	case <-time.After(trialCaptureDuration):
	case <-ctx.Done():
	}

	if _, err := trial.Stop(context.Background()); err != nil {
		select {
		case exitErr := <-trial.Done():
			err = exitErr
		default:
		}
		r.logEvent(eventlog.PermissionCheck, &eventlog.SessionDetails{DeviceID: deviceID, Error: err.Error()})
		if isPermissionError(err) {
			return false, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return false, err
	}

	r.logEvent(eventlog.PermissionCheck, &eventlog.SessionDetails{DeviceID: deviceID, Granted: true})
	return true, nil
}

// acquire claims the single-session slot without starting anything.
func (r *Recorder) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != nil || r.busy {
		return ErrSessionActive
	}
	r.busy = true
	return nil
}

func (r *Recorder) release() {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()
}

// watch reports an unexpected subprocess exit and discards the session,
// so a new Start is possible afterwards. The partial buffer is already
// discarded by the capture layer.
func (r *Recorder) watch(sess *session) {
	select {
	case err := <-sess.capture.Done():
		r.mu.Lock()
		if r.sess == sess {
			r.sess = nil
		}
		r.lastError = err.Error()
		r.mu.Unlock()
		r.logEvent(eventlog.CaptureError, &eventlog.SessionDetails{DeviceID: sess.deviceID, Error: err.Error()})
	case <-sess.closed:
	}
}

// handleChunk runs inline on the capture read loop: per-chunk work is
// O(chunk size), so no worker pool is needed.
func (s *session) handleChunk(chunk []byte) {
	if s.onData != nil {
		s.onData(chunk)
	}
	if s.detector == nil {
		return
	}
	if dec := s.detector.Process(chunk, time.Now()); dec.Endpoint {
		s.autoStop.Do(func() {
			s.rec.emitAutoStop(s, ReasonSilence)
		})
	}
}

// emitAutoStop delivers the one-shot auto-stop signal to the session
// listener, the event log, and the optional webhook.
func (r *Recorder) emitAutoStop(s *session, reason string) {
	durationMs := time.Since(s.startedAt).Milliseconds()
	threshold := s.detector.Config().ThresholdRMS

	slog.Info("auto-stop triggered", "reason", reason, "device", s.deviceID, "duration_ms", durationMs)
	r.logEvent(eventlog.AutoStop, &eventlog.SessionDetails{
		DeviceID:     s.deviceID,
		Reason:       reason,
		DurationMs:   durationMs,
		ThresholdRMS: threshold,
	})

	if r.webhookURL != "" {
		go func() {
			if err := notify.SendAutoStop(r.webhookURL, reason, s.deviceID, durationMs, threshold); err != nil {
				slog.Warn("auto-stop webhook failed", "error", err)
			}
		}()
	}

	if s.onAutoStop != nil {
		s.onAutoStop(reason)
	}
}

func (r *Recorder) setLastError(err error) {
	r.mu.Lock()
	r.lastError = err.Error()
	r.mu.Unlock()
}

func (r *Recorder) logEvent(t eventlog.EventType, details *eventlog.SessionDetails) {
	if r.events == nil {
		return
	}
	if err := r.events.Log(t, details); err != nil {
		slog.Warn("failed to write event log", "error", err)
	}
}

// permissionPatterns are stderr fragments that indicate the OS denied
// microphone access rather than a transient failure.
var permissionPatterns = []string{
	"permission denied",
	"operation not permitted",
	"access denied",
	"cannot open audio device",
	"audio access",
}

func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range permissionPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
