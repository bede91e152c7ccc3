// Package vad implements energy-based voice-activity endpointing. A
// Detector consumes PCM16LE chunks, smooths per-chunk RMS over a
// fixed-capacity sliding window, and fires a one-shot endpoint signal
// after sustained low energy. Timing hysteresis suppresses flapping
// from transient noise.
package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/kylin1zhang/voicecap/internal/audio"
)

// Defaults for endpointing timing. The RMS threshold has no default:
// the appropriate value is signal-dependent and must be supplied by the
// caller.
const (
	DefaultWindowSize           = 10
	DefaultSilenceDuration      = 5 * time.Second
	DefaultMinRecordingDuration = 3 * time.Second
)

// ErrThresholdRequired is returned when no RMS threshold is configured.
var ErrThresholdRequired = errors.New("silence RMS threshold is required")

// Config holds per-instance endpointing parameters. Thresholds and
// durations are caller-supplied per session, never a hidden global.
type Config struct {
	// ThresholdRMS is the normalized RMS level below which a window is
	// considered silent. Required; typical values fall in 0.008-0.04.
	ThresholdRMS float64

	// SilenceDuration is how long smoothed energy must stay below the
	// threshold before the endpoint fires.
	SilenceDuration time.Duration

	// MinRecordingDuration suppresses endpointing near session start,
	// guarding against false triggers from initial ambient silence.
	MinRecordingDuration time.Duration

	// WindowSize is the sliding window capacity in chunks.
	WindowSize int
}

// Decision is the result of processing one chunk.
type Decision struct {
	// RMS is the energy of this chunk alone.
	RMS float64
	// MeanRMS is the window mean, valid only once WindowFull.
	MeanRMS float64
	// WindowFull reports whether the sliding window has filled; no
	// endpointing decision is made before then.
	WindowFull bool
	// Silent reports whether smoothed energy is below the threshold.
	Silent bool
	// SilenceFor is how long the current silence has lasted.
	SilenceFor time.Duration
	// Endpoint is the one-shot silence-detected signal.
	Endpoint bool
}

// Detector tracks endpointing state for one armed session. It is not
// safe for concurrent use; chunks are expected to arrive from a single
// data callback.
type Detector struct {
	cfg Config

	window []float64
	pos    int
	count  int

	startTime    time.Time
	silenceStart time.Time
}

// NewDetector validates the configuration, applies timing defaults, and
// returns an unarmed Detector.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.ThresholdRMS <= 0 {
		return nil, ErrThresholdRequired
	}
	if cfg.ThresholdRMS > 1 {
		return nil, fmt.Errorf("silence RMS threshold %v out of range (0, 1]", cfg.ThresholdRMS)
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = DefaultSilenceDuration
	}
	if cfg.MinRecordingDuration <= 0 {
		cfg.MinRecordingDuration = DefaultMinRecordingDuration
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}

	return &Detector{
		cfg:    cfg,
		window: make([]float64, cfg.WindowSize),
	}, nil
}

// Config returns the effective configuration after defaults.
func (d *Detector) Config() Config {
	return d.cfg
}

// Arm marks the session start and clears all detection state. The
// minimum-recording guard is measured from this instant.
func (d *Detector) Arm(now time.Time) {
	d.startTime = now
	d.reset()
}

// Process updates the detector with one PCM16LE chunk. now is passed in
// rather than read from the clock so decisions are deterministic under
// test. When the endpoint fires the detector resets itself, so the same
// instance can be re-armed without reallocation; the signal fires at
// most once per arming unless sustained silence recurs.
func (d *Detector) Process(chunk []byte, now time.Time) Decision {
	dec := Decision{RMS: audio.ChunkRMS(chunk)}

	d.window[d.pos] = dec.RMS
	d.pos = (d.pos + 1) % d.cfg.WindowSize
	if d.count < d.cfg.WindowSize {
		d.count++
	}

	// No decision until the window is full: a handful of chunks is not
	// enough smoothing to reject single-chunk spikes.
	if d.count < d.cfg.WindowSize {
		return dec
	}
	dec.WindowFull = true

	var sum float64
	for _, v := range d.window {
		sum += v
	}
	dec.MeanRMS = sum / float64(d.cfg.WindowSize)

	// Guard window: ambient silence right after start must not trigger.
	if now.Sub(d.startTime) < d.cfg.MinRecordingDuration {
		d.silenceStart = time.Time{}
		return dec
	}

	if dec.MeanRMS >= d.cfg.ThresholdRMS {
		// Speech cancels a pending countdown no matter how close it was
		// to firing.
		d.silenceStart = time.Time{}
		return dec
	}

	dec.Silent = true
	if d.silenceStart.IsZero() {
		d.silenceStart = now
	}
	dec.SilenceFor = now.Sub(d.silenceStart)

	if dec.SilenceFor >= d.cfg.SilenceDuration {
		dec.Endpoint = true
		d.reset()
	}
	return dec
}

// reset clears the window and silence state, keeping the session start.
func (d *Detector) reset() {
	for i := range d.window {
		d.window[i] = 0
	}
	d.pos = 0
	d.count = 0
	d.silenceStart = time.Time{}
}
