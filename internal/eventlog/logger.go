// Package eventlog records capture session events as JSON lines, one
// event per line, for diagnostics of unattended deployments: session
// starts and stops, automatic endpointing stops, and capture errors.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of a session event.
type EventType string

// Session event types.
const (
	DeviceResolved  EventType = "device_resolved"
	CaptureStarted  EventType = "capture_started"
	CaptureStopped  EventType = "capture_stopped"
	AutoStop        EventType = "auto_stop"
	CaptureError    EventType = "capture_error"
	PermissionCheck EventType = "permission_check"
)

// Event is a single log entry.
type Event struct {
	Timestamp time.Time       `json:"ts"`
	Type      EventType       `json:"type"`
	Details   *SessionDetails `json:"details,omitempty"`
}

// SessionDetails carries event-specific fields.
type SessionDetails struct {
	DeviceID     string  `json:"device_id,omitempty"`
	DurationMs   int64   `json:"duration_ms,omitempty"`
	Bytes        int     `json:"bytes,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	ThresholdRMS float64 `json:"threshold_rms,omitempty"`
	Granted      bool    `json:"granted,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Logger appends events to a JSON lines file. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewLogger creates an event logger writing to the given path, creating
// parent directories as needed.
func NewLogger(filePath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log appends an event stamped with the current time.
func (l *Logger) Log(eventType EventType, details *SessionDetails) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.encoder.Encode(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details:   details,
	})
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.filePath
}

// MaxReadLimit caps how many events ReadLast returns at once.
const MaxReadLimit = 500

// ReadLast returns up to n events in reverse chronological order
// (newest first). Malformed lines are skipped.
func ReadLast(filePath string, n int) ([]Event, error) {
	if n > MaxReadLimit {
		n = MaxReadLimit
	}
	if n <= 0 {
		return []Event{}, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck // read-only

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	events := make([]Event, 0, n)
	for i := len(lines) - 1; i >= 0 && len(events) < n; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
