package recorder

import (
	"context"

	"github.com/kylin1zhang/voicecap/internal/audio"
	"github.com/kylin1zhang/voicecap/internal/capture"
)

// Backend launches capture sessions. The production implementation
// spawns the platform capture subprocess; tests substitute a scripted
// backend that emits deterministic chunks.
type Backend interface {
	// Start begins capturing from the given device, delivering chunks to
	// onData as they arrive. It returns once capture is confirmed started.
	Start(ctx context.Context, deviceID string, format audio.Format, onData func([]byte)) (Session, error)
}

// Session is a handle on one running capture.
type Session interface {
	// Stop terminates the capture (gracefully, then forcefully) and
	// returns the concatenated session buffer.
	Stop(ctx context.Context) ([]byte, error)
	// Done delivers the error of an unexpected mid-capture exit.
	Done() <-chan error
}

// processBackend captures through the platform subprocess.
type processBackend struct {
	toolPath string
}

// NewProcessBackend returns the subprocess-backed capture backend. A
// non-empty toolPath overrides the capture executable on platforms that
// capture via FFmpeg.
func NewProcessBackend(toolPath string) Backend {
	return &processBackend{toolPath: toolPath}
}

func (b *processBackend) Start(ctx context.Context, deviceID string, format audio.Format, onData func([]byte)) (Session, error) {
	cmdName, args, err := audio.BuildCaptureCommand(deviceID, b.toolPath, format)
	if err != nil {
		return nil, err
	}

	p := capture.New(cmdName, args, onData, audio.PlatformCapture().StdinQuit)
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	return p, nil
}
