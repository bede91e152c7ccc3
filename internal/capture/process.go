// Package capture owns the external audio capture subprocess. A Process
// is single-use: it launches the platform capture command, streams raw
// PCM16LE chunks from its stdout to the data callback, and manages the
// Idle -> Starting -> Capturing -> Stopping -> Stopped lifecycle with
// two-stage graceful/forced termination.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/kylin1zhang/voicecap/internal/util"
)

// State represents the capture process lifecycle state.
type State string

const (
	// StateIdle indicates the process has not been started.
	StateIdle State = "idle"
	// StateStarting indicates the subprocess is launching.
	StateStarting State = "starting"
	// StateCapturing indicates the subprocess is streaming audio.
	StateCapturing State = "capturing"
	// StateStopping indicates termination has been requested.
	StateStopping State = "stopping"
	// StateStopped indicates the subprocess has exited.
	StateStopped State = "stopped"
)

const (
	// StartGraceWindow is how long the subprocess must stay alive after
	// launch before the start is considered successful.
	StartGraceWindow = 500 * time.Millisecond
	// StopGracePeriod is how long to wait for graceful exit before
	// escalating to a forced kill.
	StopGracePeriod = 2 * time.Second
	// StopTimeout bounds the worst-case latency of Stop.
	StopTimeout = 5 * time.Second

	// readBufSize is the stdout read buffer size. There is no additional
	// buffering beyond the OS pipe; chunks are delivered as read.
	readBufSize = 4096
)

// Sentinel errors for capture operations.
var (
	// ErrSpawnFailed indicates the subprocess could not be launched or
	// exited before the start grace window elapsed.
	ErrSpawnFailed = errors.New("capture process failed to start")
	// ErrUnexpectedExit indicates the subprocess died mid-capture. The
	// partial buffer is discarded so truncation cannot masquerade as a
	// clean result.
	ErrUnexpectedExit = errors.New("capture process exited unexpectedly")
	// ErrStopTimeout indicates even the forced kill failed to reap the
	// subprocess within bounds.
	ErrStopTimeout = errors.New("capture process did not stop in time")
	// ErrNotCapturing is returned by Stop when no capture is active.
	ErrNotCapturing = errors.New("no active capture")
)

// Process is a single-use handle on one capture subprocess.
type Process struct {
	command   string
	args      []string
	onData    func([]byte)
	stdinQuit bool

	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	stderr bytes.Buffer
	buf    bytes.Buffer

	readDone chan struct{}
	waitDone chan struct{}
	waitErr  error
	done     chan error
}

// New creates a Process for the given capture command. onData receives
// each chunk as it is read from the subprocess; it runs inline on the
// read loop and must be cheap. stdinQuit selects stdin-based graceful
// shutdown (Windows FFmpeg convention).
func New(command string, args []string, onData func([]byte), stdinQuit bool) *Process {
	return &Process{
		command:   command,
		args:      args,
		onData:    onData,
		stdinQuit: stdinQuit,
		state:     StateIdle,
		readDone:  make(chan struct{}),
		waitDone:  make(chan struct{}),
		done:      make(chan error, 1),
	}
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done delivers the error of an unexpected mid-capture exit. Nothing is
// sent for a clean Stop.
func (p *Process) Done() <-chan error {
	return p.done
}

// Start launches the capture subprocess and confirms it is alive after
// the start grace window. It returns ErrSpawnFailed if the process
// cannot launch or exits inside the window.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return fmt.Errorf("capture already started (state %s)", p.state)
	}
	p.state = StateStarting
	p.mu.Unlock()

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, p.command, p.args...)
	cmd.Stderr = &p.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		p.setState(StateStopped)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	var stdin io.WriteCloser
	if p.stdinQuit {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			cancel()
			p.setState(StateStopped)
			return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
		}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		p.setState(StateStopped)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.cancel = cancel
	p.stdin = stdin
	p.mu.Unlock()

	slog.Info("capture process started", "command", p.command, "pid", cmd.Process.Pid)

	go p.readLoop(stdout)
	go p.wait()

	select {
	case <-p.waitDone:
		p.setState(StateStopped)
		return p.spawnError()
	case <-ctx.Done():
		cancel()
		p.setState(StateStopped)
		return ctx.Err()
	case <-time.After(StartGraceWindow):
	}

	p.mu.Lock()
	if p.state == StateStarting {
		p.state = StateCapturing
	}
	p.mu.Unlock()
	return nil
}

// Stop requests graceful termination, escalates to a forced kill after
// the grace period, and returns the session's concatenated byte buffer.
// Calling Stop with no active capture is an error.
func (p *Process) Stop(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	if p.state != StateCapturing {
		state := p.state
		p.mu.Unlock()
		return nil, fmt.Errorf("%w (state %s)", ErrNotCapturing, state)
	}
	p.state = StateStopping
	proc := p.cmd.Process
	stdin := p.stdin
	p.mu.Unlock()

	if err := util.GracefulStop(proc, stdin); err != nil {
		slog.Warn("failed to request graceful stop", "error", err)
	}

	select {
	case <-p.waitDone:
	case <-ctx.Done():
		if err := p.forceKill(); err != nil {
			p.setState(StateStopped)
			return nil, err
		}
	case <-time.After(StopGracePeriod):
		slog.Warn("capture did not stop in time, forcing kill", "pid", proc.Pid)
		if err := p.forceKill(); err != nil {
			p.setState(StateStopped)
			return nil, err
		}
	}

	p.mu.Lock()
	p.state = StateStopped
	data := bytes.Clone(p.buf.Bytes())
	p.mu.Unlock()

	slog.Info("capture process stopped", "bytes", len(data))
	return data, nil
}

// forceKill kills the subprocess and waits for it to be reaped within
// the remaining stop budget.
func (p *Process) forceKill() error {
	p.cancel()
	select {
	case <-p.waitDone:
		return nil
	case <-time.After(StopTimeout - StopGracePeriod):
		return ErrStopTimeout
	}
}

// readLoop delivers stdout chunks to the data callback and accumulates
// the session buffer. Chunk ordering follows read order; chunks are
// copied so they stay immutable once emitted. readDone closes only
// after the pipe is drained to EOF, so a buffer snapshot taken after it
// cannot miss bytes the tool flushed on its way out.
func (p *Process) readLoop(stdout io.Reader) {
	defer close(p.readDone)

	buf := make([]byte, readBufSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			p.mu.Lock()
			p.buf.Write(chunk)
			p.mu.Unlock()

			if p.onData != nil {
				p.onData(chunk)
			}
		}
		if err != nil {
			return
		}
	}
}

// wait reaps the subprocess. Wait closes the stdout pipe read end, so
// it must not run until the read loop has drained to EOF; gating on
// readDone gives Stop a happens-before from the last stdout byte to the
// waitDone snapshot. An exit while Capturing is a hard error: the
// partial buffer is discarded and ErrUnexpectedExit is delivered on
// Done, so the caller never mistakes truncated data for a clean stop.
func (p *Process) wait() {
	<-p.readDone
	err := p.cmd.Wait()

	p.mu.Lock()
	p.waitErr = err
	unexpected := p.state == StateCapturing
	if unexpected {
		p.state = StateStopped
		p.buf.Reset()
	}
	stderr := p.stderr.String()
	p.mu.Unlock()

	close(p.waitDone)

	if unexpected {
		detail := util.ExtractLastError(stderr)
		if detail == "" && err != nil {
			detail = err.Error()
		}
		slog.Error("capture process exited unexpectedly", "error", detail)
		p.done <- fmt.Errorf("%w: %s", ErrUnexpectedExit, detail)
	}
}

// spawnError builds the error for a subprocess that died inside the
// start grace window, preferring the tool's own stderr message.
func (p *Process) spawnError() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	detail := util.ExtractLastError(p.stderr.String())
	if detail == "" && p.waitErr != nil {
		detail = p.waitErr.Error()
	}
	if detail == "" {
		return ErrSpawnFailed
	}
	return fmt.Errorf("%w: %s", ErrSpawnFailed, detail)
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
