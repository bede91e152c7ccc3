//go:build !windows

package util

import (
	"io"
	"os"
	"syscall"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulStop requests graceful termination of a capture subprocess.
// On Unix this sends SIGINT; the stdin pipe is unused.
func GracefulStop(p *os.Process, _ io.WriteCloser) error {
	if p == nil {
		return nil
	}
	return p.Signal(syscall.SIGINT)
}
