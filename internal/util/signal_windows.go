//go:build windows

package util

import (
	"io"
	"os"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulStop requests graceful termination of a capture subprocess.
// SIGINT is not supported on Windows, so FFmpeg is asked to quit by
// writing 'q' to its stdin and closing the pipe.
func GracefulStop(_ *os.Process, stdin io.WriteCloser) error {
	if stdin == nil {
		return nil
	}
	_, _ = stdin.Write([]byte("q"))
	return stdin.Close()
}
