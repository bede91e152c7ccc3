package audio

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform captures through FFmpeg,
	// in which case a configured FFmpeg path overrides Command.
	UsesFFmpeg bool

	// StdinQuit indicates graceful shutdown is requested by writing 'q'
	// to the subprocess stdin instead of sending a signal.
	StdinQuit bool

	// BuildArgs returns the command arguments for capturing raw PCM16LE
	// from the given device at the given format, streamed to stdout.
	BuildArgs func(device string, f Format) []string
}

// BuildCaptureCommand returns the command and arguments for audio capture.
// If device is empty, the platform default is used. The toolPath parameter
// overrides the capture executable on platforms that capture via FFmpeg.
func BuildCaptureCommand(device, toolPath string, f Format) (cmd string, args []string, err error) {
	cfg := PlatformCapture()

	if device == "" {
		device = cfg.DefaultDevice
	}
	if device == "" {
		return "", nil, ErrDeviceNotFound
	}

	command := cfg.Command
	if cfg.UsesFFmpeg && toolPath != "" {
		command = toolPath
	}

	return command, cfg.BuildArgs(device, f), nil
}
