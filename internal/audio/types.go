// Package audio provides input device resolution and platform-specific
// capture command construction. Each platform supplies a capture command
// builder and a device enumeration config; the resolver parses the
// enumeration tool's text output with a prioritized pattern cascade.
package audio

import "errors"

// ErrDeviceNotFound is returned when no audio input device could be resolved.
var ErrDeviceNotFound = errors.New("no audio input device found")

// Device represents an available audio input device.
type Device struct {
	// ID is the device identifier in the form the capture command expects.
	ID string `json:"id"`
	// Name is the device display name.
	Name string `json:"name"`
}

// Format describes the raw PCM stream produced by the capture subprocess.
// Samples are always signed 16-bit little-endian.
type Format struct {
	SampleRate int // Hz
	Channels   int
	BitDepth   int // bits per sample, always 16
}

// Default audio format for downstream transcription consumers.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultBitDepth   = 16
)

// DefaultFormat returns the default capture format: 16kHz mono PCM16LE.
func DefaultFormat() Format {
	return Format{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
	}
}

// BytesPerSecond returns the raw byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * (f.BitDepth / 8)
}
