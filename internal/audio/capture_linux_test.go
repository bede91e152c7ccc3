//go:build linux

package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCaptureCommand_DefaultDevice(t *testing.T) {
	cmd, args, err := BuildCaptureCommand("", "", DefaultFormat())
	require.NoError(t, err)

	assert.Equal(t, "arecord", cmd)
	assert.Equal(t, []string{
		"-D", "default",
		"-f", "S16_LE",
		"-r", "16000",
		"-c", "1",
		"-t", "raw",
		"-q",
		"-",
	}, args)
}

func TestBuildCaptureCommand_ExplicitDevice(t *testing.T) {
	f := Format{SampleRate: 48000, Channels: 2, BitDepth: 16}
	cmd, args, err := BuildCaptureCommand("default:CARD=Headset", "", f)
	require.NoError(t, err)

	assert.Equal(t, "arecord", cmd)
	assert.Contains(t, args, "default:CARD=Headset")
	assert.Contains(t, args, "48000")
	assert.Contains(t, args, "2")
}

// A custom tool path only substitutes on FFmpeg platforms; ALSA capture
// always runs the arecord binary from PATH.
func TestBuildCaptureCommand_ToolPathIgnoredForALSA(t *testing.T) {
	cmd, _, err := BuildCaptureCommand("default", "/opt/ffmpeg/bin/ffmpeg", DefaultFormat())
	require.NoError(t, err)
	assert.Equal(t, "arecord", cmd)
}
