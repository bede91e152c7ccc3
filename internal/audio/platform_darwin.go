//go:build darwin

package audio

import (
	"regexp"
	"strconv"
)

func PlatformCapture() CaptureConfig {
	return CaptureConfig{
		Command:       "ffmpeg",
		DefaultDevice: ":0",
		UsesFFmpeg:    true,
		BuildArgs:     buildDarwinArgs,
	}
}

func buildDarwinArgs(device string, f Format) []string {
	return []string{
		"-f", "avfoundation",
		"-i", device,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", strconv.Itoa(f.Channels),
		"-ar", strconv.Itoa(f.SampleRate),
		"pipe:1",
	}
}

func PlatformEnum() EnumConfig {
	return EnumConfig{
		Command:      []string{"ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		SectionStart: "AVFoundation audio devices",
		// Video devices are listed before audio, so no end marker is
		// needed, but the strict pattern must stay section-scoped or it
		// would match the camera list.
		StrictPattern:   regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
		StrictInSection: true,
		ParseStrict: func(matches []string) *Device {
			if len(matches) < 3 {
				return nil
			}
			return &Device{ID: ":" + matches[1], Name: matches[2]}
		},
		// Older builds print bare "[N] Name" lines inside the section.
		LinePattern: regexp.MustCompile(`\[(\d+)\]\s*(.+)`),
		ParseLine: func(matches []string) *Device {
			if len(matches) < 3 {
				return nil
			}
			return &Device{ID: ":" + matches[1], Name: matches[2]}
		},
		LooseKeywords: []string{"microphone", "built-in", "audio"},
		ExcludeTokens: []string{"avfoundation"},
	}
}
