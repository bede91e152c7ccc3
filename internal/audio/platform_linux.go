//go:build linux

package audio

import (
	"regexp"
	"strconv"
)

func PlatformCapture() CaptureConfig {
	return CaptureConfig{
		Command:       "arecord",
		DefaultDevice: "default",
		BuildArgs:     buildLinuxArgs,
	}
}

func buildLinuxArgs(device string, f Format) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(f.SampleRate),
		"-c", strconv.Itoa(f.Channels),
		"-t", "raw",
		"-q",
		"-",
	}
}

func PlatformEnum() EnumConfig {
	return EnumConfig{
		// No section scoping: card lines are unambiguous, and some arecord
		// builds localize or omit the section banner.
		Command:       []string{"arecord", "-l"},
		StrictPattern: regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		ParseStrict: func(matches []string) *Device {
			if len(matches) < 4 {
				return nil
			}
			return &Device{ID: "default:CARD=" + matches[2], Name: matches[3]}
		},
		LooseKeywords: []string{"mic", "audio", "capture"},
		ExcludeTokens: []string{"arecord", "alsa-lib"},
	}
}
