//go:build windows

package audio

import (
	"regexp"
	"strconv"
	"strings"
)

func PlatformCapture() CaptureConfig {
	return CaptureConfig{
		Command:    "ffmpeg",
		UsesFFmpeg: true,
		// No safe default device on Windows; the resolver must pick one.
		DefaultDevice: "",
		StdinQuit:     true,
		BuildArgs:     buildWindowsArgs,
	}
}

// buildWindowsArgs omits -nostdin so graceful shutdown can be requested
// by writing 'q' to stdin, since SIGINT is not supported on Windows.
func buildWindowsArgs(device string, f Format) []string {
	return []string{
		"-f", "dshow",
		"-i", device,
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
		Command: []string{"ffmpeg", "-hide_banner", "-list_devices", "true", "-f", "dshow", "-i", "dummy"},
		// FFmpeg versions vary: some print a "DirectShow audio devices"
		// header, others only tag lines with "(audio)". The strict stage
		// matches the tag, the section stage covers header-style output,
		// and the loose stage catches anything quoted that looks like a
		// microphone.
		StrictPattern: regexp.MustCompile(`"([^"]+)"\s*\(audio\)`),
		ParseStrict: func(matches []string) *Device {
			if len(matches) < 2 {
				return nil
			}
			name := strings.TrimSpace(matches[1])
			return &Device{ID: "audio=" + name, Name: name}
		},
		SectionStart: "DirectShow audio devices",
		SectionEnd:   "DirectShow video devices",
		LinePattern:  regexp.MustCompile(`"([^"]+)"`),
		ParseLine: func(matches []string) *Device {
			if len(matches) < 2 {
				return nil
			}
			name := strings.TrimSpace(matches[1])
			return &Device{ID: "audio=" + name, Name: name}
		},
		LooseKeywords: []string{"microphone", "mic", "audio"},
		ExcludeTokens: []string{"dshow", "dummy", "@device"},
		MakeLooseID:   func(token string) string { return "audio=" + token },
	}
}
