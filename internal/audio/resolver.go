package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// EnumTimeout bounds the device enumeration subprocess. Enumeration is
// never auto-retried; retry is the caller's responsibility.
const EnumTimeout = 10 * time.Second

// quotedToken matches any double-quoted token in enumeration output.
var quotedToken = regexp.MustCompile(`"([^"]+)"`)

// EnumConfig defines how to enumerate audio input devices on a platform.
// The resolver applies three pattern stages in priority order: a strict
// per-line device pattern, a section-scoped line pattern, and a loose
// quoted-token fallback. Enumeration tool output is unstable across
// versions and locales, so a single fixed regex would be brittle.
type EnumConfig struct {
	// Command and args to list devices.
	Command []string

	// SectionStart marks the beginning of the audio device section.
	// Empty means the whole output is in section.
	SectionStart string

	// SectionEnd marks the end of the audio device section (optional).
	SectionEnd string

	// StrictPattern is the primary per-line device regex.
	StrictPattern *regexp.Regexp

	// StrictInSection scopes StrictPattern to the audio section. Leave
	// false when the pattern is unambiguous on its own, so output
	// variants without a section header still match.
	StrictInSection bool

	// ParseStrict converts StrictPattern submatches to a Device.
	ParseStrict func(matches []string) *Device

	// LinePattern is the secondary regex for device lines following the
	// section header, for tool versions whose primary format differs.
	LinePattern *regexp.Regexp

	// ParseLine converts LinePattern submatches to a Device.
	ParseLine func(matches []string) *Device

	// LooseKeywords select quoted tokens in the last-resort stage; a token
	// qualifies when it contains any keyword (case-insensitive).
	LooseKeywords []string

	// ExcludeTokens disqualify quoted tokens that are tool-internal noise.
	ExcludeTokens []string

	// MakeLooseID converts a loose-matched token to a device ID.
	// Nil means the token is used verbatim.
	MakeLooseID func(token string) string
}

// Resolver discovers audio input devices by invoking the platform
// enumeration tool and pattern-matching its text output.
// It is safe for concurrent use.
type Resolver struct {
	cfg     EnumConfig
	timeout time.Duration

	mu         sync.Mutex
	lastOutput string
}

// NewResolver returns a Resolver for the current platform. A non-empty
// toolPath overrides the enumeration executable.
func NewResolver(toolPath string) *Resolver {
	cfg := PlatformEnum()
	if toolPath != "" && len(cfg.Command) > 0 {
		cfg.Command = append([]string{toolPath}, cfg.Command[1:]...)
	}
	return &Resolver{cfg: cfg, timeout: EnumTimeout}
}

// ResolveDefaultInput returns the identifier of the default audio input
// device, or ErrDeviceNotFound when enumeration yields no match. The raw
// tool output is preserved and retrievable via LastOutput for diagnostics.
func (r *Resolver) ResolveDefaultInput(ctx context.Context) (string, error) {
	devices, err := r.Devices(ctx)
	if err != nil {
		return "", err
	}
	return devices[0].ID, nil
}

// Devices enumerates available audio input devices.
func (r *Resolver) Devices(ctx context.Context) ([]Device, error) {
	if len(r.cfg.Command) == 0 {
		return nil, ErrDeviceNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.Command[0], r.cfg.Command[1:]...)
	output, runErr := cmd.CombinedOutput()

	r.mu.Lock()
	r.lastOutput = string(output)
	r.mu.Unlock()

	// Enumeration tools like ffmpeg -list_devices exit non-zero by design,
	// so the output is parsed whenever any was produced.
	if len(output) == 0 {
		if runErr != nil {
			return nil, fmt.Errorf("enumerate devices: %w", runErr)
		}
		return nil, r.notFound(output)
	}

	devices := r.parse(string(output))
	if len(devices) == 0 {
		return nil, r.notFound(output)
	}

	slog.Debug("resolved audio devices", "count", len(devices), "first", devices[0].ID)
	return devices, nil
}

// LastOutput returns the raw output of the most recent enumeration run.
func (r *Resolver) LastOutput() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOutput
}

// notFound wraps ErrDeviceNotFound with an excerpt of the raw output.
func (r *Resolver) notFound(output []byte) error {
	excerpt := strings.TrimSpace(string(output))
	if len(excerpt) > 200 {
		excerpt = excerpt[:200] + "..."
	}
	if excerpt == "" {
		return ErrDeviceNotFound
	}
	return fmt.Errorf("%w (tool output: %s)", ErrDeviceNotFound, excerpt)
}

// parse applies the pattern cascade and returns devices from the first
// stage that yields any match.
func (r *Resolver) parse(output string) []Device {
	lines := strings.Split(output, "\n")

	if devices := r.parseStrict(lines); len(devices) > 0 {
		return devices
	}
	if devices := r.parseSection(lines); len(devices) > 0 {
		return devices
	}
	return r.parseLoose(lines)
}

// parseStrict applies the primary device pattern within the audio section.
func (r *Resolver) parseStrict(lines []string) []Device {
	if r.cfg.StrictPattern == nil || r.cfg.ParseStrict == nil {
		return nil
	}

	var devices []Device
	scoped := r.cfg.StrictInSection && r.cfg.SectionStart != ""
	inSection := !scoped

	for _, line := range lines {
		if scoped && strings.Contains(line, r.cfg.SectionStart) {
			inSection = true
			continue
		}
		if scoped && r.cfg.SectionEnd != "" && strings.Contains(line, r.cfg.SectionEnd) {
			inSection = false
			continue
		}
		if !inSection || skipLine(line) {
			continue
		}

		matches := r.cfg.StrictPattern.FindStringSubmatch(line)
		if len(matches) > 0 {
			if dev := r.cfg.ParseStrict(matches); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}
	return devices
}

// parseSection matches device lines following the section header, for
// tool versions whose per-line format differs from the strict pattern.
func (r *Resolver) parseSection(lines []string) []Device {
	if r.cfg.SectionStart == "" || r.cfg.LinePattern == nil || r.cfg.ParseLine == nil {
		return nil
	}

	var devices []Device
	inSection := false

	for _, line := range lines {
		if strings.Contains(line, r.cfg.SectionStart) {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if r.cfg.SectionEnd != "" && strings.Contains(line, r.cfg.SectionEnd) {
			break
		}
		if skipLine(line) {
			continue
		}

		matches := r.cfg.LinePattern.FindStringSubmatch(line)
		if len(matches) > 0 {
			if dev := r.cfg.ParseLine(matches); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}
	return devices
}

// parseLoose is the last-resort stage: any quoted token containing an
// audio keyword, excluding tool-internal tokens. Trades false-positive
// risk for resilience against unknown output formats.
func (r *Resolver) parseLoose(lines []string) []Device {
	if len(r.cfg.LooseKeywords) == 0 {
		return nil
	}

	var devices []Device
	seen := make(map[string]bool)

	for _, line := range lines {
		if skipLine(line) {
			continue
		}
		for _, matches := range quotedToken.FindAllStringSubmatch(line, -1) {
			token := strings.TrimSpace(matches[1])
			if token == "" || seen[token] {
				continue
			}
			if !containsAny(token, r.cfg.LooseKeywords) || containsAny(token, r.cfg.ExcludeTokens) {
				continue
			}
			seen[token] = true

			id := token
			if r.cfg.MakeLooseID != nil {
				id = r.cfg.MakeLooseID(token)
			}
			devices = append(devices, Device{ID: id, Name: token})
		}
	}
	return devices
}

// skipLine filters alternative-name lines emitted by DirectShow listings.
func skipLine(line string) bool {
	return strings.Contains(line, "Alternative name")
}

// containsAny reports whether s contains any of the given substrings,
// ignoring case.
func containsAny(s string, subs []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
