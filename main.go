// Package main provides a voice capture daemon that records audio from the
// default input device and auto-stops on sustained silence.
//
// Usage:
//
//	voicecap [-version]
//
// Configuration is read from VOICECAP_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/kylin1zhang/voicecap/internal/audio"
	"github.com/kylin1zhang/voicecap/internal/config"
	"github.com/kylin1zhang/voicecap/internal/eventlog"
	"github.com/kylin1zhang/voicecap/internal/recorder"
	"github.com/kylin1zhang/voicecap/internal/util"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	cfg, err := config.Load(context.Background())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.NewLogger())

	capCfg := audio.PlatformCapture()
	captureTool := util.ResolveToolPath(cfg.CaptureToolPath, capCfg.Command)
	if captureTool == "" {
		slog.Error("capture tool not found", "tool", capCfg.Command, "configured_path", cfg.CaptureToolPath)
		os.Exit(1)
	}
	slog.Info("capture tool found", "path", captureTool)

	enumTool := cfg.EnumToolPath
	if enumTool == "" && capCfg.Command == audio.PlatformEnum().Command[0] {
		// Enumeration and capture use the same tool on this platform.
		enumTool = captureTool
	}
	resolver := audio.NewResolver(enumTool)

	format := audio.Format{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		BitDepth:   16,
	}

	var opts []recorder.Option
	if cfg.EventLogPath != "" {
		events, err := eventlog.NewLogger(cfg.EventLogPath)
		if err != nil {
			slog.Error("failed to open event log", "path", cfg.EventLogPath, "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = events.Close()
		}()
		opts = append(opts, recorder.WithEventLog(events))
	}
	if cfg.AutoStopWebhookURL != "" {
		opts = append(opts, recorder.WithAutoStopWebhook(cfg.AutoStopWebhookURL))
	}

	rec := recorder.New(resolver, recorder.NewProcessBackend(captureTool), format, opts...)

	srv := NewServer(cfg, rec, resolver)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	srv.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Stop any in-flight recording so the subprocess does not outlive us.
	if _, err := rec.Stop(shutdownCtx); err != nil && !errors.Is(err, recorder.ErrNoSession) {
		slog.Error("error stopping recorder", "error", err)
	}

	slog.Info("shutdown complete")
}
