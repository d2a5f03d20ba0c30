package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/capturenode/cmd"
	"github.com/smazurov/capturenode/internal/capture"
	"github.com/smazurov/capturenode/internal/config"
	"github.com/smazurov/capturenode/internal/events"
	"github.com/smazurov/capturenode/internal/logging"
	"github.com/smazurov/capturenode/internal/metrics"
	"github.com/smazurov/capturenode/internal/systemd"
	"github.com/smazurov/capturenode/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"capturenode.toml"`

	// FFmpeg settings
	FfmpegBinary string `help:"FFmpeg executable" default:"ffmpeg" toml:"ffmpeg.binary" env:"FFMPEG_BINARY"`

	// Capture settings
	CaptureStopTimeout      string `help:"Grace period after SIGTERM" default:"10s" toml:"capture.stop_timeout" env:"CAPTURE_STOP_TIMEOUT"`
	CaptureKillTimeout      string `help:"Wait after SIGKILL before giving up" default:"5s" toml:"capture.kill_timeout" env:"CAPTURE_KILL_TIMEOUT"`
	CaptureMaxLineBytes     int    `help:"Longest progress line accepted" default:"65536" toml:"capture.max_line_bytes" env:"CAPTURE_MAX_LINE_BYTES"`
	CaptureSubscriberBuffer int    `help:"Progress records buffered per subscriber" default:"64" toml:"capture.subscriber_buffer" env:"CAPTURE_SUBSCRIBER_BUFFER"`
	CaptureCapturesFile     string `help:"Capture definitions file" default:"captures.toml" toml:"capture.captures_file" env:"CAPTURE_CAPTURES_FILE"`
	CaptureWatch            bool   `help:"Reload capture definitions on change" default:"true" toml:"capture.watch" env:"CAPTURE_WATCH"`

	// Metrics settings
	MetricsListen string `help:"Prometheus listen address, empty to disable" default:":9464" toml:"metrics.listen" env:"METRICS_LISTEN"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture string `help:"Supervisor logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingFfmpeg  string `help:"FFmpeg output logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingConfig  string `help:"Config logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		loadErr := config.LoadConfig(opts, cli.Root())

		// Modules without an option of their own ("main", "reconcile") are
		// only read from the [logging] table.
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		loggingConfig.Modules["capture"] = opts.LoggingCapture
		loggingConfig.Modules["ffmpeg"] = opts.LoggingFfmpeg
		loggingConfig.Modules["config"] = opts.LoggingConfig
		logging.Initialize(loggingConfig)
		logger := logging.GetLogger("main")
		if loadErr != nil {
			logger.Warn("Failed to load config", "error", loadErr)
		}

		stopTimeout := parseDuration(opts.CaptureStopTimeout, capture.DefaultStopTimeout, "capture.stop_timeout")
		killTimeout := parseDuration(opts.CaptureKillTimeout, capture.DefaultKillTimeout, "capture.kill_timeout")

		eventBus := events.New()
		notifier := systemd.NewNotifier()

		sup := capture.New(capture.Options{
			Name:             "main",
			Launcher:         &capture.Launcher{Binary: opts.FfmpegBinary},
			Bus:              eventBus,
			StopTimeout:      stopTimeout,
			KillTimeout:      killTimeout,
			MaxLineBytes:     opts.CaptureMaxLineBytes,
			SubscriberBuffer: opts.CaptureSubscriberBuffer,
		})
		reconciler := capture.NewReconciler(sup, logging.GetLogger("reconcile"))

		// Keep the systemd status line in step with the registry
		unsubscribeStatus := eventBus.Subscribe(func(events.CaptureStateChangedEvent) {
			running := 0
			for _, info := range sup.List() {
				if info.State == capture.StateRunning {
					running++
				}
			}
			if err := notifier.Status("%d captures running", running); err != nil {
				logger.Debug("Failed to update systemd status", "error", err)
			}
		})

		configLogger := logging.GetLogger("config")
		var watcher *config.Watcher[map[string]capture.Spec]
		if opts.CaptureWatch {
			watcher = config.NewWatcher(opts.CaptureCapturesFile, config.LoadCaptures, configLogger)
			watcher.OnReload(func(specs map[string]capture.Spec) {
				if err := reconciler.Apply(specs); err != nil {
					configLogger.Error("Failed to apply capture definitions", "error", err)
				}
			})
		}

		var metricsServer *http.Server
		if opts.MetricsListen != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsServer = &http.Server{
				Addr:              opts.MetricsListen,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
		}

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			logger.Info("Starting capturenode", "version", version.Get().Version, "captures_file", opts.CaptureCapturesFile)

			specs, err := config.LoadCaptures(opts.CaptureCapturesFile)
			switch {
			case errors.Is(err, os.ErrNotExist):
				logger.Warn("Capture definitions file not found, starting with no captures", "path", opts.CaptureCapturesFile)
			case err != nil:
				logger.Error("Failed to load capture definitions", "error", err)
			default:
				if applyErr := reconciler.Apply(specs); applyErr != nil {
					logger.Error("Failed to start some captures", "error", applyErr)
				}
			}

			if watcher != nil {
				if startErr := watcher.Start(ctx); startErr != nil {
					logger.Warn("Failed to watch capture definitions", "error", startErr)
				}
			}

			if metricsServer != nil {
				go func() {
					logger.Info("Starting metrics server", "listen", opts.MetricsListen)
					if serveErr := metricsServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
						logger.Error("Metrics server failed", "error", serveErr)
					}
				}()
			}

			if notifyErr := notifier.Ready(); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			}

			<-ctx.Done()
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if notifyErr := notifier.Stopping(); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			}

			// Stop reloads first so no capture is started during shutdown
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping watcher", "error", stopErr)
				}
			}
			unsubscribeStatus()

			shutdownErr := sup.Shutdown()

			if metricsServer != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				if stopErr := metricsServer.Shutdown(stopCtx); stopErr != nil {
					logger.Error("Error stopping metrics server", "error", stopErr)
				}
				stopCancel()
			}
			cancel()

			if shutdownErr != nil {
				logger.Error("Captures did not shut down cleanly", "error", shutdownErr)
				os.Exit(1)
			}
			logger.Info("Shutdown complete")
		})
	})

	root := cli.Root()
	root.Use = "capturenode"
	root.Short = "Supervise ffmpeg network captures"
	root.Version = version.String()

	root.AddCommand(cmd.CreateCaptureCmd())
	root.AddCommand(cmd.CreateDecodeCmd())
	root.AddCommand(cmd.CreateVersionCmd())

	// Run the CLI
	cli.Run()
}

func parseDuration(value string, fallback time.Duration, key string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		logging.GetLogger("main").Warn("Invalid duration, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return d
}
