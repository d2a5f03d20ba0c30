package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/capturenode/internal/capture"
	"github.com/smazurov/capturenode/internal/ffmpeg"
	"github.com/smazurov/capturenode/internal/logging"
)

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var binary string
	var stopTimeout time.Duration
	var killTimeout time.Duration
	var logJSON bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "capture [source] [destination]",
		Short: "Run a single capture in the foreground",
		Long: `Starts one ffmpeg capture from source into destination and prints its progress ` +
			`until the process exits. SIGINT or SIGTERM stops the capture gracefully.`,
		Args: cobra.ExactArgs(2),
		Run: func(c *cobra.Command, args []string) {
			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)

			spec := capture.Spec{Source: args[0], Destination: args[1]}
			logger := logging.GetLogger("capture").With("source", spec.RedactedSource())

			sup := capture.New(capture.Options{
				Launcher:    &capture.Launcher{Binary: binary},
				StopTimeout: stopTimeout,
				KillTimeout: killTimeout,
			})

			id, err := sup.Start(spec)
			if err != nil {
				logger.Error("Failed to start capture", "error", err)
				os.Exit(1)
			}

			records, cancel, err := sup.Subscribe(id)
			if err != nil {
				logger.Error("Failed to subscribe to progress", "error", err)
				_ = sup.Shutdown()
				os.Exit(1)
			}
			defer cancel()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := c.OutOrStdout()
			printProgress := func(p ffmpeg.Progress) {
				if !quiet {
					fmt.Fprintln(out, formatProgress(p))
				}
			}

		loop:
			for {
				select {
				case p, ok := <-records:
					if !ok {
						break loop
					}
					printProgress(p)
				case <-ctx.Done():
					logger.Info("Stopping capture")
					break loop
				}
			}

			if err := sup.Shutdown(); err != nil {
				var timeout *capture.ShutdownTimeoutError
				if errors.As(err, &timeout) {
					logger.Error("Capture did not terminate", "error", err)
				}
				os.Exit(1)
			}

			info, _ := sup.Get(id)
			os.Exit(exitCode(info))
		},
	}

	cmd.Flags().StringVar(&binary, "ffmpeg", ffmpeg.DefaultBinary, "FFmpeg executable")
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", capture.DefaultStopTimeout, "Grace period after SIGTERM")
	cmd.Flags().DurationVar(&killTimeout, "kill-timeout", capture.DefaultKillTimeout, "Wait after SIGKILL")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress records")

	return cmd
}

// exitCode maps a resolved capture to the command's exit status.
func exitCode(info capture.Info) int {
	if info.State == capture.StateExited {
		return info.ExitCode
	}
	return 1
}
