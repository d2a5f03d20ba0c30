package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/capturenode/internal/ffmpeg"
	"github.com/smazurov/capturenode/internal/logging"
)

// CreateDecodeCmd creates the decode command.
func CreateDecodeCmd() *cobra.Command {
	var maxLine int
	var asJSON bool
	var merge bool

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode ffmpeg progress output from stdin",
		Long: `Reads ffmpeg standard error from stdin, splits it into progress records ` +
			`(carriage return terminated) and diagnostic lines (line feed terminated), ` +
			`and prints one decoded record per line. Diagnostic lines go to the log.`,
		Args: cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})

			if err := runDecode(os.Stdin, c.OutOrStdout(), decodeOptions{
				maxLine: maxLine,
				asJSON:  asJSON,
				merge:   merge,
			}); err != nil {
				logging.GetLogger("main").Error("Decode failed", "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().IntVar(&maxLine, "max-line-bytes", ffmpeg.DefaultMaxLineBytes, "Longest line accepted")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	cmd.Flags().BoolVar(&merge, "merge", false, "Carry fields forward from earlier records")

	return cmd
}

type decodeOptions struct {
	maxLine int
	asJSON  bool
	merge   bool
}

func runDecode(r io.Reader, w io.Writer, opts decodeOptions) error {
	logger := logging.GetLogger("ffmpeg")
	parser := ffmpeg.NewProgressParser(logger)
	enc := json.NewEncoder(w)

	var last ffmpeg.Progress
	var writeErr error
	onRecord := func(line []byte) {
		p, ok := parser.Parse(string(line))
		if !ok || writeErr != nil {
			return
		}
		if opts.merge {
			last = last.Merge(p)
			p = last
		}
		if opts.asJSON {
			writeErr = enc.Encode(toJSON(p))
			return
		}
		_, writeErr = fmt.Fprintln(w, formatProgress(p))
	}
	onDiagnostic := func(line []byte) {
		level, msg := ffmpeg.ParseLogLevel(string(line))
		logger.Log(context.Background(), level, msg)
	}

	framer := ffmpeg.NewFramer(opts.maxLine, onRecord, onDiagnostic)
	if _, err := io.Copy(framer, r); err != nil {
		return err
	}
	framer.Flush()
	return writeErr
}
