// Command timeline streams a timeline of a historical event from a running
// timeline server and prints it as it arrives.
package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"timeline-ai/backend/internal/client"
	"timeline-ai/backend/internal/render"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		server  string
		path    string
		asJSON  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "timeline <event>",
		Short: "Stream a timeline of a historical event",
		Long: `Ask a timeline server for the key events of a historical event and print
them while they are generated. Press Ctrl+C to stop early and keep what has
arrived so far.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(verbose)

			var renderer client.Renderer
			if !asJSON {
				renderer = render.NewPrinter(cmd.OutOrStdout())
			}
			consumer := client.NewConsumer(server, renderer, client.WithPath(path))

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigc)
			done := make(chan struct{})
			defer close(done)
			go cancelOnSignal(sigc, done, consumer.Cancel)

			event := strings.Join(args, " ")
			err := consumer.Submit(cmd.Context(), event)
			if err != nil {
				slog.Error("Timeline failed", "event", event, "error", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(consumer.Document()); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "http://localhost:8000", "timeline server URL")
	cmd.Flags().StringVarP(&path, "path", "p", "/timeline", "timeline endpoint path on the server")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the final document as JSON instead of streaming it")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

// cancelOnSignal calls cancel for every signal until done is closed. A
// signal that arrives before the request is in flight is a no-op, so later
// ones must still get through.
func cancelOnSignal(sigc <-chan os.Signal, done <-chan struct{}, cancel func()) {
	for {
		select {
		case <-sigc:
			slog.Debug("Cancelling stream")
			cancel()
		case <-done:
			return
		}
	}
}

// setupLogger routes slog through charmbracelet/log on stderr so it does not
// mix with the timeline on stdout.
func setupLogger(verbose bool) {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "timeline",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	slog.SetDefault(slog.New(logger))
}
