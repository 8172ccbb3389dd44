package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"timeline-ai/backend/internal/llm"
	"timeline-ai/backend/internal/model"
)

var (
	errStreamTerminated = errors.New("stream already terminated")
	// errClientGone wraps a failed write to the client connection.
	errClientGone = errors.New("client connection lost")
)

// frameWriter writes timeline frames and refuses anything after the terminal
// frame.
type frameWriter struct {
	w          http.ResponseWriter
	terminated bool
}

func newFrameWriter(w http.ResponseWriter) *frameWriter {
	return &frameWriter{w: w}
}

func (fw *frameWriter) write(f model.Frame) error {
	if fw.terminated {
		return errStreamTerminated
	}
	if f.IsTerminal() {
		fw.terminated = true
	}
	return writeStreamEvent(fw.w, f)
}

func (fw *frameWriter) text(s string) error {
	return fw.write(model.Frame{Type: model.FrameText, Text: s})
}

func (fw *frameWriter) done() error {
	return fw.write(model.Frame{Done: true})
}

func (fw *frameWriter) fail(err error) error {
	msg := streamErrorMessage(err)
	slog.Warn("Sending stream error to client", "message", msg, "internal_error", err)
	return fw.write(model.Frame{Type: model.FrameError, Text: msg})
}

// relayStream forwards the visible fragments of stream as text frames and
// ends with exactly one done or error frame. The stream is always closed.
//
// If ctx is cancelled the relay stops, writes a best-effort done frame and
// returns context.Canceled. A failed write returns errClientGone. An upstream
// failure is reported to the client as an error frame and returned, marked
// with ErrInternal unless it already carries an application error.
func relayStream(ctx context.Context, w http.ResponseWriter, stream llm.FragmentStream) error {
	defer func() {
		if err := stream.Close(); err != nil {
			slog.Warn("Failed to close generation stream", "error", err)
		}
	}()

	fw := newFrameWriter(w)
	for {
		if ctx.Err() != nil {
			_ = fw.done()
			return context.Canceled
		}

		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return fw.done()
		}
		if err != nil {
			if ctx.Err() != nil {
				_ = fw.done()
				return context.Canceled
			}
			err = classifyStreamError(err)
			_ = fw.fail(err)
			return err
		}

		if frag.Hidden || frag.Text == "" {
			continue
		}
		if err := fw.text(frag.Text); err != nil {
			// A write failure is a strong indicator of a closed connection.
			if ctx.Err() != nil {
				return context.Canceled
			}
			return fmt.Errorf("%w: %w", errClientGone, err)
		}
	}
}
