package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	app_errors "timeline-ai/backend/internal/errors"
	"timeline-ai/backend/internal/model"
)

// This file contains shared DTOs (Data Transfer Objects) for API responses
// and helper functions for writing Server-Sent Events.

// StatusResponse defines a generic success response.
type StatusResponse struct {
	Status string `json:"status"`
}

// streamErrorMessage maps business-layer errors to the human-readable text
// sent in an error frame. The wrapped error itself is only logged.
func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, app_errors.ErrValidation):
		// Validation messages are already descriptive and user-friendly.
		return err.Error()
	case errors.Is(err, app_errors.ErrBackend):
		return "The model backend could not generate a response. Please try again later."
	default:
		// This prevents leaking implementation details to the client.
		return "An unexpected internal server error occurred."
	}
}

// classifyStreamError leaves validation and backend errors untouched and
// marks anything else as ErrInternal.
func classifyStreamError(err error) error {
	if errors.Is(err, app_errors.ErrValidation) || errors.Is(err, app_errors.ErrBackend) || errors.Is(err, app_errors.ErrInternal) {
		return err
	}
	return fmt.Errorf("%w: %w", app_errors.ErrInternal, err)
}

// respondWithJSON is a low-level helper for marshaling a payload to JSON
// and writing it to the http.ResponseWriter with a given status code.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

// setStreamHeaders prepares the response for Server-Sent Events. Must be
// called before the first write.
func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Stops nginx-style proxies from buffering the stream.
	w.Header().Set("X-Accel-Buffering", "no")
}

// sendStreamError sends a single error frame over an SSE stream.
func sendStreamError(w http.ResponseWriter, message string) {
	slog.Warn("Sending stream error to client", "message", message)
	if err := writeStreamEvent(w, model.Frame{Type: model.FrameError, Text: message}); err != nil {
		// This is often an expected I/O error if the client closes the connection.
		slog.Warn("Failed to write stream error, client might have disconnected", "error", err)
	}
}

// writeStreamEvent is a generic helper to marshal data and write it to an SSE stream.
// It returns an error on write failure, which is a signal that the client has disconnected.
func writeStreamEvent(w http.ResponseWriter, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to marshal stream data to JSON", "error", err)
		return nil
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", string(jsonData)); err != nil {
		return fmt.Errorf("failed to write data to stream: %w", err)
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
