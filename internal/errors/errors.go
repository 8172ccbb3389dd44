package errors

import "errors"

// This package defines a centralized set of sentinel errors for the application.
// Services wrap these with fmt.Errorf("...: %w", err) and the API layer uses
// errors.Is() to turn them into HTTP status codes or stream error frames.

var (
	// ErrValidation signifies that input data provided by a client failed
	// business rule validation.
	// This is typically mapped to a 400 Bad Request HTTP status.
	ErrValidation = errors.New("validation failed")

	// ErrBackend signifies that the model backend could not open a session,
	// accept a message or produce a generation. The request is terminated
	// with an error frame; the server keeps running.
	ErrBackend = errors.New("model backend failure")

	// ErrInternal signifies an unexpected error on the server. This is a generic
	// error used to prevent leaking sensitive implementation details to the client.
	// This is typically mapped to a 500 Internal Server Error HTTP status.
	ErrInternal = errors.New("internal server error")
)
