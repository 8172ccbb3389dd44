package interfaces

import (
	"context"

	"timeline-ai/backend/internal/llm"
)

// This file defines the interfaces for our core services.
// The API layer depends on these instead of concrete implementations so
// handlers can be tested with mocks.

// TimelineService defines the contract for running a timeline generation.
type TimelineService interface {
	// Start classifies the event and returns the stream of the generation that
	// answers it. The caller owns the stream and must close it.
	Start(ctx context.Context, event string) (llm.FragmentStream, error)
}
