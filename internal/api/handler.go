package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	app_errors "timeline-ai/backend/internal/errors"
	"timeline-ai/backend/internal/interfaces"
	"timeline-ai/backend/internal/model"
)

// TimelineHandler serves the streaming timeline endpoint.
type TimelineHandler struct {
	service        interfaces.TimelineService
	maxEventLength int
}

func NewTimelineHandler(svc interfaces.TimelineService, maxEventLength int) *TimelineHandler {
	return &TimelineHandler{service: svc, maxEventLength: maxEventLength}
}

// HandleTimeline godoc
// @Summary      Stream a timeline
// @Description  Classifies the event and streams a JSON timeline (or a JSON rejection for non-historical input) as Server-Sent Events. Every event carries a frame: text frames hold the next piece of generated JSON, the last frame is either {"done":true} or an error frame.
// @Tags         Timeline
// @Accept       json
// @Produce      text/event-stream
// @Param        timelineRequest  body  model.TimelineRequest  true  "Event to build a timeline for"
// @Success      200  {object}  model.Frame  "Stream of frames"
// @Failure      400  {object}  model.Frame  "Sent as a stream error frame"
// @Router       /timeline [post]
func (h *TimelineHandler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With("request_id", middleware.GetReqID(ctx))
	setStreamHeaders(w)

	var req model.TimelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("Error decoding timeline request body", "error", err)
		sendStreamError(w, streamErrorMessage(fmt.Errorf("%w: invalid request body", app_errors.ErrValidation)))
		return
	}
	if err := h.validate(&req); err != nil {
		sendStreamError(w, streamErrorMessage(err))
		return
	}

	stream, err := h.service.Start(ctx, req.Params.Event)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("Client disconnected before the timeline started", "error", err)
			// Best effort; the connection is most likely gone.
			_ = writeStreamEvent(w, model.Frame{Done: true})
			return
		}
		log.Error("Could not start timeline", "event", req.Params.Event, "error", err)
		sendStreamError(w, streamErrorMessage(err))
		return
	}

	err = relayStream(ctx, w, stream)
	switch {
	case err == nil:
		log.Info("Finished streaming timeline", "event", req.Params.Event)
	case errors.Is(err, context.Canceled), errors.Is(err, errClientGone):
		log.Debug("Client cancelled timeline stream", "event", req.Params.Event, "error", err)
	default:
		log.Error("Timeline stream failed", "event", req.Params.Event, "error", err)
	}
}

func (h *TimelineHandler) validate(req *model.TimelineRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	if h.maxEventLength > 0 {
		return validateVar(req.Params.Event, fmt.Sprintf("max=%d", h.maxEventLength), "Event")
	}
	return nil
}
