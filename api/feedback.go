package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// FeedbackEmitter forwards feedback to the trace sink. Satisfied by
// *observability.Emitter.
type FeedbackEmitter interface {
	EmitFeedback(ctx context.Context, sessionID, verdict string)
}

// FeedbackHandler handles POST /api/feedback. Feedback is observability
// data only; it never influences routing or grounding.
type FeedbackHandler struct {
	emitter FeedbackEmitter
	logger  *slog.Logger
}

// NewFeedbackHandler creates a feedback handler.
func NewFeedbackHandler(emitter FeedbackEmitter, logger *slog.Logger) *FeedbackHandler {
	return &FeedbackHandler{emitter: emitter, logger: logger}
}

// RegisterRoutes registers the feedback route on the given mux.
func (h *FeedbackHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/feedback", h.handleFeedback)
}

// FeedbackRequest is the feedback body.
type FeedbackRequest struct {
	SessionID string `json:"sessionId"`
	Verdict   string `json:"verdict"`
}

var validVerdicts = map[string]bool{"helpful": true, "unhelpful": true}

func (h *FeedbackHandler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxQueryBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.SessionID == "" || !validVerdicts[req.Verdict] {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"sessionId and a verdict of helpful or unhelpful are required")
		return
	}

	if h.emitter != nil {
		h.emitter.EmitFeedback(r.Context(), req.SessionID, req.Verdict)
	}
	w.WriteHeader(http.StatusAccepted)
}
