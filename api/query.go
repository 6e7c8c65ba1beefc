package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/folio0/folio/internal/runner"
	"github.com/folio0/folio/internal/synthesis"
)

// MaxQueryBytes caps the request body size.
const MaxQueryBytes = 16 * 1024

// Processor runs one conversational turn. Satisfied by *runner.Runner.
type Processor interface {
	Process(ctx context.Context, sessionID, text string) (synthesis.Answer, error)
}

// QueryHandler handles POST /api/query.
type QueryHandler struct {
	proc   Processor
	logger *slog.Logger
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(proc Processor, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{proc: proc, logger: logger}
}

// RegisterRoutes registers the query route on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.handleQuery)
}

// QueryRequest is the turn request body. SessionID may be empty on the
// first turn; the server then mints one and returns it.
type QueryRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// QueryResponse is the turn result.
type QueryResponse struct {
	SessionID string   `json:"sessionId"`
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	Refused   bool     `json:"refused"`
}

func (h *QueryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	body := http.MaxBytesReader(w, r.Body, MaxQueryBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	answer, err := h.proc.Process(r.Context(), req.SessionID, req.Text)
	if err != nil {
		if errors.Is(err, runner.ErrTurnUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "turn_unavailable", runner.UnavailableMessage)
			return
		}
		h.logger.Error("turn failed", "session", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to process query")
		return
	}

	citations := answer.Citations
	if citations == nil {
		citations = []string{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		SessionID: req.SessionID,
		Answer:    answer.Text,
		Citations: citations,
		Refused:   answer.Refused,
	})
}
