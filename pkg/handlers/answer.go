package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// maxAnswerBody bounds the request body of POST /api/answer.
const maxAnswerBody = 16 << 10

// Answerer answers one natural-language query. It never fails; failures are
// reported inside the returned Answer.
type Answerer interface {
	Answer(ctx context.Context, query string) *models.Answer
}

// AnswerRequest is the body of POST /api/answer.
type AnswerRequest struct {
	Query string `json:"query"`
}

// AnswerHandler serves the answer operation.
type AnswerHandler struct {
	engine Answerer
	logger *zap.Logger
}

// NewAnswerHandler creates an AnswerHandler.
func NewAnswerHandler(engine Answerer, logger *zap.Logger) *AnswerHandler {
	return &AnswerHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers the answer route on mux.
func (h *AnswerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/answer", h.Answer)
}

// Answer handles POST /api/answer. A decoded request always gets a 200 with
// the Answer body, whether or not the query could be answered.
func (h *AnswerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnswerBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body is too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON with a query field")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	answer := h.engine.Answer(r.Context(), req.Query)
	if err := WriteJSON(w, http.StatusOK, answer); err != nil {
		h.logger.Error("Failed to encode answer", zap.String("request_id", answer.RequestID), zap.Error(err))
	}
}

func (h *AnswerHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
