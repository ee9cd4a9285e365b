// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/xaenox/recipebot/internal/assistant"
	"github.com/xaenox/recipebot/internal/conversation"
	"github.com/xaenox/recipebot/internal/models"
	"go.uber.org/zap"
)

// OwnerHeader carries the authenticated owner identity, set by the fronting
// auth proxy.
const OwnerHeader = "X-Owner-ID"

// maxBodyBytes caps the size of a turn request body.
const maxBodyBytes = 1 << 20

const (
	msgUnauthenticated = "authentication required"
	msgNotAccessible   = "conversation not accessible"
	msgInternal        = "Sorry, something went wrong on our side. Please try again."
)

// Assistant is the subset of assistant.Service the handlers use.
type Assistant interface {
	HandleTurn(ctx context.Context, req assistant.TurnRequest) (*assistant.TurnResult, error)
	GetHistory(ctx context.Context, ownerID, conversationID string) ([]models.Turn, error)
	DeleteConversation(ctx context.Context, ownerID, conversationID string) (bool, error)
	ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error)
}

type Handler struct {
	assistant Assistant
	logger    *zap.Logger
}

func NewHandler(a Assistant, logger *zap.Logger) *Handler {
	return &Handler{
		assistant: a,
		logger:    logger.Named("api"),
	}
}

type TurnRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

type TurnResponse struct {
	ConversationID  string        `json:"conversation_id"`
	NewConversation bool          `json:"new_conversation"`
	Response        string        `json:"response"`
	Items           []models.Item `json:"items"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var req TurnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.assistant.HandleTurn(r.Context(), assistant.TurnRequest{
		OwnerID:        ownerID(r),
		Utterance:      req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	items := res.Items
	if items == nil {
		items = []models.Item{}
	}
	h.writeJSON(w, http.StatusOK, TurnResponse{
		ConversationID:  res.ConversationID,
		NewConversation: res.NewConversation,
		Response:        res.Response,
		Items:           items,
	})
}

func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.assistant.ListConversations(r.Context(), ownerID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.Debug("Retrieved conversations",
		zap.Int("count", len(convs)),
		zap.String("path", r.URL.Path))

	if convs == nil {
		convs = []models.Conversation{}
	}
	h.writeJSON(w, http.StatusOK, convs)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	turns, err := h.assistant.GetHistory(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if turns == nil {
		turns = []models.Turn{}
	}
	h.writeJSON(w, http.StatusOK, turns)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.assistant.DeleteConversation(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleError maps domain errors onto status codes. Unknown and foreign
// conversations produce the same answer.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assistant.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, msgUnauthenticated)
	case errors.Is(err, assistant.ErrEmptyUtterance):
		h.writeError(w, http.StatusBadRequest, "message must not be empty")
	case errors.Is(err, conversation.ErrNotAccessible):
		h.writeError(w, http.StatusNotFound, msgNotAccessible)
	default:
		h.logger.Error("Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		h.writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func ownerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(OwnerHeader))
}
