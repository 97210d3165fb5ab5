// Package rest exposes the HTTP endpoints around the delivery core:
// the legacy submission path (no correlation id), history pages, search
// and health. Real-time traffic lives in the ws package; both funnel
// into the same router queue, so a message is never persisted twice.
package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"messenger-lab/auth"
	"messenger-lab/domain"
	"messenger-lab/projection"
	"messenger-lab/repositories"
	"messenger-lab/services"
)

var validate = validator.New()

type Handler struct {
	log       *slog.Logger
	service   services.IChatService
	tokens    *auth.TokenService
	directory *repositories.ChatDirectory
	timeline  *projection.Timeline
}

func NewHandler(log *slog.Logger, service services.IChatService,
	tokens *auth.TokenService, directory *repositories.ChatDirectory,
	timeline *projection.Timeline) *Handler {
	return &Handler{
		log:       log,
		service:   service,
		tokens:    tokens,
		directory: directory,
		timeline:  timeline,
	}
}

// Register mounts all routes on the given router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/messages", h.submitMessage).Methods(http.MethodPost)
	r.HandleFunc("/api/chats/{id}/messages", h.history).Methods(http.MethodGet)
	r.HandleFunc("/api/chats/{id}/recent", h.recent).Methods(http.MethodGet)
	r.HandleFunc("/api/chats", h.createChat).Methods(http.MethodPost)
	r.HandleFunc("/api/search", h.search).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{id}/online", h.online).Methods(http.MethodGet)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "timestamp": time.Now().UTC()})
}

type submitRequest struct {
	ChatID string `json:"chat_id" validate:"required"`
	Body   string `json:"body" validate:"required"`
	Kind   string `json:"kind" validate:"omitempty,oneof=text image video audio file"`
}

// submitMessage is the legacy path: no correlation id and no originating
// session. The sender's own live sessions therefore receive the message
// through the fan-out, where the client merges it by content heuristic.
func (h *Handler) submitMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message submission")
		return
	}
	kind, ok := domain.ParseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown message kind")
		return
	}

	err := h.service.Submit(domain.SubmitMessage{
		ChatID:      req.ChatID,
		SenderID:    userID,
		Body:        req.Body,
		Kind:        kind,
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "server busy")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type messageResponse struct {
	ServerID  string `json:"server_id"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id"`
	Body      string `json:"body"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	chatID := mux.Vars(r)["id"]

	member, err := h.directory.IsParticipant(r.Context(), chatID, userID)
	if err != nil || !member {
		writeError(w, http.StatusForbidden, "not a chat participant")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	messages, err := h.service.History(r.Context(), chatID, limit, offset)
	if err != nil {
		h.log.Error("History fetch failed", "chat_id", chatID, "error", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) messageResponse {
		return messageResponse{
			ServerID:  m.ID.String(),
			ChatID:    m.ChatID,
			SenderID:  m.SenderID,
			Body:      m.Body,
			Kind:      string(m.Kind),
			CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		}
	}))
}

// recent serves the in-memory timeline projection: what this process has
// fanned out since it started, without touching the store. Meant for ops
// checks (is fan-out flowing?), not as a history replacement.
func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	chatID := mux.Vars(r)["id"]

	member, err := h.directory.IsParticipant(r.Context(), chatID, userID)
	if err != nil || !member {
		writeError(w, http.StatusForbidden, "not a chat participant")
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(h.timeline.Messages(chatID), func(m domain.Message, _ int) messageResponse {
		return messageResponse{
			ServerID:  m.ID.String(),
			ChatID:    m.ChatID,
			SenderID:  m.SenderID,
			Body:      m.Body,
			Kind:      string(m.Kind),
			CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		}
	}))
}

type createChatRequest struct {
	ID           string   `json:"id" validate:"required"`
	Type         string   `json:"type" validate:"required,oneof=direct group"`
	Participants []string `json:"participants" validate:"required,min=1"`
	Muted        []string `json:"muted"`
}

// createChat is the stub for the external chat management collaborator.
// The core only reads this data to resolve fan-out targets.
func (h *Handler) createChat(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat")
		return
	}

	muted := make(map[string]bool, len(req.Muted))
	for _, id := range req.Muted {
		muted[id] = true
	}
	err := h.directory.Save(domain.Chat{
		ID:           req.ID,
		Type:         domain.ChatType(req.Type),
		Participants: req.Participants,
		Muted:        muted,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}

	hits, err := h.service.Search(r.Context(), r.URL.Query().Get("chat_id"), query, queryInt(r, "limit", 20))
	if err != nil {
		h.log.Error("Search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search unavailable")
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (h *Handler) online(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	userID := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"is_online": h.service.IsOnline(userID),
	})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return "", false
	}
	userID, err := h.tokens.Validate(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return "", false
	}
	return userID, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
