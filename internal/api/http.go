package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/starz/internal/chat"
	"github.com/kalambet/starz/internal/favorites"
	"github.com/kalambet/starz/internal/metrics"
)

const maxRequestBodySize = 1 << 20 // 1MB

type Deps struct {
	Service *chat.Service
	Hub     *Hub
	Metrics *metrics.Metrics // optional; /metrics is not served when nil
	Token   string
	Logger  *slog.Logger
}

// NewHandler returns the daemon's HTTP API. /health and /metrics are open;
// everything else requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/conversations", handleListConversations(deps))
		r.Post("/conversations", handleCreateConversation(deps))

		r.Route("/conversations/{cid}", func(r chi.Router) {
			r.Get("/messages", handleListMessages(deps))
			r.Post("/messages", handleInsertMessage(deps))
			r.Post("/messages/prepend", handlePrependMessages(deps))
			r.Patch("/messages/{pos}", handleEditMessage(deps))
			r.Delete("/messages/{pos}", handleDeleteMessage(deps))

			r.Get("/favorites", handleListFavorites(deps))
			r.Post("/favorites", handleAddFavorite(deps))
			r.Delete("/favorites", handleRemoveFavoriteByRef(deps))
			r.Get("/favorites/status", handleFavoriteStatus(deps))
			r.Get("/favorites/invalid", handleInvalidFavorites(deps))
			r.Get("/favorites/watch", handleWatch(deps))
			r.Post("/favorites/toggle", handleToggleFavorite(deps))
			r.Post("/favorites/prune", handlePruneFavorites(deps))
			r.Patch("/favorites/{id}", handleUpdateNote(deps))
			r.Delete("/favorites/{id}", handleRemoveFavorite(deps))
			r.Get("/favorites/{id}/context", handleFavoriteContext(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// serviceError maps chat and favorites errors onto the JSON error envelope.
func serviceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, chat.ErrConversationUnavailable):
		httpError(w, http.StatusNotFound, "not_found", "conversation not found")
	case errors.Is(err, chat.ErrFavoriteNotFound):
		httpError(w, http.StatusNotFound, "not_found", "favorite not found")
	case errors.Is(err, chat.ErrMessageNotFound):
		httpError(w, http.StatusNotFound, "not_found", "message not found")
	case errors.Is(err, favorites.ErrUnresolved):
		httpError(w, http.StatusNotFound, "not_found", "message reference does not resolve")
	default:
		logger.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func positionParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	p, err := strconv.Atoi(chi.URLParam(r, "pos"))
	if err != nil || p < 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "position must be a non-negative integer")
		return 0, false
	}
	return p, true
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
