package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/starz/internal/chat"
	"github.com/kalambet/starz/internal/storage"
)

type conversationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toConversationResponse(c storage.Conversation) conversationResponse {
	return conversationResponse{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
}

func handleListConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		convs, err := deps.Service.ListConversations(limit)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		out := make([]conversationResponse, len(convs))
		for i, c := range convs {
			out[i] = toConversationResponse(c)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleCreateConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := deps.Service.CreateConversation(req.Title)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toConversationResponse(c))
	}
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := deps.Service.Messages(chi.URLParam(r, "cid"))
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

type insertMessageRequest struct {
	chat.MessageInput
	Position *int `json:"position,omitempty"`
}

func handleInsertMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req insertMessageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		pos := -1
		if req.Position != nil {
			pos = *req.Position
		}
		v, err := deps.Service.InsertMessage(chi.URLParam(r, "cid"), pos, req.MessageInput)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

func handlePrependMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []chat.MessageInput `json:"messages"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Messages) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "messages is required and must not be empty")
			return
		}
		v, err := deps.Service.PrependMessages(chi.URLParam(r, "cid"), req.Messages)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

func handleEditMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := positionParam(w, r)
		if !ok {
			return
		}
		var req struct {
			Text string `json:"text"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		v, err := deps.Service.EditMessage(chi.URLParam(r, "cid"), pos, req.Text)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleDeleteMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := positionParam(w, r)
		if !ok {
			return
		}
		removed, err := deps.Service.DeleteMessage(chi.URLParam(r, "cid"), pos)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "deleted",
			"removed_favorites": removed,
		})
	}
}
