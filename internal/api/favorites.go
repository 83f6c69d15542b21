package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type messageRefRequest struct {
	MessageRef string `json:"message_ref"`
}

func (req messageRefRequest) valid(w http.ResponseWriter) bool {
	if req.MessageRef == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "message_ref is required")
		return false
	}
	return true
}

func handleListFavorites(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := parseIntParam(r, "page", 1, 0)
		pageSize := parseIntParam(r, "page_size", 0, 100)
		l, err := deps.Service.Favorites(chi.URLParam(r, "cid"), page, pageSize)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func handleFavoriteStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refs, err := deps.Service.Status(chi.URLParam(r, "cid"))
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"favorited": refs})
	}
}

func handleAddFavorite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageRefRequest
		if !decodeBody(w, r, &req) || !req.valid(w) {
			return
		}
		rec, err := deps.Service.Add(chi.URLParam(r, "cid"), req.MessageRef)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleToggleFavorite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageRefRequest
		if !decodeBody(w, r, &req) || !req.valid(w) {
			return
		}
		res, err := deps.Service.Toggle(chi.URLParam(r, "cid"), req.MessageRef)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleUpdateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Note *string `json:"note"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Note == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "note is required")
			return
		}
		rec, err := deps.Service.UpdateNote(chi.URLParam(r, "cid"), chi.URLParam(r, "id"), *req.Note)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleRemoveFavorite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Service.Remove(chi.URLParam(r, "cid"), chi.URLParam(r, "id")); err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleRemoveFavoriteByRef(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Query().Get("message_ref")
		if ref == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message_ref query parameter is required")
			return
		}
		if err := deps.Service.RemoveByRef(chi.URLParam(r, "cid"), ref); err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleFavoriteContext(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := deps.Service.Preview(chi.URLParam(r, "cid"), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleInvalidFavorites(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := deps.Service.Invalid(chi.URLParam(r, "cid"))
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invalid": recs, "count": len(recs)})
	}
}

func handlePruneFavorites(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Confirm bool `json:"confirm"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		res, err := deps.Service.Prune(chi.URLParam(r, "cid"), req.Confirm)
		if err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
