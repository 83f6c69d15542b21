package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/starz/internal/favorites"
)

const keepAliveInterval = 25 * time.Second

// Hub fans registry refreshes out to connected watchers. A conversation's
// view counts as open while at least one watcher is subscribed; refreshes
// for conversations nobody watches are dropped.
type Hub struct {
	tracker *favorites.ViewTracker

	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewHub() *Hub {
	h := &Hub{subs: make(map[string]map[chan struct{}]struct{})}
	h.tracker = favorites.NewViewTracker(h.broadcast)
	return h
}

// Refresh implements favorites.ViewNotifier.
func (h *Hub) Refresh(conversationID string) {
	h.tracker.Refresh(conversationID)
}

// Subscribe opens the conversation's view and returns a channel that
// receives a value after each refresh. Pending refreshes coalesce.
func (h *Hub) Subscribe(conversationID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[chan struct{}]struct{})
	}
	h.subs[conversationID][ch] = struct{}{}
	h.mu.Unlock()
	h.tracker.Open(conversationID)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.tracker.Close(conversationID)
			h.mu.Lock()
			delete(h.subs[conversationID], ch)
			if len(h.subs[conversationID]) == 0 {
				delete(h.subs, conversationID)
			}
			h.mu.Unlock()
		})
	}
}

func (h *Hub) broadcast(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[conversationID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func handleWatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid := chi.URLParam(r, "cid")
		if _, err := deps.Service.Status(cid); err != nil {
			serviceError(w, deps.Logger, err)
			return
		}
		if deps.Hub == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "watching is not enabled")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		events, cancel := deps.Hub.Subscribe(cid)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		fmt.Fprintf(w, "event: ready\ndata: {\"conversation_id\":%q}\n\n", cid)
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-events:
				fmt.Fprintf(w, "event: refresh\ndata: {\"conversation_id\":%q}\n\n", cid)
				flusher.Flush()
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			}
		}
	}
}
