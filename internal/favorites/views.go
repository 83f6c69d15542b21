package favorites

import "sync"

// ViewTracker is a ViewNotifier that only forwards refreshes for
// conversations whose view is currently open. Refreshes for closed views
// are dropped, not queued.
type ViewTracker struct {
	mu      sync.Mutex
	open    map[string]int
	onFresh func(conversationID string)
}

// NewViewTracker returns a tracker calling fn for each refresh of an open view.
func NewViewTracker(fn func(conversationID string)) *ViewTracker {
	return &ViewTracker{open: make(map[string]int), onFresh: fn}
}

// Open marks a view of the conversation as visible. Calls nest.
func (v *ViewTracker) Open(conversationID string) {
	v.mu.Lock()
	v.open[conversationID]++
	v.mu.Unlock()
}

// Close releases one Open.
func (v *ViewTracker) Close(conversationID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.open[conversationID] <= 1 {
		delete(v.open, conversationID)
		return
	}
	v.open[conversationID]--
}

func (v *ViewTracker) IsOpen(conversationID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open[conversationID] > 0
}

func (v *ViewTracker) Refresh(conversationID string) {
	if !v.IsOpen(conversationID) || v.onFresh == nil {
		return
	}
	v.onFresh(conversationID)
}
