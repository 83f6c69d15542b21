// Package persist writes conversation metadata to durable storage. Writes
// are debounced per conversation so bursts of registry mutations collapse
// into a single write of the latest state.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/starz/internal/favorites"
	"github.com/kalambet/starz/internal/metrics"
	"github.com/kalambet/starz/internal/storage"
)

// MetadataStore abstracts the durable metadata document store.
type MetadataStore interface {
	SaveMetadata(conversationID, metadata string) error
}

const (
	defaultDebounce = time.Second
	defaultPoll     = 100 * time.Millisecond
	writeParallel   = 4
)

type pending struct {
	doc []byte
	due time.Time
}

// Flusher implements favorites.Persister. Schedule snapshots the metadata
// immediately; the snapshot is written once no newer Schedule for the same
// conversation has arrived within the debounce window.
type Flusher struct {
	store    MetadataStore
	debounce time.Duration
	poll     time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]pending
	// inflight counts writes taken out of pending but not yet finished.
	inflight map[string]int
}

type Option func(*Flusher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Flusher) { f.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Flusher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithPollInterval sets how often Run checks for due writes.
func WithPollInterval(d time.Duration) Option {
	return func(f *Flusher) {
		if d > 0 {
			f.poll = d
		}
	}
}

func withClock(fn func() time.Time) Option {
	return func(f *Flusher) { f.now = fn }
}

// NewFlusher creates a Flusher. If debounce is <= 0, it defaults to 1s.
func NewFlusher(store MetadataStore, debounce time.Duration, opts ...Option) *Flusher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	f := &Flusher{
		store:    store,
		debounce: debounce,
		poll:     defaultPoll,
		logger:   slog.Default(),
		now:      time.Now,
		pending:  make(map[string]pending),
		inflight: make(map[string]int),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Schedule records md as the latest state of the conversation and
// restarts its debounce window.
func (f *Flusher) Schedule(conversationID string, md favorites.Metadata) {
	doc, err := json.Marshal(md)
	if err != nil {
		f.logger.Error("encoding metadata", "conversation", conversationID, "error", err)
		f.metrics.PersistFailed()
		return
	}
	f.mu.Lock()
	f.pending[conversationID] = pending{doc: doc, due: f.now().Add(f.debounce)}
	f.mu.Unlock()
}

// Pending reports how many conversations have unwritten metadata.
func (f *Flusher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Busy reports whether the conversation has a snapshot waiting for its
// window or a write still in flight. While it does, the stored document
// may be older than the one in memory.
func (f *Flusher) Busy(conversationID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[conversationID]
	return ok || f.inflight[conversationID] > 0
}

// Sync writes the conversation's pending snapshot now instead of waiting
// out its window. It does nothing when no snapshot is pending.
func (f *Flusher) Sync(ctx context.Context, conversationID string) error {
	_, err := f.write(ctx, func(id string, _ pending) bool { return id == conversationID })
	return err
}

// Run writes due snapshots until ctx is cancelled, then flushes everything
// still pending.
func (f *Flusher) Run(ctx context.Context) {
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := f.Flush(flushCtx); err != nil {
			f.logger.Error("final metadata flush failed", "error", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := f.RunOnce(ctx); err != nil {
			f.logger.Error("metadata flush iteration failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.poll):
		}
	}
}

// RunOnce writes every snapshot whose debounce window has elapsed and
// returns the number written.
func (f *Flusher) RunOnce(ctx context.Context) (int, error) {
	now := f.now()
	return f.write(ctx, func(_ string, p pending) bool { return !p.due.After(now) })
}

// Flush writes every pending snapshot regardless of its window.
func (f *Flusher) Flush(ctx context.Context) error {
	_, err := f.write(ctx, func(string, pending) bool { return true })
	return err
}

func (f *Flusher) write(ctx context.Context, ready func(string, pending) bool) (int, error) {
	f.mu.Lock()
	batch := make(map[string]pending)
	for id, p := range f.pending {
		if ready(id, p) {
			batch[id] = p
			delete(f.pending, id)
			f.inflight[id]++
		}
	}
	f.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	var (
		mu      sync.Mutex
		written int
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(writeParallel)
	for id, p := range batch {
		g.Go(func() error {
			defer f.done(id)
			if err := gctx.Err(); err != nil {
				f.requeue(id, p)
				return err
			}
			err := f.store.SaveMetadata(id, string(p.doc))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				written++
				f.metrics.PersistWritten()
			case errors.Is(err, storage.ErrNotFound):
				f.logger.Warn("dropping metadata for missing conversation", "conversation", id)
			default:
				f.metrics.PersistFailed()
				f.requeue(id, p)
				errs = append(errs, fmt.Errorf("saving metadata for %s: %w", id, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	return written, errors.Join(errs...)
}

func (f *Flusher) done(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inflight[id] <= 1 {
		delete(f.inflight, id)
		return
	}
	f.inflight[id]--
}

// requeue puts a failed snapshot back unless a newer one was scheduled
// while the write was in flight.
func (f *Flusher) requeue(id string, p pending) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, newer := f.pending[id]; newer {
		return
	}
	p.due = f.now().Add(f.debounce)
	f.pending[id] = p
}
