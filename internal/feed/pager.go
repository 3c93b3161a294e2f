package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/chirper/internal/model"
)

// window is the materialized state of one scope. Guarded by Pager.mu.
//
// generation counts resets. Every load captures the generation it was issued
// under; a completion whose generation no longer matches arrived after a
// LoadFirstPage reset and is discarded — the stale-response rule. Without it,
// a slow "page 3" response could append old messages into a window that was
// just refreshed.
type window struct {
	order    []string
	byID     map[string]*model.Message
	nextPage int // 1-based page index to request next
	hasMore  bool
	state    State

	generation int
	inflight   *loadAttempt
}

// loadAttempt is the join point for coalesced loads: every caller that would
// have issued a duplicate request blocks on done and shares the one result.
type loadAttempt struct {
	firstPage bool
	done      chan struct{}
	snap      Snapshot
	err       error
}

func (a *loadAttempt) wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-a.done:
		return a.snap, a.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (a *loadAttempt) finish(snap Snapshot, err error) {
	a.snap, a.err = snap, err
	close(a.done)
}

// Pager holds the timeline windows and advances them page by page. One Pager
// serves all scopes; all window mutations are serialized through its lock,
// which is what lets the reentrancy rules below be simple flag checks rather
// than real concurrency control.
type Pager struct {
	source Source
	logger *slog.Logger

	mu      sync.Mutex
	windows map[Scope]*window
}

func NewPager(source Source, logger *slog.Logger) *Pager {
	return &Pager{
		source:  source,
		logger:  logger,
		windows: make(map[Scope]*window),
	}
}

// windowLocked returns the window for scope, creating it lazily.
func (p *Pager) windowLocked(scope Scope) *window {
	w, ok := p.windows[scope]
	if !ok {
		w = &window{byID: make(map[string]*model.Message), nextPage: 1}
		p.windows[scope] = w
	}
	return w
}

func (w *window) snapshotLocked(scope Scope) Snapshot {
	msgs := make([]model.Message, len(w.order))
	for i, id := range w.order {
		msgs[i] = *w.byID[id]
	}
	return Snapshot{Scope: scope, State: w.state, Messages: msgs, HasMore: w.hasMore}
}

// appendLocked adds msgs at the tail, skipping ids already present. The
// remote may race with itself and return overlap across pages; dropping the
// duplicate (rather than moving it) preserves display order.
func (w *window) appendLocked(msgs []model.Message) {
	for _, m := range msgs {
		if _, dup := w.byID[m.ID]; dup {
			continue
		}
		msg := m
		w.byID[m.ID] = &msg
		w.order = append(w.order, m.ID)
	}
}

// Snapshot returns a copy of the current window for scope.
func (p *Pager) Snapshot(scope Scope) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.windowLocked(scope).snapshotLocked(scope)
}

// LoadFirstPage clears any existing window for scope and fetches page 1.
// Re-entrant calls while a first-page load is in flight join the existing
// attempt — the view firing a second refresh does not cause a second request
// or duplicate insertion.
func (p *Pager) LoadFirstPage(ctx context.Context, scope Scope) (Snapshot, error) {
	p.mu.Lock()
	w := p.windowLocked(scope)
	if w.inflight != nil && w.inflight.firstPage {
		a := w.inflight
		p.mu.Unlock()
		return a.wait(ctx)
	}

	// Reset now: the old contents are gone the moment a refresh starts, and
	// the generation bump condemns any next-page load still in flight.
	w.generation++
	gen := w.generation
	w.order = nil
	w.byID = make(map[string]*model.Message)
	w.nextPage = 1
	w.hasMore = false
	w.state = Loading

	a := &loadAttempt{firstPage: true, done: make(chan struct{})}
	w.inflight = a
	p.mu.Unlock()

	msgs, err := p.source.TimelinePage(ctx, scope, 1)

	p.mu.Lock()
	if w.inflight == a {
		w.inflight = nil
	}
	if w.generation != gen {
		// A newer refresh superseded this one while it was in flight.
		snap := w.snapshotLocked(scope)
		p.mu.Unlock()
		a.finish(snap, nil)
		return snap, nil
	}
	if err != nil {
		w.state = Empty
		snap := w.snapshotLocked(scope)
		p.mu.Unlock()
		p.logger.Warn("first page load failed", slog.String("scope", scope.String()), slog.String("error", err.Error()))
		err = fmt.Errorf("loading %s: %w", scope, err)
		a.finish(snap, err)
		return snap, err
	}

	w.appendLocked(msgs)
	w.nextPage = 2
	w.hasMore = len(msgs) == PageSize
	if w.hasMore {
		w.state = Ready
	} else {
		w.state = Exhausted
	}
	snap := w.snapshotLocked(scope)
	p.mu.Unlock()

	p.logger.Debug("first page loaded",
		slog.String("scope", scope.String()),
		slog.Int("count", len(msgs)),
		slog.Bool("has_more", snap.HasMore),
	)
	a.finish(snap, nil)
	return snap, nil
}

// LoadNextPage fetches the next page and appends whatever is new.
//
// It is a no-op returning the current state when the window is Exhausted or a
// load is already in flight — the near-end-of-scroll intent fires repeatedly
// and must not stack requests. On failure the window stays Ready with its
// contents intact, so re-triggering the same intent retries.
func (p *Pager) LoadNextPage(ctx context.Context, scope Scope) (Snapshot, error) {
	p.mu.Lock()
	w := p.windowLocked(scope)

	switch w.state {
	case Exhausted, Loading:
		snap := w.snapshotLocked(scope)
		p.mu.Unlock()
		return snap, nil
	case Empty:
		p.mu.Unlock()
		return p.LoadFirstPage(ctx, scope)
	}

	gen := w.generation
	page := w.nextPage
	w.state = Loading
	a := &loadAttempt{done: make(chan struct{})}
	w.inflight = a
	p.mu.Unlock()

	msgs, err := p.source.TimelinePage(ctx, scope, page)

	p.mu.Lock()
	if w.inflight == a {
		w.inflight = nil
	}
	if w.generation != gen {
		// A refresh reset the window while this page was in flight. The
		// response answers a cursor nobody is waiting for: discard it
		// without surfacing anything.
		snap := w.snapshotLocked(scope)
		p.mu.Unlock()
		p.logger.Debug("discarding stale page response", slog.String("scope", scope.String()), slog.Int("page", page))
		a.finish(snap, nil)
		return snap, nil
	}
	if err != nil {
		w.state = Ready
		snap := w.snapshotLocked(scope)
		p.mu.Unlock()
		p.logger.Warn("page load failed", slog.String("scope", scope.String()), slog.Int("page", page), slog.String("error", err.Error()))
		err = fmt.Errorf("loading %s page %d: %w", scope, page, err)
		a.finish(snap, err)
		return snap, err
	}

	w.appendLocked(msgs)
	w.nextPage++
	w.hasMore = len(msgs) == PageSize
	if w.hasMore {
		w.state = Ready
	} else {
		w.state = Exhausted
	}
	snap := w.snapshotLocked(scope)
	p.mu.Unlock()

	a.finish(snap, nil)
	return snap, nil
}

// InsertAtHead prepends a message unconditionally. Only the mutation engine
// calls this, after a successful create: a create is always new and always
// newest, so it lands at index 0 regardless of any page load that settles
// around it (appends go to the tail and dedup keeps it from reappearing).
func (p *Pager) InsertAtHead(scope Scope, msg model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.windowLocked(scope)
	if _, dup := w.byID[msg.ID]; dup {
		return
	}
	w.byID[msg.ID] = &msg
	w.order = append([]string{msg.ID}, w.order...)
	if w.state == Empty {
		w.state = Ready
	}
}

// Remove takes a message out of the window if present, returning the removed
// message and the index it held so a failed delete can be rolled back.
// Idempotent: removing an absent id reports ok=false and changes nothing.
func (p *Pager) Remove(scope Scope, id string) (msg model.Message, index int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.windowLocked(scope)
	m, present := w.byID[id]
	if !present {
		return model.Message{}, 0, false
	}
	for i, oid := range w.order {
		if oid == id {
			index = i
			break
		}
	}
	delete(w.byID, id)
	w.order = append(w.order[:index], w.order[index+1:]...)
	return *m, index, true
}

// RestoreAt reinserts a previously removed message near its original
// position. If appends moved the window underneath it the index is clamped,
// which makes this an approximation of "restore at original position" — the
// message is never silently dropped, but it may land one slot off.
func (p *Pager) RestoreAt(scope Scope, msg model.Message, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.windowLocked(scope)
	if _, dup := w.byID[msg.ID]; dup {
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(w.order) {
		index = len(w.order)
	}
	w.byID[msg.ID] = &msg
	w.order = append(w.order[:index], append([]string{msg.ID}, w.order[index:]...)...)
}

// Message returns a copy of one message from the window.
func (p *Pager) Message(scope Scope, id string) (model.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.windowLocked(scope)
	m, ok := w.byID[id]
	if !ok {
		return model.Message{}, false
	}
	return *m, true
}

// Apply runs fn against the stored message under the pager lock. This is the
// engine's single write path into message fields; nothing else mutates them.
func (p *Pager) Apply(scope Scope, id string, fn func(*model.Message)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.windowLocked(scope)
	m, ok := w.byID[id]
	if !ok {
		return false
	}
	fn(m)
	if m.LikeCount < 0 {
		m.LikeCount = 0 // invariant: the count never goes negative
	}
	return true
}
