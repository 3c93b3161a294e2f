// Package feed is the client-side feed synchronization core: the timeline
// pager and the optimistic mutation engine.
//
// The pager owns one Window per feed scope — the ordered, deduplicated slice
// of messages currently materialized for that feed. The engine owns every
// in-flight optimistic change and is the only writer of message fields. The
// two share one rulebook:
//
//   - a window is only ever extended by appends at the tail (pagination) or a
//     prepend at the head (a freshly created message), never reordered;
//   - no id appears twice, even when the remote races and returns overlap;
//   - at most one load per scope and one pending mutation per
//     (scope, message, kind) is in flight at a time — duplicate intents join
//     the existing attempt instead of double-issuing the remote call.
package feed

import (
	"context"
	"fmt"

	"github.com/sakif/chirper/internal/model"
)

// PageSize is the fixed page-size contract constant of the remote feed
// source. It is purely the exhaustion signal: a page shorter than this means
// there is nothing left to fetch. The pager never sends a size on requests.
const PageSize = 20

// ScopeKind distinguishes the feeds a window can materialize.
type ScopeKind int

const (
	// HomeScope is the authenticated user's home timeline.
	HomeScope ScopeKind = iota
	// ProfileScope is a single user's own messages.
	ProfileScope
)

// Scope identifies one timeline window. It is a value type usable as a map
// key; windows for different scopes share no state.
type Scope struct {
	Kind     ScopeKind
	Username string // set for ProfileScope only
}

// Home returns the home-timeline scope.
func Home() Scope {
	return Scope{Kind: HomeScope}
}

// Profile returns the scope for username's messages.
func Profile(username string) Scope {
	return Scope{Kind: ProfileScope, Username: username}
}

func (s Scope) String() string {
	if s.Kind == HomeScope {
		return "home"
	}
	return fmt.Sprintf("profile:%s", s.Username)
}

// State is the window's position in the paging state machine:
// Empty → Loading → Ready ⇄ Loading → Exhausted. Exhausted is terminal.
type State int

const (
	Empty State = iota
	Loading
	Ready
	Exhausted
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Source is the remote feed source as the core sees it. *api.Client is the
// real implementation; tests substitute fakes.
type Source interface {
	TimelinePage(ctx context.Context, scope Scope, page int) ([]model.Message, error)
	CreateMessage(ctx context.Context, body string) (model.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	LikeMessage(ctx context.Context, id string) error
	UnlikeMessage(ctx context.Context, id string) error
}

// Snapshot is a copied view of one window, safe for the view layer to hold
// while the pager and engine keep mutating the underlying state.
type Snapshot struct {
	Scope    Scope
	State    State
	Messages []model.Message // display order, newest first
	HasMore  bool
}

// IDs returns the message ids in window order. Test helper material, but
// views use it for cheap diffing too.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s.Messages))
	for i, m := range s.Messages {
		ids[i] = m.ID
	}
	return ids
}
