package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sakif/chirper/internal/apperror"
	"github.com/sakif/chirper/internal/model"
)

// Identity supplies the authenticated user for authorship of created
// messages. *gateway.Gateway satisfies it.
type Identity interface {
	Session() (model.Session, bool)
}

// mutationKind names what a pending record is doing.
type mutationKind string

const (
	kindLike   mutationKind = "like"
	kindUnlike mutationKind = "unlike"
	kindDelete mutationKind = "delete"
)

// pendingKey gates in-flight mutations: at most one per (scope, message,
// kind). A tap that fires twice before the first settles joins the existing
// attempt instead of double-issuing the remote call.
type pendingKey struct {
	scope Scope
	id    string
	kind  mutationKind
}

// Pending is the handle for one in-flight optimistic mutation. The optimistic
// state change has already been applied by the time a caller holds one; Wait
// reports how it settled — nil means the optimistic state stands, an error
// means it was rolled back.
type Pending struct {
	done chan struct{}
	err  error
}

func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Settled reports whether the mutation has completed, without blocking.
func (p *Pending) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// likeState is the rollback snapshot for a like/unlike: the exact prior
// values, not a delta, so a rollback restores them even if something about
// the arithmetic was wrong.
type likeState struct {
	liked bool
	count int
}

// Engine applies message mutations optimistically and reconciles them with
// the remote. It is the only writer of message fields and the exclusive owner
// of in-flight pending records.
type Engine struct {
	pager    *Pager
	source   Source
	identity Identity
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[pendingKey]*Pending
}

func NewEngine(pager *Pager, source Source, identity Identity, logger *slog.Logger) *Engine {
	return &Engine{
		pager:    pager,
		source:   source,
		identity: identity,
		logger:   logger,
		pending:  make(map[pendingKey]*Pending),
	}
}

// Like flips the message to liked immediately and confirms with the remote in
// the background.
//
// Invoking Like on an already-liked message is a no-op returning (nil, nil) —
// the view is expected to send the verb matching what it displays, and a
// mismatch means its information is simply behind. A duplicate Like while one
// is in flight returns the in-flight handle.
//
// On remote failure of any kind the exact pre-mutation count and flag are
// restored. Success keeps the optimistic values: the initiating client
// already knows the delta is +1, so the remote's count is not consulted.
func (e *Engine) Like(ctx context.Context, scope Scope, id string) (*Pending, error) {
	return e.toggleLike(ctx, scope, id, kindLike)
}

// Unlike is the symmetric inverse of Like.
func (e *Engine) Unlike(ctx context.Context, scope Scope, id string) (*Pending, error) {
	return e.toggleLike(ctx, scope, id, kindUnlike)
}

func (e *Engine) toggleLike(ctx context.Context, scope Scope, id string, kind mutationKind) (*Pending, error) {
	wantLiked := kind == kindLike

	e.mu.Lock()
	key := pendingKey{scope: scope, id: id, kind: kind}
	if pnd, ok := e.pending[key]; ok {
		e.mu.Unlock()
		return pnd, nil
	}

	msg, ok := e.pager.Message(scope, id)
	if !ok {
		e.mu.Unlock()
		return nil, apperror.NotFound("tweet", id)
	}
	if msg.ViewerLiked == wantLiked {
		e.mu.Unlock()
		return nil, nil // already in the target state
	}

	prev := likeState{liked: msg.ViewerLiked, count: msg.LikeCount}
	delta := 1
	if !wantLiked {
		delta = -1
	}
	e.pager.Apply(scope, id, func(m *model.Message) {
		m.ViewerLiked = wantLiked
		m.LikeCount += delta
	})

	pnd := &Pending{done: make(chan struct{})}
	e.pending[key] = pnd
	e.mu.Unlock()

	// Detached from the caller's context: the view navigating away must not
	// turn an about-to-succeed like into a rollback. The transport's own
	// timeout still bounds the call.
	go e.settleLike(context.WithoutCancel(ctx), key, prev, pnd)
	return pnd, nil
}

func (e *Engine) settleLike(ctx context.Context, key pendingKey, prev likeState, pnd *Pending) {
	var err error
	if key.kind == kindLike {
		err = e.source.LikeMessage(ctx, key.id)
	} else {
		err = e.source.UnlikeMessage(ctx, key.id)
	}

	e.mu.Lock()
	delete(e.pending, key)
	if err != nil {
		e.pager.Apply(key.scope, key.id, func(m *model.Message) {
			m.ViewerLiked = prev.liked
			m.LikeCount = prev.count
		})
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("like mutation rolled back",
			slog.String("kind", string(key.kind)),
			slog.String("tweet", key.id),
			slog.String("error", err.Error()),
		)
		err = fmt.Errorf("%s failed: %w", key.kind, err)
	}
	pnd.err = err
	close(pnd.done)
}

// CreateMessage posts a new message. This path is not optimistic before the
// round-trip — the id and timestamp are remote-assigned, so there is nothing
// coherent to show until the server answers. On success the returned record
// is merged with the locally known author identity and prepended to the
// window; on failure nothing is inserted and the caller may resubmit the same
// body.
func (e *Engine) CreateMessage(ctx context.Context, scope Scope, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperror.InvalidInput("content", "message body is required")
	}
	if utf8.RuneCountInString(body) > model.MaxMessageLength {
		return nil, apperror.InvalidInput("content",
			fmt.Sprintf("message body must be %d characters or less", model.MaxMessageLength))
	}

	sess, ok := e.identity.Session()
	if !ok {
		return nil, apperror.Unauthenticated()
	}

	msg, err := e.source.CreateMessage(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("posting message: %w", err)
	}

	// The server's create response carries id/timestamp/body; authorship is
	// filled from the session, which is authoritative for "who am I".
	msg.Author = sess.User.AuthorRef()
	msg.ViewerIsAuthor = true

	e.pager.InsertAtHead(scope, msg)
	e.logger.Info("message posted", slog.String("tweet", msg.ID))
	return &msg, nil
}

// DeleteMessage removes the message from the window immediately and confirms
// with the remote in the background. The rollback snapshot is the full
// removed message plus the index it held; a failed delete reinserts it at
// that index, clamped if intervening appends shifted the window (a documented
// approximation — the original position may no longer exist).
func (e *Engine) DeleteMessage(ctx context.Context, scope Scope, id string) (*Pending, error) {
	e.mu.Lock()
	key := pendingKey{scope: scope, id: id, kind: kindDelete}
	if pnd, ok := e.pending[key]; ok {
		e.mu.Unlock()
		return pnd, nil
	}

	msg, index, ok := e.pager.Remove(scope, id)
	if !ok {
		e.mu.Unlock()
		return nil, apperror.NotFound("tweet", id)
	}

	pnd := &Pending{done: make(chan struct{})}
	e.pending[key] = pnd
	e.mu.Unlock()

	go e.settleDelete(context.WithoutCancel(ctx), key, msg, index, pnd)
	return pnd, nil
}

func (e *Engine) settleDelete(ctx context.Context, key pendingKey, msg model.Message, index int, pnd *Pending) {
	err := e.source.DeleteMessage(ctx, key.id)

	e.mu.Lock()
	delete(e.pending, key)
	if err != nil {
		e.pager.RestoreAt(key.scope, msg, index)
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("delete rolled back", slog.String("tweet", key.id), slog.String("error", err.Error()))
		err = fmt.Errorf("delete failed: %w", err)
	} else {
		e.logger.Info("message deleted", slog.String("tweet", key.id))
	}
	pnd.err = err
	close(pnd.done)
}
