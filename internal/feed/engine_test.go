package feed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chirper/internal/apperror"
	"github.com/sakif/chirper/internal/model"
)

type fakeIdentity struct {
	sess *model.Session
}

func (f *fakeIdentity) Session() (model.Session, bool) {
	if f.sess == nil {
		return model.Session{}, false
	}
	return *f.sess, true
}

func loggedIn() *fakeIdentity {
	return &fakeIdentity{sess: &model.Session{
		Token: "tok",
		User:  model.User{ID: "u1", Username: "alice", Name: "Alice", AvatarURL: "http://x/a.png"},
	}}
}

// newEngineWithWindow wires a pager + engine over a scripted source and
// preloads the home window with the given messages (served as page 1).
func newEngineWithWindow(t *testing.T, msgs []model.Message) (*Engine, *Pager, *scriptSource) {
	t.Helper()
	src := newScriptSource()
	p := NewPager(src, discardLogger())
	e := NewEngine(p, src, loggedIn(), discardLogger())

	go func() {
		req := src.expectPage(t)
		req.reply <- pageResp{msgs: msgs}
	}()
	_, err := p.LoadFirstPage(context.Background(), Home())
	require.NoError(t, err)
	return e, p, src
}

func waitSettled(t *testing.T, pnd *Pending) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return pnd.Wait(ctx)
}

func TestLikeAppliesImmediatelyAndKeepsOptimisticStateOnSuccess(t *testing.T) {
	e, p, src := newEngineWithWindow(t, []model.Message{
		{ID: "a", Body: "hi", LikeCount: 3, ViewerLiked: false},
	})

	pnd, err := e.Like(context.Background(), Home(), "a")
	require.NoError(t, err)
	require.NotNil(t, pnd)

	// Visible before the remote has answered.
	msg, ok := p.Message(Home(), "a")
	require.True(t, ok)
	assert.Equal(t, 4, msg.LikeCount)
	assert.True(t, msg.ViewerLiked)
	assert.False(t, pnd.Settled())

	req := src.expectOp(t, "like")
	assert.Equal(t, "a", req.id)
	req.reply <- opResp{}

	require.NoError(t, waitSettled(t, pnd))
	msg, _ = p.Message(Home(), "a")
	assert.Equal(t, 4, msg.LikeCount, "success keeps the optimistic count")
	assert.True(t, msg.ViewerLiked)
}

func TestLikeRollbackRestoresExactPriorState(t *testing.T) {
	e, p, src := newEngineWithWindow(t, []model.Message{
		{ID: "a", Body: "hi", LikeCount: 3, ViewerLiked: false},
	})

	pnd, err := e.Like(context.Background(), Home(), "a")
	require.NoError(t, err)

	req := src.expectOp(t, "like")
	req.reply <- opResp{err: apperror.RemoteRejected(500, "boom")}

	err = waitSettled(t, pnd)
	assert.ErrorIs(t, err, apperror.ErrRemoteRejected)

	msg, _ := p.Message(Home(), "a")
	assert.Equal(t, 3, msg.LikeCount, "rollback must restore the exact count")
	assert.False(t, msg.ViewerLiked)
}

func TestLikeOnAlreadyLikedIsNoop(t *testing.T) {
	e, _, src := newEngineWithWindow(t, []model.Message{
		{ID: "a", LikeCount: 7, ViewerLiked: true},
	})

	pnd, err := e.Like(context.Background(), Home(), "a")
	assert.NoError(t, err)
	assert.Nil(t, pnd, "wrong-verb intent settles locally")

	select {
	case req := <-src.ops:
		t.Fatalf("no-op must not reach the remote, saw %q", req.op)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDuplicateLikeIntentsAreCoalesced(t *testing.T) {
	e, p, src := newEngineWithWindow(t, []model.Message{
		{ID: "a", LikeCount: 1},
	})
	ctx := context.Background()

	first, err := e.Like(ctx, Home(), "a")
	require.NoError(t, err)
	second, err := e.Like(ctx, Home(), "a")
	require.NoError(t, err)
	assert.Same(t, first, second, "the second tap joins the in-flight attempt")

	// One remote call, one +1.
	msg, _ := p.Message(Home(), "a")
	assert.Equal(t, 2, msg.LikeCount)

	req := src.expectOp(t, "like")
	req.reply <- opResp{}
	require.NoError(t, waitSettled(t, first))

	select {
	case extra := <-src.ops:
		t.Fatalf("duplicate remote call %q", extra.op)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLikeUnlikeSymmetryBeforeSettle(t *testing.T) {
	// like then immediately unlike, both resolving after the fact: the
	// message ends exactly where it started.
	e, p, src := newEngineWithWindow(t, []model.Message{
		{ID: "a", LikeCount: 3, ViewerLiked: false},
	})
	ctx := context.Background()

	likePnd, err := e.Like(ctx, Home(), "a")
	require.NoError(t, err)
	unlikePnd, err := e.Unlike(ctx, Home(), "a")
	require.NoError(t, err)
	require.NotNil(t, unlikePnd)

	likeReq := src.expectOp(t, "like")
	unlikeReq := src.expectOp(t, "unlike")
	likeReq.reply <- opResp{}
	unlikeReq.reply <- opResp{}

	require.NoError(t, waitSettled(t, likePnd))
	require.NoError(t, waitSettled(t, unlikePnd))

	msg, _ := p.Message(Home(), "a")
	assert.Equal(t, 3, msg.LikeCount)
	assert.False(t, msg.ViewerLiked)
}

func TestSessionExpiryRollsBackAndIsTerminal(t *testing.T) {
	e, p, src := newEngineWithWindow(t, []model.Message{
		{ID: "a", LikeCount: 3, ViewerLiked: false},
	})

	pnd, err := e.Like(context.Background(), Home(), "a")
	require.NoError(t, err)

	req := src.expectOp(t, "like")
	req.reply <- opResp{err: apperror.SessionExpired()}

	err = waitSettled(t, pnd)
	assert.ErrorIs(t, err, apperror.ErrSessionExpired)
	assert.False(t, apperror.Retryable(err))

	msg, _ := p.Message(Home(), "a")
	assert.Equal(t, 3, msg.LikeCount)
	assert.False(t, msg.ViewerLiked)

	select {
	case extra := <-src.ops:
		t.Fatalf("expired session must halt retries, saw %q", extra.op)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeleteRemovesImmediatelyAndRollsBackInPlace(t *testing.T) {
	e, p, src := newEngineWithWindow(t, []model.Message{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	})

	pnd, err := e.DeleteMessage(context.Background(), Home(), "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, p.Snapshot(Home()).IDs())

	req := src.expectOp(t, "delete")
	assert.Equal(t, "b", req.id)
	req.reply <- opResp{err: apperror.RemoteRejected(403, "not your tweet")}

	err = waitSettled(t, pnd)
	assert.ErrorIs(t, err, apperror.ErrRemoteRejected)
	assert.Equal(t, []string{"a", "b", "c"}, p.Snapshot(Home()).IDs(),
		"failed delete restores the message at its original position")
}

func TestDeleteSuccess(t *testing.T) {
	e, p, src := newEngineWithWindow(t, []model.Message{
		{ID: "a"}, {ID: "b"},
	})

	pnd, err := e.DeleteMessage(context.Background(), Home(), "a")
	require.NoError(t, err)

	req := src.expectOp(t, "delete")
	req.reply <- opResp{}
	require.NoError(t, waitSettled(t, pnd))

	assert.Equal(t, []string{"b"}, p.Snapshot(Home()).IDs())

	// Settled means the gate is open again: a delete of the same id now
	// refers to a message that no longer exists.
	_, err = e.DeleteMessage(context.Background(), Home(), "a")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateValidatesLocally(t *testing.T) {
	e, _, src := newEngineWithWindow(t, nil)
	ctx := context.Background()

	_, err := e.CreateMessage(ctx, Home(), "   ")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = e.CreateMessage(ctx, Home(), strings.Repeat("x", 281))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	// 280 code points of multibyte text is fine; byte length is irrelevant.
	long := strings.Repeat("é", 280)
	go func() {
		req := src.expectOp(t, "create")
		req.reply <- opResp{msg: model.Message{ID: "new-1", Body: req.body, CreatedAt: time.Now()}}
	}()
	msg, err := e.CreateMessage(ctx, Home(), long)
	require.NoError(t, err)
	assert.Equal(t, long, msg.Body)
}

func TestCreateMergesAuthorshipAndInsertsAtHead(t *testing.T) {
	e, p, src := newEngineWithWindow(t, []model.Message{{ID: "old-1"}})

	go func() {
		req := src.expectOp(t, "create")
		req.reply <- opResp{msg: model.Message{ID: "new-1", Body: req.body, CreatedAt: time.Now()}}
	}()
	msg, err := e.CreateMessage(context.Background(), Home(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, "alice", msg.Author.Username, "authorship comes from the session")
	assert.True(t, msg.ViewerIsAuthor)

	snap := p.Snapshot(Home())
	assert.Equal(t, []string{"new-1", "old-1"}, snap.IDs())
}

func TestCreateHeadInsertWinsAgainstConcurrentPageLoad(t *testing.T) {
	e, p, src := newEngineWithWindow(t, genMessages("m", PageSize))
	ctx := context.Background()

	// A next-page load goes out and stalls...
	loadDone := make(chan struct{})
	go func() {
		defer close(loadDone)
		_, err := p.LoadNextPage(ctx, Home())
		require.NoError(t, err)
	}()
	pageInFlight := src.expectPage(t)

	// ...a create settles while it is still in flight...
	go func() {
		req := src.expectOp(t, "create")
		req.reply <- opResp{msg: model.Message{ID: "new-1", Body: req.body, CreatedAt: time.Now()}}
	}()
	_, err := e.CreateMessage(ctx, Home(), "first!")
	require.NoError(t, err)

	// ...and the page load completes afterwards.
	pageInFlight.reply <- pageResp{msgs: genMessages("n", 6)}
	<-loadDone

	snap := p.Snapshot(Home())
	require.NotEmpty(t, snap.Messages)
	assert.Equal(t, "new-1", snap.Messages[0].ID, "the created message stays at index 0")
	assert.Len(t, snap.Messages, PageSize+7)
}

func TestCreateRequiresSession(t *testing.T) {
	src := newScriptSource()
	p := NewPager(src, discardLogger())
	e := NewEngine(p, src, &fakeIdentity{}, discardLogger())

	_, err := e.CreateMessage(context.Background(), Home(), "hello")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestCreateFailureInsertsNothing(t *testing.T) {
	e, p, src := newEngineWithWindow(t, []model.Message{{ID: "old-1"}})

	go func() {
		req := src.expectOp(t, "create")
		req.reply <- opResp{err: apperror.RemoteRejected(500, "storage down")}
	}()
	_, err := e.CreateMessage(context.Background(), Home(), "doomed")
	assert.ErrorIs(t, err, apperror.ErrRemoteRejected)
	assert.Equal(t, []string{"old-1"}, p.Snapshot(Home()).IDs())
}

func TestLikeOnUnknownMessage(t *testing.T) {
	e, _, _ := newEngineWithWindow(t, []model.Message{{ID: "a"}})

	_, err := e.Like(context.Background(), Home(), "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
