package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/sakif/chirper/internal/apperror"
	"github.com/sakif/chirper/internal/auth"
	"github.com/sakif/chirper/internal/model"
	"github.com/sakif/chirper/internal/repository"
)

// =========================================================================
// IN-MEMORY MOCKS
// =========================================================================
//
// Hand-written fakes of the repository interfaces. Instead of talking to a
// real database they keep state in maps, which keeps these tests fast and
// lets them simulate failure modes (a forced error field) that a real
// database won't produce on demand.

type followEdge struct {
	follower, followed string
}

type mockUserRepo struct {
	users   map[string]*model.User
	follows map[followEdge]bool
	nextID  int

	// When set, every method returns this error. Simulates storage failure.
	forcedErr error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		users:   make(map[string]*model.User),
		follows: make(map[followEdge]bool),
	}
}

func (m *mockUserRepo) CreateUser(_ context.Context, user *model.User) error {
	if m.forcedErr != nil {
		return m.forcedErr
	}
	for _, u := range m.users {
		if u.Username == user.Username {
			return apperror.Conflict("username is already taken")
		}
		if u.Email == user.Email {
			return apperror.Conflict("email is already registered")
		}
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (m *mockUserRepo) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	for _, u := range m.users {
		if u.Username == username {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (m *mockUserRepo) UpdateUser(_ context.Context, user *model.User) error {
	if m.forcedErr != nil {
		return m.forcedErr
	}
	if _, ok := m.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) SearchUsers(_ context.Context, query string, opts repository.PageOptions) ([]model.User, error) {
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	var result []model.User
	for _, u := range m.users {
		if strings.Contains(u.Username, query) || strings.Contains(u.Name, query) {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return paginate(result, opts), nil
}

func (m *mockUserRepo) Follow(_ context.Context, followerID, followedID string) error {
	edge := followEdge{followerID, followedID}
	if m.follows[edge] {
		return apperror.Conflict("already following this user")
	}
	m.follows[edge] = true
	return nil
}

func (m *mockUserRepo) Unfollow(_ context.Context, followerID, followedID string) error {
	edge := followEdge{followerID, followedID}
	if !m.follows[edge] {
		return apperror.Conflict("not following this user")
	}
	delete(m.follows, edge)
	return nil
}

func (m *mockUserRepo) IsFollowing(_ context.Context, followerID, followedID string) (bool, error) {
	return m.follows[followEdge{followerID, followedID}], nil
}

func (m *mockUserRepo) FollowCounts(_ context.Context, userID string) (int, int, error) {
	var followers, following int
	for edge := range m.follows {
		if edge.followed == userID {
			followers++
		}
		if edge.follower == userID {
			following++
		}
	}
	return followers, following, nil
}

type likeKey struct {
	user, tweet string
}

type mockMessageRepo struct {
	// Insertion order; Timeline serves it reversed (newest first), matching
	// the real repository's created_at DESC.
	messages []*model.Message
	authors  map[string]string // message id -> author id
	likes    map[likeKey]bool
	nextID   int

	forcedErr error
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{
		authors: make(map[string]string),
		likes:   make(map[likeKey]bool),
	}
}

func (m *mockMessageRepo) CreateMessage(_ context.Context, msg *model.Message, authorID string) error {
	if m.forcedErr != nil {
		return m.forcedErr
	}
	m.nextID++
	msg.ID = fmt.Sprintf("tweet-%d", m.nextID)
	stored := *msg
	m.messages = append(m.messages, &stored)
	m.authors[msg.ID] = authorID
	return nil
}

func (m *mockMessageRepo) GetMessage(_ context.Context, id, viewerID string) (*model.Message, error) {
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	for _, msg := range m.messages {
		if msg.ID == id {
			return m.view(msg, viewerID), nil
		}
	}
	return nil, apperror.NotFound("tweet", id)
}

func (m *mockMessageRepo) DeleteMessage(_ context.Context, id string) error {
	for i, msg := range m.messages {
		if msg.ID == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			delete(m.authors, id)
			return nil
		}
	}
	return apperror.NotFound("tweet", id)
}

func (m *mockMessageRepo) Timeline(_ context.Context, viewerID string, opts repository.PageOptions) ([]model.Message, error) {
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	all := make([]model.Message, 0, len(m.messages))
	for i := len(m.messages) - 1; i >= 0; i-- {
		all = append(all, *m.view(m.messages[i], viewerID))
	}
	return paginate(all, opts), nil
}

func (m *mockMessageRepo) UserMessages(_ context.Context, authorID, viewerID string, opts repository.PageOptions) ([]model.Message, error) {
	var all []model.Message
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.authors[m.messages[i].ID] == authorID {
			all = append(all, *m.view(m.messages[i], viewerID))
		}
	}
	return paginate(all, opts), nil
}

func (m *mockMessageRepo) SearchMessages(_ context.Context, query, viewerID string, opts repository.PageOptions) ([]model.Message, error) {
	var all []model.Message
	for i := len(m.messages) - 1; i >= 0; i-- {
		if strings.Contains(m.messages[i].Body, query) {
			all = append(all, *m.view(m.messages[i], viewerID))
		}
	}
	return paginate(all, opts), nil
}

func (m *mockMessageRepo) CountByAuthor(_ context.Context, authorID string) (int, error) {
	n := 0
	for _, author := range m.authors {
		if author == authorID {
			n++
		}
	}
	return n, nil
}

func (m *mockMessageRepo) Like(_ context.Context, userID, messageID string) error {
	if _, ok := m.authors[messageID]; !ok {
		return apperror.NotFound("tweet", messageID)
	}
	key := likeKey{userID, messageID}
	if m.likes[key] {
		return apperror.Conflict("tweet is already liked")
	}
	m.likes[key] = true
	return nil
}

func (m *mockMessageRepo) Unlike(_ context.Context, userID, messageID string) error {
	if _, ok := m.authors[messageID]; !ok {
		return apperror.NotFound("tweet", messageID)
	}
	key := likeKey{userID, messageID}
	if !m.likes[key] {
		return apperror.Conflict("tweet is not liked")
	}
	delete(m.likes, key)
	return nil
}

// view resolves the viewer-relative fields the way the SQL queries do.
func (m *mockMessageRepo) view(msg *model.Message, viewerID string) *model.Message {
	result := *msg
	result.Author.ID = m.authors[msg.ID]
	count := 0
	for key := range m.likes {
		if key.tweet == msg.ID {
			count++
		}
	}
	result.LikeCount = count
	result.ViewerLiked = m.likes[likeKey{viewerID, msg.ID}]
	result.ViewerIsAuthor = m.authors[msg.ID] == viewerID
	return &result
}

type mockNotificationRepo struct {
	byRecipient map[string][]*model.Notification
	nextID      int

	forcedErr error
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{byRecipient: make(map[string][]*model.Notification)}
}

func (m *mockNotificationRepo) CreateNotification(_ context.Context, n *model.Notification, recipientID string) error {
	if m.forcedErr != nil {
		return m.forcedErr
	}
	m.nextID++
	n.ID = fmt.Sprintf("notif-%d", m.nextID)
	stored := *n
	m.byRecipient[recipientID] = append(m.byRecipient[recipientID], &stored)
	return nil
}

func (m *mockNotificationRepo) ListNotifications(_ context.Context, recipientID string, opts repository.PageOptions) ([]model.Notification, error) {
	stored := m.byRecipient[recipientID]
	all := make([]model.Notification, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		all = append(all, *stored[i])
	}
	return paginate(all, opts), nil
}

func (m *mockNotificationRepo) MarkAllRead(_ context.Context, recipientID string) error {
	for _, n := range m.byRecipient[recipientID] {
		n.Read = true
	}
	return nil
}

func (m *mockNotificationRepo) UnreadCount(_ context.Context, recipientID string) (int, error) {
	count := 0
	for _, n := range m.byRecipient[recipientID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func paginate[T any](items []T, opts repository.PageOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// =========================================================================
// FIXTURE
// =========================================================================

// fixture wires every service over shared mocks, the way server.go wires the
// real ones over sqlite.
type fixture struct {
	users         *mockUserRepo
	messages      *mockMessageRepo
	notifications *mockNotificationRepo

	userSvc  *UserService
	msgSvc   *MessageService
	notifSvc *NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := newMockUserRepo()
	messages := newMockMessageRepo()
	notifications := newMockNotificationRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	passwords := auth.NewPasswordServiceForTest(4)

	notifSvc := NewNotificationService(notifications, users, logger)
	return &fixture{
		users:         users,
		messages:      messages,
		notifications: notifications,
		userSvc:       NewUserService(users, messages, notifSvc, tokens, passwords, logger),
		msgSvc:        NewMessageService(messages, users, notifSvc, logger),
		notifSvc:      notifSvc,
	}
}

// register creates an account through the real Register path and returns it.
func (f *fixture) register(t *testing.T, username string) *model.User {
	t.Helper()
	res, err := f.userSvc.Register(context.Background(), username, username+"@example.com", "password123", "")
	if err != nil {
		t.Fatalf("registering %q: %v", username, err)
	}
	return res.User
}
