// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
// In a well-structured Go web app, code is organised into three layers:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// WHY A SEPARATE SERVICE LAYER?
// Without a service layer, handlers do everything: parse HTTP, validate data,
// call the database, format responses. That couples the rules ("you can only
// delete your own tweet") to one transport. With a service layer the same
// rules serve the HTTP API today and anything else tomorrow, and tests
// exercise them with plain function calls instead of fake HTTP requests.
//
// THE DEPENDENCY CHAIN:
//
//	main.go creates:  DB → Repository → Service → Handler
//	At runtime:       Handler calls Service calls Repository calls DB
//
// Services take repository INTERFACES, not *sqlite.DB. Tests pass mocks;
// main.go passes the real database. The service never imports sqlite.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/chirper/internal/apperror"
	"github.com/sakif/chirper/internal/model"
	"github.com/sakif/chirper/internal/repository"
)

// PageSize is the fixed page length for every paginated list the API serves.
// Clients detect the last page by receiving fewer than PageSize items, so
// this number is part of the wire contract — do not change it casually.
const PageSize = 20

// MessageService handles business logic for tweets and likes.
type MessageService struct {
	messages      repository.MessageRepository
	users         repository.UserRepository
	notifications *NotificationService
	logger        *slog.Logger
}

func NewMessageService(
	messages repository.MessageRepository,
	users repository.UserRepository,
	notifications *NotificationService,
	logger *slog.Logger,
) *MessageService {
	return &MessageService{
		messages:      messages,
		users:         users,
		notifications: notifications,
		logger:        logger,
	}
}

// Create validates and saves a new tweet for authorID.
//
// The length limit counts Unicode code points, not bytes — the same rule the
// client enforces before sending, repeated here because the server cannot
// trust any client.
func (s *MessageService) Create(ctx context.Context, authorID, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)

	if body == "" {
		return nil, apperror.InvalidInput("content", "tweet content is required")
	}
	if utf8.RuneCountInString(body) > model.MaxMessageLength {
		return nil, apperror.InvalidInput("content",
			fmt.Sprintf("tweet must be %d characters or less", model.MaxMessageLength))
	}

	author, err := s.users.GetUserByID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("creating tweet: %w", err)
	}

	msg := &model.Message{Body: body}
	if err := s.messages.CreateMessage(ctx, msg, authorID); err != nil {
		s.logger.Error("failed to create tweet",
			slog.String("authorID", authorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating tweet: %w", err)
	}

	// The INSERT stores only the author id; fill in the snapshot the client
	// renders from so the response is complete without a second query.
	msg.Author = author.AuthorRef()
	msg.ViewerIsAuthor = true

	s.logger.Info("tweet created",
		slog.String("id", msg.ID),
		slog.String("authorID", authorID),
	)
	return msg, nil
}

// Get returns one tweet with viewer-relative fields resolved for viewerID.
// viewerID may be empty (anonymous): is_liked and is_author come back false.
func (s *MessageService) Get(ctx context.Context, id, viewerID string) (*model.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.InvalidInput("id", "tweet ID is required")
	}
	return s.messages.GetMessage(ctx, id, viewerID)
}

// Timeline returns one 1-based page of the global feed, newest first.
// Pages below 1 are treated as page 1 rather than rejected — an off-by-one
// client gets data, not an error.
func (s *MessageService) Timeline(ctx context.Context, viewerID string, page int) ([]model.Message, error) {
	msgs, err := s.messages.Timeline(ctx, viewerID, pageOptions(page))
	if err != nil {
		s.logger.Error("failed to load timeline", slog.String("error", err.Error()))
		return nil, fmt.Errorf("loading timeline: %w", err)
	}
	return msgs, nil
}

// UserTimeline returns one page of a single user's tweets. The username is
// resolved first so an unknown user yields NotFound, not an empty page.
func (s *MessageService) UserTimeline(ctx context.Context, username, viewerID string, page int) ([]model.Message, error) {
	author, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.UserMessages(ctx, author.ID, viewerID, pageOptions(page))
	if err != nil {
		s.logger.Error("failed to load user tweets",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("loading tweets for %s: %w", username, err)
	}
	return msgs, nil
}

// Delete removes a tweet. Only the author may delete it; anyone else gets
// apperror.ErrForbidden. The existence check and the ownership check are
// separate on purpose — a 404 and a 403 tell the caller different things.
func (s *MessageService) Delete(ctx context.Context, id, callerID string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.InvalidInput("id", "tweet ID is required")
	}

	msg, err := s.messages.GetMessage(ctx, id, callerID)
	if err != nil {
		return err
	}
	if msg.Author.ID != callerID {
		return apperror.Forbidden("you can only delete your own tweets")
	}

	if err := s.messages.DeleteMessage(ctx, id); err != nil {
		return err
	}

	s.logger.Info("tweet deleted",
		slog.String("id", id),
		slog.String("authorID", callerID),
	)
	return nil
}

// Like records userID's like and notifies the tweet's author. A duplicate
// like surfaces as ErrConflict from the repository — the caller's view was
// stale, and a 409 is how it finds out.
func (s *MessageService) Like(ctx context.Context, id, userID string) (*model.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.InvalidInput("id", "tweet ID is required")
	}

	if err := s.messages.Like(ctx, userID, id); err != nil {
		return nil, err
	}

	msg, err := s.messages.GetMessage(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	// Liking your own tweet works but doesn't notify you.
	if msg.Author.ID != userID {
		s.notifications.RecordLike(ctx, userID, msg.Author.ID, id)
	}

	return msg, nil
}

// Unlike removes the like. No notification — undoing a like quietly is the
// expected social behavior.
func (s *MessageService) Unlike(ctx context.Context, id, userID string) (*model.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.InvalidInput("id", "tweet ID is required")
	}

	if err := s.messages.Unlike(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.messages.GetMessage(ctx, id, userID)
}

// Search returns tweets whose body contains the query, newest first.
func (s *MessageService) Search(ctx context.Context, query, viewerID string, page int) ([]model.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.InvalidInput("q", "search query is required")
	}

	msgs, err := s.messages.SearchMessages(ctx, query, viewerID, pageOptions(page))
	if err != nil {
		s.logger.Error("tweet search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("searching tweets: %w", err)
	}
	return msgs, nil
}

// pageOptions converts a 1-based page number into limit/offset.
func pageOptions(page int) repository.PageOptions {
	if page < 1 {
		page = 1
	}
	return repository.PageOptions{
		Limit:  PageSize,
		Offset: (page - 1) * PageSize,
	}
}
