// Accounts, profiles and the social graph.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/chirper/internal/apperror"
	"github.com/sakif/chirper/internal/auth"
	"github.com/sakif/chirper/internal/model"
	"github.com/sakif/chirper/internal/repository"
)

// Validation constants. Defined as constants (not magic numbers in code) so
// the limits are easy to find, easy to change, and referenceable in error
// messages.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 8
	MaxNameLength     = 50
	MaxBioLength      = 160
)

// usernamePattern keeps usernames URL-safe: they appear in paths like
// /api/users/{username} and /api/tweets/user/{username}.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// UserService handles accounts: registration, login, profiles and follows.
type UserService struct {
	users         repository.UserRepository
	messages      repository.MessageRepository
	notifications *NotificationService
	tokens        *auth.TokenService
	passwords     *auth.PasswordService
	logger        *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	messages repository.MessageRepository,
	notifications *NotificationService,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:         users,
		messages:      messages,
		notifications: notifications,
		tokens:        tokens,
		passwords:     passwords,
		logger:        logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// write the {"token": ..., "user": ...} response in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an account and logs it in: a successful registration
// returns a token immediately, the client never makes a second login call.
func (s *UserService) Register(ctx context.Context, username, email, password, name string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.InvalidInput("email", "a valid email address is required")
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.InvalidInput("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, apperror.InvalidInput("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}
	if name == "" {
		name = username
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.InvalidInput("password", "password is not usable")
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	// The repository reports username/email collisions as ErrConflict; let
	// that propagate so the handler answers 409.
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token for new user %s: %w", user.ID, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and issues a token.
//
// Unknown username and wrong password produce the SAME error. Distinguishing
// them would let an attacker enumerate which usernames exist.
func (s *UserService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperror.InvalidInput("username", "username and password are required")
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, apperror.Unauthenticated()
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("failed login attempt", slog.String("username", username))
		return nil, apperror.Unauthenticated()
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token}, nil
}

// GetByID returns the bare user record. Used by the /users/me handler after
// the middleware has validated the JWT.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.InvalidInput("id", "user ID is required")
	}
	return s.users.GetUserByID(ctx, id)
}

// Profile assembles the public view of a user: record, counters, and whether
// viewerID follows them. viewerID may be empty (anonymous viewer).
func (s *UserService) Profile(ctx context.Context, username, viewerID string) (*model.Profile, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}

	followers, following, err := s.users.FollowCounts(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("assembling profile %s: %w", username, err)
	}
	tweets, err := s.messages.CountByAuthor(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("assembling profile %s: %w", username, err)
	}

	viewerFollows := false
	if viewerID != "" && viewerID != user.ID {
		viewerFollows, err = s.users.IsFollowing(ctx, viewerID, user.ID)
		if err != nil {
			return nil, fmt.Errorf("assembling profile %s: %w", username, err)
		}
	}

	return &model.Profile{
		User:            *user,
		FollowerCount:   followers,
		FollowingCount:  following,
		MessageCount:    tweets,
		ViewerFollowing: viewerFollows,
	}, nil
}

// UpdateProfile rewrites the caller's mutable fields. Empty name falls back
// to the username so a profile never renders blank.
func (s *UserService) UpdateProfile(ctx context.Context, userID, name, bio, avatarURL string) (*model.User, error) {
	name = strings.TrimSpace(name)
	bio = strings.TrimSpace(bio)

	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, apperror.InvalidInput("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return nil, apperror.InvalidInput("bio",
			fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = user.Username
	}
	user.Name = name
	user.Bio = bio
	user.AvatarURL = strings.TrimSpace(avatarURL)

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("profile updated", slog.String("userID", userID))
	return user, nil
}

// Follow makes callerID follow username and notifies them. Following
// yourself is a validation error, not a conflict — it can never succeed, so
// there is no state in which retrying would help.
func (s *UserService) Follow(ctx context.Context, callerID, username string) error {
	target, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if target.ID == callerID {
		return apperror.InvalidInput("username", "you cannot follow yourself")
	}

	if err := s.users.Follow(ctx, callerID, target.ID); err != nil {
		return err
	}

	s.notifications.RecordFollow(ctx, callerID, target.ID)
	s.logger.Info("follow created",
		slog.String("followerID", callerID),
		slog.String("followedID", target.ID),
	)
	return nil
}

// Unfollow removes the edge.
func (s *UserService) Unfollow(ctx context.Context, callerID, username string) error {
	target, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if target.ID == callerID {
		return apperror.InvalidInput("username", "you cannot unfollow yourself")
	}
	return s.users.Unfollow(ctx, callerID, target.ID)
}

// Search returns users whose username or display name contains the query.
func (s *UserService) Search(ctx context.Context, query string, page int) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.InvalidInput("q", "search query is required")
	}
	return s.users.SearchUsers(ctx, query, pageOptions(page))
}

func validateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return apperror.InvalidInput("username",
			fmt.Sprintf("username must be at least %d characters", MinUsernameLength))
	}
	if len(username) > MaxUsernameLength {
		return apperror.InvalidInput("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return apperror.InvalidInput("username", "username may only contain letters, digits and underscores")
	}
	return nil
}
