// Package repository defines the storage interfaces the service layer
// depends on. The sqlite subpackage is the real implementation; tests inject
// in-memory mocks.
package repository

import (
	"context"

	"github.com/sakif/chirper/internal/model"
)

// PageOptions is classic limit/offset pagination. The handlers translate the
// wire's 1-based page parameter into an offset before it gets here.
type PageOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	SearchUsers(ctx context.Context, query string, opts PageOptions) ([]model.User, error)

	// Social graph. Follow is not idempotent: following twice returns
	// apperror.ErrConflict so the service can tell the caller.
	Follow(ctx context.Context, followerID, followedID string) error
	Unfollow(ctx context.Context, followerID, followedID string) error
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)
	FollowCounts(ctx context.Context, userID string) (followers, following int, err error)
}

// MessageRepository stores messages and likes together — a like is a fact
// about a message, and every message query needs the viewer-relative liked
// flag joined in anyway.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *model.Message, authorID string) error
	GetMessage(ctx context.Context, id, viewerID string) (*model.Message, error)
	DeleteMessage(ctx context.Context, id string) error

	// Timeline reads the global feed — every user's posts, newest first;
	// viewerID only resolves the is_liked flags. UserMessages is one
	// author's posts.
	Timeline(ctx context.Context, viewerID string, opts PageOptions) ([]model.Message, error)
	UserMessages(ctx context.Context, authorID, viewerID string, opts PageOptions) ([]model.Message, error)
	SearchMessages(ctx context.Context, query, viewerID string, opts PageOptions) ([]model.Message, error)
	CountByAuthor(ctx context.Context, authorID string) (int, error)

	// Like returns apperror.ErrConflict when already liked; Unlike returns
	// it when not liked. The service maps both to a 409 so an out-of-sync
	// client learns its picture is stale.
	Like(ctx context.Context, userID, messageID string) error
	Unlike(ctx context.Context, userID, messageID string) error
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification, recipientID string) error
	ListNotifications(ctx context.Context, recipientID string, opts PageOptions) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) error
	UnreadCount(ctx context.Context, recipientID string) (int, error)
}
