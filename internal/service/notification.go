package service

import (
	"context"
	"log/slog"

	"github.com/sakif/chirper/internal/model"
	"github.com/sakif/chirper/internal/repository"
)

// NotificationService records and serves notification events.
//
// RecordLike and RecordFollow never return an error: a notification is a
// side effect of someone else's action, and failing THEIR like because OUR
// notification insert hiccupped would be backwards. Failures are logged and
// dropped.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	logger        *slog.Logger
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		users:         users,
		logger:        logger,
	}
}

// RecordLike notes that actorID liked messageID belonging to recipientID.
func (s *NotificationService) RecordLike(ctx context.Context, actorID, recipientID, messageID string) {
	s.record(ctx, recipientID, &model.Notification{
		Kind:      model.NotificationLike,
		Actor:     model.Author{ID: actorID},
		MessageID: messageID,
	})
}

// RecordFollow notes that actorID followed recipientID.
func (s *NotificationService) RecordFollow(ctx context.Context, actorID, recipientID string) {
	s.record(ctx, recipientID, &model.Notification{
		Kind:  model.NotificationFollow,
		Actor: model.Author{ID: actorID},
	})
}

func (s *NotificationService) record(ctx context.Context, recipientID string, n *model.Notification) {
	if err := s.notifications.CreateNotification(ctx, n, recipientID); err != nil {
		s.logger.Error("failed to record notification",
			slog.String("kind", n.Kind),
			slog.String("recipientID", recipientID),
			slog.String("error", err.Error()),
		)
	}
}

// List returns one page of the recipient's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, recipientID string, page int) ([]model.Notification, error) {
	return s.notifications.ListNotifications(ctx, recipientID, pageOptions(page))
}

// MarkAllRead flips every unread notification. Idempotent.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) error {
	return s.notifications.MarkAllRead(ctx, recipientID)
}

// UnreadCount returns how many unread notifications the recipient has. The
// client polls this for its badge.
func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return s.notifications.UnreadCount(ctx, recipientID)
}
