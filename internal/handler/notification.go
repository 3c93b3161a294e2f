package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/chirper/internal/auth"
	"github.com/sakif/chirper/internal/model"
	"github.com/sakif/chirper/internal/service"
)

// NotificationHandler serves the notifications panel: list, mark-read and
// the unread badge count. All three routes require auth — notifications are
// always the caller's own.
type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *slog.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

type notificationsResponse struct {
	Notifications []model.Notification `json:"notifications"`
}

// HandleList returns one page of the caller's notifications, newest first.
//
// HTTP: GET /api/notifications?page=N
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	notifs, err := h.notifications.List(r.Context(), userID, pageParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: notifs})
}

// HandleMarkRead marks every notification read. Idempotent — the client
// calls it each time the panel opens.
//
// HTTP: POST /api/notifications/mark-read
func (h *NotificationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.notifications.MarkAllRead(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

// HandleUnreadCount returns the badge number.
//
// HTTP: GET /api/notifications/unread-count
func (h *NotificationHandler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	count, err := h.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unreadCountResponse{Count: count})
}
