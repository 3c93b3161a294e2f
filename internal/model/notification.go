package model

import "time"

// Notification kinds. The server creates one on each like and follow; the
// client only ever reads and marks them.
const (
	NotificationLike   = "like"
	NotificationFollow = "follow"
)

// Notification is a read-only event for the notifications list.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"type"`
	Actor     Author    `json:"actor"`      // who liked / followed
	MessageID string    `json:"tweet_id"`   // set for like notifications
	Read      bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
