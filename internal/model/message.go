// Package model defines the data structures shared by the client core and the
// API server. Both ends of the wire import the same structs, so the JSON field
// names here ARE the wire contract — there is no second place where a message
// shape is defined.
package model

import "time"

// MaxMessageLength is the body limit in Unicode code points, not bytes.
// "280 characters" on the wire means 280 runes; a body of 280 emoji is valid
// even though it is far more than 280 bytes.
const MaxMessageLength = 280

// Author is the slice of a user embedded in every message. It is a snapshot
// taken when the message is serialized, not a live reference — renaming
// yourself does not rewrite your old messages in a client's window.
type Author struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Message is a single post as both the server returns it and the client holds
// it in a timeline window.
//
// ViewerLiked and LikeCount are viewer-relative and must move together: one
// like toggle changes both, by exactly one, and LikeCount never goes negative.
// The optimistic mutation engine is the only writer of these fields on the
// client side.
//
// The JSON tag on ViewerLiked is "is_liked" — that is the server's name for
// it. The Go name says what the flag actually means (liked BY THE VIEWER,
// not liked by anyone).
type Message struct {
	ID             string    `json:"id"`
	Author         Author    `json:"author"`
	Body           string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	LikeCount      int       `json:"likes_count"`
	ViewerLiked    bool      `json:"is_liked"`
	ReplyCount     int       `json:"comments_count"`
	ViewerIsAuthor bool      `json:"is_author"`
}
