// Package model defines the data structures shared by the client core and the
// API server.
package model

import "time"

// User represents a registered account.
//
// PasswordHash is the bcrypt hash, populated server-side only. The json:"-"
// tag guarantees it can never leak into a response even if a handler
// serializes the struct directly.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Bio          string    `json:"bio"`
	AvatarURL    string    `json:"avatar_url"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile is a user as seen by another user: the public fields plus the
// social-graph counters and the viewer-relative following flag.
type Profile struct {
	User
	FollowerCount   int  `json:"followers_count"`
	FollowingCount  int  `json:"following_count"`
	MessageCount    int  `json:"tweets_count"`
	ViewerFollowing bool `json:"is_following"`
}

// AuthorRef returns the author snapshot embedded in messages this user writes.
func (u *User) AuthorRef() Author {
	return Author{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}
