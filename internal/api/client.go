// Package api binds the client core to the remote feed source's wire
// contract: endpoint paths, query parameters and response envelopes. It is
// deliberately thin — transport, credentials and outcome classification all
// live in the gateway, and the structs it decodes into are the shared
// internal/model types.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sakif/chirper/internal/feed"
	"github.com/sakif/chirper/internal/gateway"
	"github.com/sakif/chirper/internal/model"
)

// Client implements feed.Source plus the read-mostly surfaces (search,
// notifications, profiles) that share the same gateway but none of the
// pager/engine machinery.
type Client struct {
	gw *gateway.Gateway
}

func New(gw *gateway.Gateway) *Client {
	return &Client{gw: gw}
}

// timelineResponse is the {"tweets": [...]} page envelope.
type timelineResponse struct {
	Messages []model.Message `json:"tweets"`
}

// TimelinePage fetches one 1-based page of the given scope. The request
// carries no page size: the server's fixed contract (20) is interpreted by
// the pager, not negotiated here.
func (c *Client) TimelinePage(ctx context.Context, scope feed.Scope, page int) ([]model.Message, error) {
	path := "/tweets/timeline"
	if scope.Kind == feed.ProfileScope {
		path = "/tweets/user/" + url.PathEscape(scope.Username)
	}
	query := url.Values{"page": []string{strconv.Itoa(page)}}

	var resp timelineResponse
	if err := c.gw.Get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

type createRequest struct {
	Content string `json:"content"`
}

func (c *Client) CreateMessage(ctx context.Context, body string) (model.Message, error) {
	var msg model.Message
	err := c.gw.Do(ctx, http.MethodPost, "/tweets/post", nil, createRequest{Content: body}, &msg)
	return msg, err
}

func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.gw.Do(ctx, http.MethodDelete, "/tweets/"+url.PathEscape(id), nil, nil, nil)
}

// LikeMessage acknowledges success/failure only. The server does send back a
// likes_count, but the core keeps its own optimistic arithmetic, so the body
// is not decoded at all.
func (c *Client) LikeMessage(ctx context.Context, id string) error {
	return c.gw.Do(ctx, http.MethodPost, "/tweets/"+url.PathEscape(id)+"/like", nil, nil, nil)
}

func (c *Client) UnlikeMessage(ctx context.Context, id string) error {
	return c.gw.Do(ctx, http.MethodDelete, "/tweets/"+url.PathEscape(id)+"/like", nil, nil, nil)
}

// --- profiles and the social graph ---

func (c *Client) Profile(ctx context.Context, username string) (*model.Profile, error) {
	var p model.Profile
	if err := c.gw.Get(ctx, "/users/"+url.PathEscape(username), nil, &p); err != nil {
		return nil, fmt.Errorf("fetching profile %s: %w", username, err)
	}
	return &p, nil
}

type updateProfileRequest struct {
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

func (c *Client) UpdateProfile(ctx context.Context, name, bio, avatarURL string) (*model.User, error) {
	var u model.User
	err := c.gw.Do(ctx, http.MethodPut, "/users/profile", nil, updateProfileRequest{
		Name:      name,
		Bio:       bio,
		AvatarURL: avatarURL,
	}, &u)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return &u, nil
}

func (c *Client) Follow(ctx context.Context, username string) error {
	return c.gw.Do(ctx, http.MethodPost, "/users/"+url.PathEscape(username)+"/follow", nil, nil, nil)
}

func (c *Client) Unfollow(ctx context.Context, username string) error {
	return c.gw.Do(ctx, http.MethodDelete, "/users/"+url.PathEscape(username)+"/follow", nil, nil, nil)
}

// --- search ---

type userSearchResponse struct {
	Users []model.User `json:"users"`
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	var resp userSearchResponse
	err := c.gw.Get(ctx, "/search/users", url.Values{"q": []string{query}}, &resp)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	return resp.Users, nil
}

func (c *Client) SearchMessages(ctx context.Context, query string) ([]model.Message, error) {
	var resp timelineResponse
	err := c.gw.Get(ctx, "/search/tweets", url.Values{"q": []string{query}}, &resp)
	if err != nil {
		return nil, fmt.Errorf("searching tweets: %w", err)
	}
	return resp.Messages, nil
}

// --- notifications (read-only fetch + mark-read; no optimistic concerns) ---

type notificationsResponse struct {
	Notifications []model.Notification `json:"notifications"`
}

func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	var resp notificationsResponse
	if err := c.gw.Get(ctx, "/notifications", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching notifications: %w", err)
	}
	return resp.Notifications, nil
}

func (c *Client) MarkNotificationsRead(ctx context.Context) error {
	return c.gw.Do(ctx, http.MethodPost, "/notifications/mark-read", nil, nil, nil)
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp unreadCountResponse
	if err := c.gw.Get(ctx, "/notifications/unread-count", nil, &resp); err != nil {
		return 0, fmt.Errorf("fetching unread count: %w", err)
	}
	return resp.Count, nil
}
