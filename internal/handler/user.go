package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/chirper/internal/auth"
	"github.com/sakif/chirper/internal/model"
	"github.com/sakif/chirper/internal/service"
)

// UserHandler serves profiles, the social graph and user search.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleProfile returns a user's public profile.
//
// HTTP: GET /api/users/{username}
// Auth: Optional — is_following is resolved when a viewer is present
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())

	profile, err := h.users.Profile(r.Context(), r.PathValue("username"), viewerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type updateProfileRequest struct {
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

// HandleUpdateProfile rewrites the caller's profile fields.
//
// HTTP: PUT /api/users/profile
// BODY: {"name": "...", "bio": "...", "avatar_url": "..."}
// Auth: Required — you can only edit yourself, so no username in the path
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req updateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, req.Name, req.Bio, req.AvatarURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleFollow follows a user.
//
// HTTP: POST /api/users/{username}/follow
// Auth: Required; already-following answers 409, self-follow 400
func (h *UserHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.users.Follow(r.Context(), userID, r.PathValue("username")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnfollow removes a follow.
//
// HTTP: DELETE /api/users/{username}/follow
// Auth: Required
func (h *UserHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.users.Unfollow(r.Context(), userID, r.PathValue("username")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// userSearchResponse wraps user search results, mirroring the tweets
// envelope.
type userSearchResponse struct {
	Users []model.User `json:"users"`
}

// HandleSearch returns users matching ?q=.
//
// HTTP: GET /api/search/users?q=...&page=N
// Auth: Optional
func (h *UserHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Search(r.Context(), r.URL.Query().Get("q"), pageParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userSearchResponse{Users: users})
}
