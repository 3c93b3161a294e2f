package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/chirper/internal/auth"
	"github.com/sakif/chirper/internal/model"
	"github.com/sakif/chirper/internal/service"
)

// AuthHandler manages registration, login and the session endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account, answer with a token
//   - HandleLogin    → verify credentials, answer with a token
//   - HandleLogout   → acknowledge; the client discards its token
//   - HandleMe       → return the authenticated user's own record
//
// Handlers parse HTTP and write HTTP, nothing else. Every rule about WHO may
// do WHAT lives in the service layer.
type AuthHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewAuthHandler(users *service.UserService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, logger: logger}
}

// authResponse is the shape both Register and Login answer with. The client
// installs the token and the user as its session in one step.
type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// HandleRegister creates an account.
//
// HTTP: POST /api/users/auth/register
// BODY: {"username": "...", "email": "...", "password": "...", "name": "..."}
//
// A successful registration is also a login — the response carries a token
// so the client never has to make a second call.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.users.Register(r.Context(), req.Username, req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: res.Token, User: res.User})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin verifies credentials and issues a token.
//
// HTTP: POST /api/users/auth/login
// BODY: {"username": "...", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: res.Token, User: res.User})
}

// HandleLogout acknowledges a logout.
//
// HTTP: POST /api/users/auth/logout
//
// JWTs are stateless, so there is nothing to revoke server-side: the token
// stays technically valid until it expires, and "logging out" means the
// client stops sending it. The endpoint exists so the client has a clean
// signal that the server saw the intent (and so a token blacklist could be
// added here later without changing the wire contract).
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		h.logger.Info("user logged out", slog.String("userID", userID))
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated user's own record.
//
// HTTP: GET /api/users/me
// Auth: Required
//
// The client calls this on startup to validate a persisted token: a 200
// proves the token still works and refreshes the cached user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Should never happen on a RequireAuth-protected route, but be safe.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("me lookup failed", slog.String("userID", userID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
