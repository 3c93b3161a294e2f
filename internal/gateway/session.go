package gateway

// Session lifecycle wrappers. These are thin: each one is a normal Do
// exchange plus an install or clear of the credential. They live on the
// Gateway because the gateway is the only component allowed to touch the
// session.

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/chirper/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// authResponse is the {token, user} envelope returned by login and register.
type authResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Login authenticates with username/password and installs the session.
func (g *Gateway) Login(ctx context.Context, username, password string) (*model.User, error) {
	var resp authResponse
	err := g.Do(ctx, http.MethodPost, "/users/auth/login", nil, loginRequest{
		Username: username,
		Password: password,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}

	g.install(model.Session{Token: resp.Token, User: resp.User})
	g.logger.Info("logged in", slog.String("username", resp.User.Username))
	return &resp.User, nil
}

// Register creates an account and installs the session it returns.
func (g *Gateway) Register(ctx context.Context, username, email, password, name string) (*model.User, error) {
	var resp authResponse
	err := g.Do(ctx, http.MethodPost, "/users/auth/register", nil, registerRequest{
		Username: username,
		Email:    email,
		Password: password,
		Name:     name,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("registering: %w", err)
	}

	g.install(model.Session{Token: resp.Token, User: resp.User})
	g.logger.Info("registered", slog.String("username", resp.User.Username))
	return &resp.User, nil
}

// Logout tells the server goodbye and clears the session either way. The
// remote call is best-effort: a dead network must not trap the user in a
// logged-in client.
func (g *Gateway) Logout(ctx context.Context) error {
	err := g.Do(ctx, http.MethodPost, "/users/auth/logout", nil, nil, nil)

	// The hook only fires when the session actually transitions live → nil
	// here. A 401 on the logout call itself has already torn the session
	// down through the expiry path, hook included; firing again would tell
	// the owning app about one teardown twice.
	g.mu.Lock()
	wasLive := g.session != nil
	g.session = nil
	hook := g.onCleared
	g.mu.Unlock()
	if wasLive && hook != nil {
		hook()
	}

	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// Restore revives a persisted token from a previous run. The token is
// installed provisionally so Attach carries it, then proven against
// /users/me; only a successful probe leaves a session behind. Whatever way
// the probe fails, the client starts logged out.
func (g *Gateway) Restore(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	g.install(model.Session{Token: token})

	var user model.User
	if err := g.Get(ctx, "/users/me", nil, &user); err != nil {
		// The provisional install must not outlive a failed probe: a session
		// with a credential but no identity snapshot would poison anything
		// that stamps authorship from it. A 401 has already been cleared via
		// clearIfToken; this covers network failures. No hook — a session
		// that was never announced as live has nothing to tear down.
		g.mu.Lock()
		if g.session != nil && g.session.Token == token {
			g.session = nil
		}
		g.mu.Unlock()
		return nil, fmt.Errorf("restoring session: %w", err)
	}

	g.install(model.Session{Token: token, User: user})
	g.logger.Info("session restored", slog.String("username", user.Username))
	return &user, nil
}
