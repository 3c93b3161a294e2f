// Package gateway is the session gateway: the single outbound request
// pipeline for the client core.
//
// Every page fetch and every mutation goes through one Gateway. That is the
// point of the component — an explicit object with a stated contract, instead
// of interceptors hidden inside an HTTP stack:
//
//   - Attach injects "Authorization: Bearer <token>" when a session is live
//     and leaves the request untouched otherwise.
//   - Do classifies every exchange into the apperror taxonomy. An
//     authorization failure on a live session clears that session exactly
//     once, no matter how many requests were in flight with it, and comes
//     back as ErrSessionExpired. Callers must treat that as terminal.
//
// The gateway owns the credential exclusively. Nothing else in the client
// reads or writes the token.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/sakif/chirper/internal/apperror"
	"github.com/sakif/chirper/internal/model"
)

// Config is the environment surface of the client core: where the API lives
// and how long a single exchange may take. Nothing else about the core is
// environment-dependent.
type Config struct {
	BaseURL string        // e.g. "http://localhost:8080/api"
	Timeout time.Duration // per-request transport timeout
}

// DefaultTimeout bounds a single exchange when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Gateway owns the live session and performs all network exchanges.
type Gateway struct {
	base   string
	client *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	session   *model.Session
	onCleared func() // invoked (outside the lock) when a session is torn down
}

// New creates a Gateway. The HTTP client's timeout is the transport-level
// timeout from spec'd config; a timeout surfaces as a network error like any
// other transport failure.
func New(cfg Config, logger *slog.Logger) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Session returns a snapshot of the live session, if any.
func (g *Gateway) Session() (model.Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return model.Session{}, false
	}
	return *g.session, true
}

// OnSessionCleared registers a hook invoked whenever the session is torn down
// (explicit logout or mid-flight expiry). The owning application uses this
// for its redirect-to-login equivalent; the core itself never re-authenticates.
func (g *Gateway) OnSessionCleared(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onCleared = fn
}

// Attach injects the bearer credential into an outbound request if a session
// exists; otherwise the request passes through unchanged.
func (g *Gateway) Attach(req *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil {
		req.Header.Set("Authorization", "Bearer "+g.session.Token)
	}
}

// install replaces the session. Used by Login/Register/Restore.
func (g *Gateway) install(s model.Session) {
	g.mu.Lock()
	g.session = &s
	g.mu.Unlock()
}

// clearIfToken tears the session down only if the live token is the one the
// failed request carried. Two requests in flight with the same credential can
// both hit 401, but only the first one through here clears the session and
// fires the hook; the second finds the token already gone.
func (g *Gateway) clearIfToken(token string) {
	g.mu.Lock()
	cleared := false
	if g.session != nil && g.session.Token == token {
		g.session = nil
		cleared = true
	}
	hook := g.onCleared
	g.mu.Unlock()

	if cleared {
		g.logger.Warn("session invalidated by server")
		if hook != nil {
			hook()
		}
	}
}

// Do performs one exchange and classifies the outcome.
//
// body (if non-nil) is JSON-encoded; out (if non-nil) receives the decoded
// 2xx response body. The returned error is always from the apperror taxonomy:
// ErrNetwork for transport failures, ErrSessionExpired / ErrUnauthenticated
// for authorization failures, ErrRemoteRejected for every other non-2xx.
func (g *Gateway) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := g.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: encoding request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("gateway: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	g.Attach(req)
	// Remember which credential this request carried so a 401 can be
	// attributed to it even if another goroutine swaps the session meanwhile.
	sentToken := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return apperror.Network(err)
	}
	defer resp.Body.Close()

	g.logger.Debug("request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		if sentToken == "" {
			// We never had a credential; the operation was unauthenticated
			// from the start, there is no session to tear down.
			return apperror.Unauthenticated()
		}
		g.clearIfToken(sentToken)
		return apperror.SessionExpired()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperror.RemoteRejected(resp.StatusCode, decodeErrorMessage(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("gateway: decoding response: %w", err)
		}
	}
	return nil
}

// Get performs an idempotent read with transport-level retries. Only network
// errors are retried; a rejection or an expired session comes back
// immediately. Use Do directly for anything that mutates.
func (g *Gateway) Get(ctx context.Context, path string, query url.Values, out any) error {
	return retry.Do(
		func() error {
			return g.Do(ctx, http.MethodGet, path, query, nil, out)
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(250*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Info("retrying read", slog.String("path", path), slog.Uint64("attempt", uint64(n)), slog.String("error", err.Error()))
		}),
		retry.RetryIf(apperror.Retryable),
	)
}

// decodeErrorMessage pulls the human-readable message out of an error
// response body, tolerating both {"message": ...} and {"error": ...} shapes.
func decodeErrorMessage(r io.Reader) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
