// Package main is the chirper terminal client.
//
// It drives the whole client core: the gateway owns the session and the
// HTTP surface, the pager owns timeline windows, and the engine applies
// optimistic mutations. The REPL below is deliberately thin — every rule
// about paging, dedup, rollback and session expiry lives in internal/feed
// and internal/gateway, and this file only translates typed commands into
// calls on them.
//
// Usage:
//
//	CHIRPER_API=http://localhost:8080/api chirper
//
// The session token is persisted to CHIRPER_TOKEN_FILE (default
// ~/.chirper/token) so a restart picks up the previous login.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sakif/chirper/internal/api"
	"github.com/sakif/chirper/internal/apperror"
	"github.com/sakif/chirper/internal/feed"
	"github.com/sakif/chirper/internal/gateway"
	"github.com/sakif/chirper/internal/model"
)

// app bundles the client core plus the REPL's one piece of state: which
// scope (home or a profile) the next timeline/more/post command targets.
type app struct {
	gw        *gateway.Gateway
	client    *api.Client
	pager     *feed.Pager
	engine    *feed.Engine
	scope     feed.Scope
	tokenFile string
}

func main() {
	// The client logs to stderr at Warn so retry notices surface without
	// burying the prompt in request logs.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	baseURL := os.Getenv("CHIRPER_API")
	if baseURL == "" {
		baseURL = "http://localhost:8080/api"
	}

	tokenFile := os.Getenv("CHIRPER_TOKEN_FILE")
	if tokenFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot resolve home directory:", err)
			os.Exit(1)
		}
		tokenFile = filepath.Join(home, ".chirper", "token")
	}

	gw := gateway.New(gateway.Config{BaseURL: baseURL}, logger)
	client := api.New(gw)

	// Pager and engine share one set of timeline windows.
	pager := feed.NewPager(client, logger)
	a := &app{
		gw:        gw,
		client:    client,
		pager:     pager,
		engine:    feed.NewEngine(pager, client, gw, logger),
		scope:     feed.Home(),
		tokenFile: tokenFile,
	}

	// When the server invalidates the session (401 on an attached token),
	// the gateway clears it once and fires this hook. Dropping the persisted
	// token here means the next startup goes straight to the login prompt
	// instead of replaying a dead token.
	gw.OnSessionCleared(func() {
		os.Remove(tokenFile)
		fmt.Fprintln(os.Stderr, "\nsession expired — please log in again")
	})

	a.restoreSession()

	fmt.Println(`chirper — type "help" for commands`)
	in := bufio.NewScanner(os.Stdin)
	for {
		a.prompt()
		if !in.Scan() {
			break
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		a.dispatch(line)
	}
}

func (a *app) prompt() {
	if sess, ok := a.gw.Session(); ok {
		fmt.Printf("%s@%s> ", sess.User.Username, a.scope)
	} else {
		fmt.Printf("%s> ", a.scope)
	}
}

// restoreSession proves a persisted token against the server before trusting
// it. A rejected token is deleted, not retried.
func (a *app) restoreSession() {
	raw, err := os.ReadFile(a.tokenFile)
	if err != nil {
		return
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := a.gw.Restore(ctx, token)
	if err != nil {
		if errors.Is(err, apperror.ErrNetwork) {
			fmt.Fprintln(os.Stderr, "warning: could not verify saved session:", err)
			return
		}
		os.Remove(a.tokenFile)
		return
	}
	fmt.Printf("logged in as %s\n", user.Username)
}

func (a *app) saveToken() {
	sess, ok := a.gw.Session()
	if !ok {
		return
	}
	if err := os.MkdirAll(filepath.Dir(a.tokenFile), 0700); err != nil {
		fmt.Fprintln(os.Stderr, "warning: cannot save session:", err)
		return
	}
	// 0600: the token IS the session, keep it private to the user.
	if err := os.WriteFile(a.tokenFile, []byte(sess.Token), 0600); err != nil {
		fmt.Fprintln(os.Stderr, "warning: cannot save session:", err)
	}
}

func (a *app) dispatch(line string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch cmd {
	case "help":
		a.printHelp()
	case "register":
		err = a.register(ctx)
	case "login":
		err = a.login(ctx, rest)
	case "logout":
		err = a.logout(ctx)
	case "whoami":
		a.whoami()
	case "timeline", "tl":
		err = a.timeline(ctx, rest)
	case "more":
		err = a.more(ctx)
	case "post":
		err = a.post(ctx, rest)
	case "like":
		err = a.like(ctx, rest, true)
	case "unlike":
		err = a.like(ctx, rest, false)
	case "delete":
		err = a.deleteMessage(ctx, rest)
	case "profile":
		err = a.profile(ctx, rest)
	case "follow":
		err = a.client.Follow(ctx, rest)
	case "unfollow":
		err = a.client.Unfollow(ctx, rest)
	case "search":
		err = a.search(ctx, rest)
	case "notifications", "notifs":
		err = a.notifications(ctx)
	default:
		fmt.Printf("unknown command %q — try \"help\"\n", cmd)
	}

	if err != nil {
		fmt.Println("error:", describeError(err))
	}
}

func (a *app) printHelp() {
	fmt.Print(`commands:
  register                    create an account (prompts for details)
  login <username>            log in (prompts for password)
  logout                      log out and forget the saved session
  whoami                      show the current session
  timeline [username]         show the feed (or one user's tweets)
  more                        load the next page of the current feed
  post <text>                 post a tweet to your followers
  like <n> / unlike <n>       toggle like on tweet #n of the current feed
  delete <n>                  delete your tweet #n
  profile <username>          show a profile
  follow / unfollow <user>    manage the social graph
  search users|tweets <q>     search
  notifications               list notifications and mark them read
  quit
`)
}

// --- session commands ---

func (a *app) register(ctx context.Context) error {
	username := promptLine("username: ")
	email := promptLine("email: ")
	name := promptLine("display name (optional): ")
	password := promptLine("password: ")

	user, err := a.gw.Register(ctx, username, email, password, name)
	if err != nil {
		return err
	}
	a.saveToken()
	fmt.Printf("welcome, %s\n", user.Username)
	return nil
}

func (a *app) login(ctx context.Context, username string) error {
	if username == "" {
		username = promptLine("username: ")
	}
	password := promptLine("password: ")

	user, err := a.gw.Login(ctx, username, password)
	if err != nil {
		return err
	}
	a.saveToken()
	fmt.Printf("logged in as %s\n", user.Username)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	err := a.gw.Logout(ctx)
	os.Remove(a.tokenFile)
	if err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func (a *app) whoami() {
	sess, ok := a.gw.Session()
	if !ok {
		fmt.Println("not logged in")
		return
	}
	fmt.Printf("%s (%s)\n", sess.User.Username, sess.User.Name)
}

// --- feed commands ---

func (a *app) timeline(ctx context.Context, username string) error {
	scope := feed.Home()
	if username != "" {
		scope = feed.Profile(username)
	}
	a.scope = scope

	snap, err := a.pager.LoadFirstPage(ctx, scope)
	if err != nil {
		return err
	}
	a.render(snap)
	return nil
}

func (a *app) more(ctx context.Context) error {
	snap, err := a.pager.LoadNextPage(ctx, a.scope)
	if err != nil {
		return err
	}
	a.render(snap)
	return nil
}

func (a *app) post(ctx context.Context, body string) error {
	if body == "" {
		return apperror.InvalidInput("content", "nothing to post")
	}
	msg, err := a.engine.CreateMessage(ctx, a.scope, body)
	if err != nil {
		return err
	}
	fmt.Printf("posted #%s\n", msg.ID)
	return nil
}

func (a *app) like(ctx context.Context, ref string, on bool) error {
	msg, err := a.resolveRef(ref)
	if err != nil {
		return err
	}

	var pnd *feed.Pending
	if on {
		pnd, err = a.engine.Like(ctx, a.scope, msg.ID)
	} else {
		pnd, err = a.engine.Unlike(ctx, a.scope, msg.ID)
	}
	if err != nil {
		return err
	}
	if pnd == nil {
		return nil // already in the requested state
	}

	// The optimistic flip is already visible; wait for the settle so the
	// REPL can report a rollback in line with the command that caused it.
	if err := pnd.Wait(ctx); err != nil {
		return err
	}
	updated, _ := a.pager.Message(a.scope, msg.ID)
	fmt.Printf("#%s now has %d likes\n", updated.ID, updated.LikeCount)
	return nil
}

func (a *app) deleteMessage(ctx context.Context, ref string) error {
	msg, err := a.resolveRef(ref)
	if err != nil {
		return err
	}
	pnd, err := a.engine.DeleteMessage(ctx, a.scope, msg.ID)
	if err != nil {
		return err
	}
	if err := pnd.Wait(ctx); err != nil {
		return err
	}
	fmt.Printf("deleted #%s\n", msg.ID)
	return nil
}

// resolveRef turns a command argument into a message from the current
// window. Plain numbers are 1-based positions in the last rendered
// snapshot; anything else is treated as a message id.
func (a *app) resolveRef(ref string) (model.Message, error) {
	if ref == "" {
		return model.Message{}, apperror.InvalidInput("id", "which tweet? give a number or id")
	}

	snap := a.pager.Snapshot(a.scope)
	var n int
	if _, err := fmt.Sscanf(ref, "%d", &n); err == nil && n >= 1 && n <= len(snap.Messages) {
		return snap.Messages[n-1], nil
	}

	if msg, ok := a.pager.Message(a.scope, ref); ok {
		return msg, nil
	}
	return model.Message{}, apperror.NotFound("tweet", ref)
}

func (a *app) render(snap feed.Snapshot) {
	if len(snap.Messages) == 0 {
		fmt.Println("(empty feed)")
		return
	}
	for i, msg := range snap.Messages {
		mark := " "
		if msg.ViewerLiked {
			mark = "♥"
		}
		fmt.Printf("%3d. @%-15s %s\n", i+1, msg.Author.Username, msg.Body)
		fmt.Printf("     %s %s · %d likes · %s\n",
			mark, msg.ID, msg.LikeCount, msg.CreatedAt.Local().Format("Jan 2 15:04"))
	}
	if snap.State == feed.Exhausted {
		fmt.Println("(end of feed)")
	} else {
		fmt.Println(`(type "more" for the next page)`)
	}
}

// --- lookups ---

func (a *app) profile(ctx context.Context, username string) error {
	if username == "" {
		return apperror.InvalidInput("username", "profile of whom?")
	}
	p, err := a.client.Profile(ctx, username)
	if err != nil {
		return err
	}
	fmt.Printf("@%s — %s\n", p.Username, p.Name)
	if p.Bio != "" {
		fmt.Println(p.Bio)
	}
	fmt.Printf("%d tweets · %d followers · %d following", p.MessageCount, p.FollowerCount, p.FollowingCount)
	if p.ViewerFollowing {
		fmt.Print(" · following")
	}
	fmt.Println()
	return nil
}

func (a *app) search(ctx context.Context, args string) error {
	kind, query, _ := strings.Cut(args, " ")
	query = strings.TrimSpace(query)

	switch kind {
	case "users":
		users, err := a.client.SearchUsers(ctx, query)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("no users found")
		}
		for _, u := range users {
			fmt.Printf("@%-15s %s\n", u.Username, u.Name)
		}
	case "tweets":
		msgs, err := a.client.SearchMessages(ctx, query)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("no tweets found")
		}
		for _, msg := range msgs {
			fmt.Printf("@%-15s %s\n", msg.Author.Username, msg.Body)
		}
	default:
		return apperror.InvalidInput("kind", `search what? use "search users <q>" or "search tweets <q>"`)
	}
	return nil
}

func (a *app) notifications(ctx context.Context) error {
	notifs, err := a.client.Notifications(ctx)
	if err != nil {
		return err
	}
	if len(notifs) == 0 {
		fmt.Println("no notifications")
		return nil
	}
	for _, n := range notifs {
		unread := " "
		if !n.Read {
			unread = "*"
		}
		switch n.Kind {
		case model.NotificationLike:
			fmt.Printf("%s @%s liked your tweet %s\n", unread, n.Actor.Username, n.MessageID)
		case model.NotificationFollow:
			fmt.Printf("%s @%s followed you\n", unread, n.Actor.Username)
		default:
			fmt.Printf("%s @%s: %s\n", unread, n.Actor.Username, n.Kind)
		}
	}
	// Viewing the list marks everything read.
	return a.client.MarkNotificationsRead(ctx)
}

func promptLine(label string) string {
	fmt.Print(label)
	in := bufio.NewReader(os.Stdin)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

// describeError keeps REPL output friendly for the errors users actually
// cause, and verbatim for everything else.
func describeError(err error) string {
	switch {
	case errors.Is(err, apperror.ErrSessionExpired):
		return "your session expired — log in again"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return "you need to log in first"
	case errors.Is(err, apperror.ErrNetwork):
		return "cannot reach the server — is it running?"
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
