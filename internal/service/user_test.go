package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/chirper/internal/apperror"
	"github.com/sakif/chirper/internal/model"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)

	res, err := f.userSvc.Register(context.Background(), "alice", "alice@example.com", "password123", "Alice A")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if res.Token == "" {
		t.Error("Register() issued no token — client would need a second login call")
	}
	if res.User.ID == "" {
		t.Error("Register() user has no ID")
	}
	if res.User.PasswordHash == "password123" {
		t.Error("password stored in plain text")
	}
	if !strings.HasPrefix(res.User.PasswordHash, "$2") {
		t.Errorf("PasswordHash = %q, want a bcrypt hash", res.User.PasswordHash)
	}
}

func TestRegister_NameDefaultsToUsername(t *testing.T) {
	f := newFixture(t)

	res, err := f.userSvc.Register(context.Background(), "bob", "bob@example.com", "password123", "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if res.User.Name != "bob" {
		t.Errorf("Name = %q, want the username as fallback", res.User.Name)
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"short username", "ab", "a@b.com", "password123"},
		{"long username", strings.Repeat("a", MaxUsernameLength+1), "a@b.com", "password123"},
		{"username with spaces", "has spaces", "a@b.com", "password123"},
		{"username with path characters", "../etc", "a@b.com", "password123"},
		{"bad email", "validname", "not-an-email", "password123"},
		{"short password", "validname", "a@b.com", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.userSvc.Register(ctx, tc.username, tc.email, tc.password, "")
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Register() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	f := newFixture(t)
	f.register(t, "taken")

	_, err := f.userSvc.Register(context.Background(), "taken", "other@example.com", "password123", "")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Register() duplicate error = %v, want ErrConflict", err)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	res, err := f.userSvc.Login(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.Token == "" {
		t.Error("Login() issued no token")
	}
	if res.User.Username != "alice" {
		t.Errorf("Username = %q, want alice", res.User.Username)
	}
}

func TestLogin_BadCredentialsAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	ctx := context.Background()

	_, errUnknownUser := f.userSvc.Login(ctx, "nosuchuser", "password123")
	_, errWrongPassword := f.userSvc.Login(ctx, "alice", "wrong-password")

	// Both must be ErrUnauthenticated, with identical messages, so an
	// attacker can't probe which usernames exist.
	if !errors.Is(errUnknownUser, apperror.ErrUnauthenticated) {
		t.Errorf("unknown user error = %v, want ErrUnauthenticated", errUnknownUser)
	}
	if !errors.Is(errWrongPassword, apperror.ErrUnauthenticated) {
		t.Errorf("wrong password error = %v, want ErrUnauthenticated", errWrongPassword)
	}
	if errUnknownUser.Error() != errWrongPassword.Error() {
		t.Errorf("error messages differ: %q vs %q — username enumeration leak",
			errUnknownUser.Error(), errWrongPassword.Error())
	}
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")
	ctx := context.Background()

	f.msgSvc.Create(ctx, alice.ID, "tweet one")
	f.msgSvc.Create(ctx, alice.ID, "tweet two")
	f.userSvc.Follow(ctx, bob.ID, "alice")
	f.userSvc.Follow(ctx, carol.ID, "alice")
	f.userSvc.Follow(ctx, alice.ID, "bob")

	// As bob, who follows alice.
	p, err := f.userSvc.Profile(ctx, "alice", bob.ID)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.FollowerCount != 2 || p.FollowingCount != 1 {
		t.Errorf("counts = %d followers, %d following; want 2, 1", p.FollowerCount, p.FollowingCount)
	}
	if p.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", p.MessageCount)
	}
	if !p.ViewerFollowing {
		t.Error("ViewerFollowing = false for a follower")
	}

	// Anonymous viewer.
	p, err = f.userSvc.Profile(ctx, "alice", "")
	if err != nil {
		t.Fatalf("Profile() anonymous error = %v", err)
	}
	if p.ViewerFollowing {
		t.Error("ViewerFollowing = true for an anonymous viewer")
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	ctx := context.Background()

	updated, err := f.userSvc.UpdateProfile(ctx, alice.ID, "New Alice", "bio here", "https://x/a.png")
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.Name != "New Alice" || updated.Bio != "bio here" {
		t.Errorf("update not applied: %+v", updated)
	}

	// Clearing the name falls back to the username.
	updated, err = f.userSvc.UpdateProfile(ctx, alice.ID, "", "", "")
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.Name != "alice" {
		t.Errorf("Name = %q, want username fallback", updated.Name)
	}

	if _, err := f.userSvc.UpdateProfile(ctx, alice.ID, "", strings.Repeat("b", MaxBioLength+1), ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("over-long bio error = %v, want ErrValidation", err)
	}
}

func TestFollowRules(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	ctx := context.Background()

	if err := f.userSvc.Follow(ctx, alice.ID, "alice"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("self-follow error = %v, want ErrValidation", err)
	}
	if err := f.userSvc.Follow(ctx, alice.ID, "ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("follow unknown user error = %v, want ErrNotFound", err)
	}

	if err := f.userSvc.Follow(ctx, alice.ID, "bob"); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if err := f.userSvc.Follow(ctx, alice.ID, "bob"); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("double follow error = %v, want ErrConflict", err)
	}

	// Bob got exactly one follow notification.
	notifs, err := f.notifSvc.List(ctx, bob.ID, 1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(notifs) != 1 || notifs[0].Kind != model.NotificationFollow {
		t.Fatalf("bob's notifications = %+v, want one follow", notifs)
	}

	if err := f.userSvc.Unfollow(ctx, alice.ID, "bob"); err != nil {
		t.Fatalf("Unfollow() error = %v", err)
	}
	if err := f.userSvc.Unfollow(ctx, alice.ID, "bob"); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("double unfollow error = %v, want ErrConflict", err)
	}
}

func TestSearchUsers(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice_dev")
	f.register(t, "bob_dev")
	f.register(t, "carol")
	ctx := context.Background()

	users, err := f.userSvc.Search(ctx, "dev", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("Search(dev) returned %d users, want 2", len(users))
	}

	if _, err := f.userSvc.Search(ctx, "", 1); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Search(empty) error = %v, want ErrValidation", err)
	}
}

func TestNotificationMarkAllRead(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")
	ctx := context.Background()

	f.userSvc.Follow(ctx, bob.ID, "alice")
	f.userSvc.Follow(ctx, carol.ID, "alice")

	count, _ := f.notifSvc.UnreadCount(ctx, alice.ID)
	if count != 2 {
		t.Fatalf("UnreadCount = %d, want 2", count)
	}

	if err := f.notifSvc.MarkAllRead(ctx, alice.ID); err != nil {
		t.Fatalf("MarkAllRead() error = %v", err)
	}
	count, _ = f.notifSvc.UnreadCount(ctx, alice.ID)
	if count != 0 {
		t.Errorf("UnreadCount after MarkAllRead = %d, want 0", count)
	}

	// The notifications are still listed, just read.
	notifs, _ := f.notifSvc.List(ctx, alice.ID, 1)
	if len(notifs) != 2 {
		t.Fatalf("List() returned %d, want 2", len(notifs))
	}
	for _, n := range notifs {
		if !n.Read {
			t.Errorf("notification %s still unread", n.ID)
		}
	}
}
