package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/chirper/internal/apperror"
	"github.com/sakif/chirper/internal/model"
	"github.com/sakif/chirper/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new account. Username and email carry UNIQUE
// constraints in the schema; a violation surfaces as apperror.Conflict so the
// service can turn it into a 409 instead of a 500.
//
// WHY CHECK FIRST INSTEAD OF PARSING THE CONSTRAINT ERROR?
// SQLite constraint errors name the column ("UNIQUE constraint failed:
// users.username") but parsing error strings is brittle across driver
// versions. Two cheap SELECTs before the INSERT give us precise error
// messages; the constraint itself remains the real guarantee under races.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	var exists int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, user.Username,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: checking username %q: %w", user.Username, err)
	}
	if exists > 0 {
		return apperror.Conflict("username is already taken")
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ?`, user.Email,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: checking email: %w", err)
	}
	if exists > 0 {
		return apperror.Conflict("email is already registered")
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, email, name, bio, avatar_url, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.Name,
		user.Bio,
		user.AvatarURL,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.scanUser(db.conn.QueryRowContext(ctx,
		`SELECT id, username, email, name, bio, avatar_url, password_hash, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	), id)
}

// GetUserByUsername retrieves a user by username. Usernames are unique and
// case-sensitive; the login flow and the /users/{username} routes both come
// through here.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.scanUser(db.conn.QueryRowContext(ctx,
		`SELECT id, username, email, name, bio, avatar_url, password_hash, created_at, updated_at
		 FROM users WHERE username = ?`,
		username,
	), username)
}

func (db *DB) scanUser(row *sql.Row, key string) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Name,
		&u.Bio,
		&u.AvatarURL,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", key, err)
	}
	return &u, nil
}

// UpdateUser rewrites the mutable profile fields (name, bio, avatar).
// Username, email and the password hash are deliberately not touched here —
// changing those is a different operation with different rules.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, bio = ?, avatar_url = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Bio,
		user.AvatarURL,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update of user %s: %w", user.ID, err)
	}
	if rows == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// SearchUsers matches the query as a case-insensitive substring of username
// or display name. LIKE with ESCAPE handles the % and _ metacharacters so a
// user searching for "100%" doesn't accidentally match everything.
func (db *DB) SearchUsers(ctx context.Context, query string, opts repository.PageOptions) ([]model.User, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, email, name, bio, avatar_url, password_hash, created_at, updated_at
		 FROM users
		 WHERE username LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'
		 ORDER BY username
		 LIMIT ? OFFSET ?`,
		pattern, pattern, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users %q: %w", query, err)
	}
	defer rows.Close()

	users := make([]model.User, 0, opts.Limit)
	for rows.Next() {
		var u model.User
		if err := rows.Scan(
			&u.ID, &u.Username, &u.Email, &u.Name, &u.Bio,
			&u.AvatarURL, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}
	return users, nil
}

// Follow records the edge follower → followed. The composite primary key
// makes the edge unique; RowsAffected == 0 after INSERT OR IGNORE means the
// edge already existed, which we report as a conflict rather than silently
// succeeding — the caller's picture of the graph is stale.
func (db *DB) Follow(ctx context.Context, followerID, followedID string) error {
	res, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO follows (follower_id, followed_id, created_at)
		 VALUES (?, ?, ?)`,
		followerID, followedID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: following %s -> %s: %w", followerID, followedID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking follow: %w", err)
	}
	if rows == 0 {
		return apperror.Conflict("already following this user")
	}
	return nil
}

// Unfollow removes the edge. Deleting an edge that isn't there is a conflict
// for the same staleness reason as Follow.
func (db *DB) Unfollow(ctx context.Context, followerID, followedID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND followed_id = ?`,
		followerID, followedID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unfollowing %s -> %s: %w", followerID, followedID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking unfollow: %w", err)
	}
	if rows == 0 {
		return apperror.Conflict("not following this user")
	}
	return nil
}

func (db *DB) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE follower_id = ? AND followed_id = ?`,
		followerID, followedID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking follow edge: %w", err)
	}
	return n > 0, nil
}

// FollowCounts returns how many accounts follow userID and how many userID
// follows, in one round trip.
func (db *DB) FollowCounts(ctx context.Context, userID string) (followers, following int, err error) {
	err = db.conn.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM follows WHERE followed_id = ?),
			(SELECT COUNT(*) FROM follows WHERE follower_id = ?)`,
		userID, userID,
	).Scan(&followers, &following)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: counting follows for %s: %w", userID, err)
	}
	return followers, following, nil
}

// escapeLike backslash-escapes the LIKE metacharacters in user input.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
