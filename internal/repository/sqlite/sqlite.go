// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// SQLite is an embedded database — it lives inside the binary as a single
// file, with no separate server to run. modernc.org/sqlite is a pure Go
// translation of the SQLite C code, so there is no CGo and cross-compilation
// stays painless. Use ":memory:" as the path for tests.
//
// The pattern throughout this package:
//  1. sql.Open("sqlite", path) creates a connection pool
//  2. ExecContext / QueryContext run parameterized queries (always ?, never
//     string concatenation — SQL injection is not negotiable)
//  3. sql.ErrNoRows is translated to apperror.NotFound at this boundary, so
//     the layers above never see database/sql sentinels
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: the driver registers itself with database/sql
	// under the name "sqlite".
	_ "modernc.org/sqlite"
)

// DB wraps the connection pool and implements every repository interface.
// One type for all of them keeps the wiring in server.go to a single value.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// The pragmas ride in the DSN rather than a one-off Exec because database/sql
// is a connection POOL: an Exec'd pragma only configures whichever connection
// the pool happened to hand out, while DSN pragmas apply to every connection
// the driver opens.
//
//   - journal_mode=WAL lets reads proceed while a write is in progress —
//     necessary for a web server where requests overlap.
//   - foreign_keys=ON because the likes/follows tables rely on enforcement
//     (notably ON DELETE CASCADE from tweets to likes), and SQLite ships
//     with it off.
//   - busy_timeout makes a second writer wait instead of failing with
//     SQLITE_BUSY.
func New(dbPath string) (*DB, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// An in-memory database exists per connection: a pool of two connections
	// would be two independent empty databases. Pin the pool to one.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Defer it wherever New is called — it
// flushes the WAL and releases the file lock.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it safe to
// run on every startup; anything fancier would want golang-migrate.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL DEFAULT '',
			bio           TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS tweets (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id),
			content    TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_tweets_created_at ON tweets(created_at);
		CREATE INDEX IF NOT EXISTS idx_tweets_user_id ON tweets(user_id);

		CREATE TABLE IF NOT EXISTS likes (
			user_id    TEXT NOT NULL REFERENCES users(id),
			tweet_id   TEXT NOT NULL REFERENCES tweets(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, tweet_id)
		);

		CREATE TABLE IF NOT EXISTS follows (
			follower_id TEXT NOT NULL REFERENCES users(id),
			followed_id TEXT NOT NULL REFERENCES users(id),
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (follower_id, followed_id)
		);

		CREATE TABLE IF NOT EXISTS notifications (
			id           TEXT PRIMARY KEY,
			recipient_id TEXT NOT NULL REFERENCES users(id),
			type         TEXT NOT NULL,
			actor_id     TEXT NOT NULL REFERENCES users(id),
			tweet_id     TEXT NOT NULL DEFAULT '',
			is_read      INTEGER NOT NULL DEFAULT 0,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
