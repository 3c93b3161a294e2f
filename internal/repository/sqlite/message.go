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

// compile-time check that *DB implements repository.MessageRepository
var _ repository.MessageRepository = (*DB)(nil)

// messageColumns is the SELECT list every message query shares. The author
// fields come from a JOIN on users, the counters from correlated subqueries.
//
// WHY SUBQUERIES AND NOT A GROUP BY JOIN?
// A LEFT JOIN on likes with GROUP BY works but interacts badly with the
// second like-related value we need (is_liked, which is viewer-relative).
// Two correlated subqueries read naturally and SQLite's planner handles them
// fine at this scale: the likes primary key (user_id, tweet_id) covers both.
//
// The viewer ID is bound twice per query — once for is_liked, once wherever
// the outer query needs it. Callers pass it as the FIRST parameter.
const messageColumns = `
	t.id, t.content, t.created_at,
	u.id, u.username, u.name, u.avatar_url,
	(SELECT COUNT(*) FROM likes l WHERE l.tweet_id = t.id),
	EXISTS(SELECT 1 FROM likes l WHERE l.tweet_id = t.id AND l.user_id = ?)`

// CreateMessage inserts a post and fills in the generated ID and timestamps.
// The caller (service layer) has already validated the body.
func (db *DB) CreateMessage(ctx context.Context, msg *model.Message, authorID string) error {
	now := time.Now()
	msg.ID = xid.New().String()
	msg.CreatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tweets (id, user_id, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, authorID, msg.Body, msg.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting tweet: %w", err)
	}
	return nil
}

// GetMessage loads a single post with viewer-relative fields resolved.
func (db *DB) GetMessage(ctx context.Context, id, viewerID string) (*model.Message, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+messageColumns+`
		 FROM tweets t JOIN users u ON u.id = t.user_id
		 WHERE t.id = ?`,
		viewerID, id,
	)
	msg, err := scanMessage(row, viewerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("tweet", id)
		}
		return nil, fmt.Errorf("sqlite: getting tweet %s: %w", id, err)
	}
	return msg, nil
}

// DeleteMessage removes a post. Likes cascade via the foreign key. Ownership
// is the service's problem; by the time we're called the check has passed.
func (db *DB) DeleteMessage(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tweets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting tweet %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete of tweet %s: %w", id, err)
	}
	if rows == 0 {
		return apperror.NotFound("tweet", id)
	}
	return nil
}

// Timeline is the global firehose: every post from every account, newest
// first. Filtering to followed accounts would happen here if the product
// wanted it; the follows table is already in place.
func (db *DB) Timeline(ctx context.Context, viewerID string, opts repository.PageOptions) ([]model.Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+messageColumns+`
		 FROM tweets t JOIN users u ON u.id = t.user_id
		 ORDER BY t.created_at DESC, t.id DESC
		 LIMIT ? OFFSET ?`,
		viewerID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading timeline: %w", err)
	}
	return collectMessages(rows, viewerID)
}

// UserMessages is one author's posts, newest first.
func (db *DB) UserMessages(ctx context.Context, authorID, viewerID string, opts repository.PageOptions) ([]model.Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+messageColumns+`
		 FROM tweets t JOIN users u ON u.id = t.user_id
		 WHERE t.user_id = ?
		 ORDER BY t.created_at DESC, t.id DESC
		 LIMIT ? OFFSET ?`,
		viewerID, authorID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading tweets for user %s: %w", authorID, err)
	}
	return collectMessages(rows, viewerID)
}

// SearchMessages matches the query as a case-insensitive substring of the
// body. See SearchUsers for the LIKE-escaping rationale.
func (db *DB) SearchMessages(ctx context.Context, query, viewerID string, opts repository.PageOptions) ([]model.Message, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+messageColumns+`
		 FROM tweets t JOIN users u ON u.id = t.user_id
		 WHERE t.content LIKE ? ESCAPE '\'
		 ORDER BY t.created_at DESC, t.id DESC
		 LIMIT ? OFFSET ?`,
		viewerID, pattern, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching tweets %q: %w", query, err)
	}
	return collectMessages(rows, viewerID)
}

func (db *DB) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tweets WHERE user_id = ?`, authorID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting tweets for %s: %w", authorID, err)
	}
	return n, nil
}

// Like records that userID liked messageID. INSERT OR IGNORE plus the
// composite primary key makes the operation race-safe: two concurrent likes
// insert once, and the loser sees RowsAffected == 0 and reports a conflict.
// The tweet's existence is checked first so a like of a deleted tweet comes
// back as NotFound, not as a foreign-key failure.
func (db *DB) Like(ctx context.Context, userID, messageID string) error {
	if err := db.messageExists(ctx, messageID); err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO likes (user_id, tweet_id, created_at) VALUES (?, ?, ?)`,
		userID, messageID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: liking tweet %s: %w", messageID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking like: %w", err)
	}
	if rows == 0 {
		return apperror.Conflict("tweet is already liked")
	}
	return nil
}

// Unlike removes the like. Conflict when it wasn't there.
func (db *DB) Unlike(ctx context.Context, userID, messageID string) error {
	if err := db.messageExists(ctx, messageID); err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = ? AND tweet_id = ?`,
		userID, messageID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unliking tweet %s: %w", messageID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking unlike: %w", err)
	}
	if rows == 0 {
		return apperror.Conflict("tweet is not liked")
	}
	return nil
}

func (db *DB) messageExists(ctx context.Context, id string) error {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tweets WHERE id = ?`, id,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("sqlite: checking tweet %s: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("tweet", id)
	}
	return nil
}

// scanTarget abstracts over *sql.Row and *sql.Rows so the scan list is
// written once.
type scanTarget interface {
	Scan(dest ...any) error
}

func scanMessage(row scanTarget, viewerID string) (*model.Message, error) {
	var m model.Message
	var liked int
	err := row.Scan(
		&m.ID, &m.Body, &m.CreatedAt,
		&m.Author.ID, &m.Author.Username, &m.Author.Name, &m.Author.AvatarURL,
		&m.LikeCount, &liked,
	)
	if err != nil {
		return nil, err
	}
	m.ViewerLiked = liked != 0
	m.ViewerIsAuthor = m.Author.ID == viewerID
	return &m, nil
}

func collectMessages(rows *sql.Rows, viewerID string) ([]model.Message, error) {
	defer rows.Close()

	msgs := make([]model.Message, 0, 20)
	for rows.Next() {
		m, err := scanMessage(rows, viewerID)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning tweet row: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tweet rows: %w", err)
	}
	return msgs, nil
}
