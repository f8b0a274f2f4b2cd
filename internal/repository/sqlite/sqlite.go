// Package sqlite implements the repository interfaces on an embedded SQLite
// database (modernc.org/sqlite, pure Go, no CGo).
//
// DOCUMENTS ON A RELATIONAL STORE:
// A tweet "document" is spread over several tables:
//
//	tweets          one row per tweet (including retweet shadows)
//	tweet_likes     (tweet_id, user_id) set, insertion order by rowid
//	tweet_retweets  (tweet_id, user_id) set, insertion order by rowid
//	tweet_comments  ordered comment thread
//	tweet_hashtags  (tweet_id, position, tag), duplicates allowed
//
// The composite primary keys give the likes/retweets tables set semantics,
// so "add to set" is INSERT OR IGNORE and "remove from set" is DELETE. Both
// are single atomic statements.
//
// Timestamps are stored as INTEGER unix milliseconds.
package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sakif/social-feed/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements both repositories.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// busyTimeout is how long a connection waits for another writer's lock
// before failing with SQLITE_BUSY.
const busyTimeout = 5 * time.Second

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/feed.db"  → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests)
//
// An in-memory database exists per connection, so the pool is pinned to a
// single connection in that case.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// dsn attaches the connection settings to dbPath. Pragmas are scoped to a
// single connection, so the driver applies them on every connection it
// opens for the pool:
//
//	busy_timeout   wait for a competing writer instead of failing
//	foreign_keys   engagement rows cascade on tweet delete and reject
//	               unknown tweets and users
//	journal_mode   WAL, readers never block the writer (files only)
//
// _txlock=immediate takes the write lock at BEGIN, so a transaction never
// has to upgrade a read lock while another writer holds it.
func dsn(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	if dbPath != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_txlock", "immediate")
	return dbPath + "?" + q.Encode()
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			username        TEXT NOT NULL UNIQUE,
			email           TEXT UNIQUE,
			password_hash   TEXT NOT NULL DEFAULT '',
			github_id       INTEGER UNIQUE,
			profile_picture TEXT NOT NULL DEFAULT '',
			bio             TEXT NOT NULL DEFAULT '',
			location        TEXT NOT NULL DEFAULT '',
			website         TEXT NOT NULL DEFAULT '',
			is_admin        INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_follows (
			follower_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			followee_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at  INTEGER NOT NULL,
			PRIMARY KEY (follower_id, followee_id)
		);
		CREATE INDEX IF NOT EXISTS idx_user_follows_followee ON user_follows(followee_id);
	`)
	if err != nil {
		return fmt.Errorf("creating user tables: %w", err)
	}

	// original_tweet_id has no foreign key: a shadow may outlive its
	// original, and the reconciliation pass reports those.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tweets (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL REFERENCES users(id),
			content           TEXT NOT NULL DEFAULT '',
			image             TEXT NOT NULL DEFAULT '',
			video             TEXT NOT NULL DEFAULT '',
			original_tweet_id TEXT,
			is_retweet        INTEGER NOT NULL DEFAULT 0,
			is_deleted        INTEGER NOT NULL DEFAULT 0,
			deleted_reason    TEXT NOT NULL DEFAULT '',
			deleted_by        TEXT NOT NULL DEFAULT '',
			deleted_at        INTEGER,
			created_at        INTEGER NOT NULL,
			updated_at        INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tweets_created_at ON tweets(created_at);
		CREATE INDEX IF NOT EXISTS idx_tweets_user_id ON tweets(user_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tweets_one_retweet
			ON tweets(user_id, original_tweet_id) WHERE is_retweet = 1;

		CREATE TABLE IF NOT EXISTS tweet_likes (
			tweet_id TEXT NOT NULL REFERENCES tweets(id) ON DELETE CASCADE,
			user_id  TEXT NOT NULL,
			PRIMARY KEY (tweet_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS tweet_retweets (
			tweet_id TEXT NOT NULL REFERENCES tweets(id) ON DELETE CASCADE,
			user_id  TEXT NOT NULL,
			PRIMARY KEY (tweet_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS tweet_comments (
			id         TEXT PRIMARY KEY,
			tweet_id   TEXT NOT NULL REFERENCES tweets(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL,
			text       TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tweet_comments_tweet ON tweet_comments(tweet_id);

		CREATE TABLE IF NOT EXISTS tweet_hashtags (
			tweet_id TEXT NOT NULL REFERENCES tweets(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			tag      TEXT NOT NULL,
			PRIMARY KEY (tweet_id, position)
		);
		CREATE INDEX IF NOT EXISTS idx_tweet_hashtags_tag ON tweet_hashtags(tag);
	`)
	if err != nil {
		return fmt.Errorf("creating tweet tables: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(vals []string) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

// escapeLike escapes LIKE wildcards so user input matches literally.
// Queries using it must declare ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// nullIfEmpty stores "" as NULL so optional UNIQUE columns don't collide.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
