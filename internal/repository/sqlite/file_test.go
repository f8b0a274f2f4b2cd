package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/model"
)

// =========================================================================
// FILE-BACKED DATABASE TESTS
// =========================================================================
//
// ":memory:" pins the pool to one connection. These tests use a real file
// so the pool opens several connections, the way the server runs.

func newFileTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "feed.db"))
	if err != nil {
		t.Fatalf("failed to create file database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *DB, table, tweetID string) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE tweet_id = ?`, tweetID).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestDSN(t *testing.T) {
	got := dsn("data/feed.db")
	for _, want := range []string{"busy_timeout%285000%29", "foreign_keys%281%29", "journal_mode%28WAL%29", "_txlock=immediate"} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(dsn(":memory:"), "journal_mode") {
		t.Errorf("dsn(:memory:) sets journal_mode")
	}
}

func TestFileDB_PragmasOnEveryConnection(t *testing.T) {
	db := newFileTestDB(t)
	ctx := context.Background()

	// Hold one connection so the checks below run on fresh ones.
	held, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer held.Close()

	other, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer other.Close()

	var fk, timeout int
	var mode string
	other.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk)
	other.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout)
	other.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode)

	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
	if timeout != int(busyTimeout.Milliseconds()) {
		t.Errorf("busy_timeout = %d, want %d", timeout, busyTimeout.Milliseconds())
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestFileDB_UnknownTweetRejected(t *testing.T) {
	db := newFileTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")

	held, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer held.Close()

	_, err = db.AddComment(ctx, "missing-tweet", &model.Comment{UserID: alice.ID, Text: "hi"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddComment(missing) error = %v, want ErrNotFound", err)
	}
	if n := countRows(t, db, "tweet_comments", "missing-tweet"); n != 0 {
		t.Errorf("comments stored for missing tweet = %d, want 0", n)
	}

	if _, err := db.AddLike(ctx, "missing-tweet", alice.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddLike(missing) error = %v, want ErrNotFound", err)
	}
	if err := db.Follow(ctx, alice.ID, "missing-user"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Follow(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFileDB_DeleteCascades(t *testing.T) {
	db := newFileTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	tweet := createTestTweet(t, db, alice, "bye #x", "x")

	held, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer held.Close()

	if _, err := db.AddLike(ctx, tweet.ID, bob.ID); err != nil {
		t.Fatalf("AddLike() error = %v", err)
	}
	if err := db.AddRetweeter(ctx, tweet.ID, bob.ID); err != nil {
		t.Fatalf("AddRetweeter() error = %v", err)
	}
	if _, err := db.AddComment(ctx, tweet.ID, &model.Comment{UserID: bob.ID, Text: "c"}); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}

	if err := db.DeleteTweet(ctx, tweet.ID); err != nil {
		t.Fatalf("DeleteTweet() error = %v", err)
	}
	for _, table := range []string{"tweet_likes", "tweet_retweets", "tweet_comments", "tweet_hashtags"} {
		if n := countRows(t, db, table, tweet.ID); n != 0 {
			t.Errorf("%s rows after delete = %d, want 0", table, n)
		}
	}
}

func TestFileDB_ConcurrentWrites(t *testing.T) {
	db := newFileTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	tweet := createTestTweet(t, db, alice, "popular")

	const writers = 40
	var wg sync.WaitGroup
	errs := make(chan error, writers*2)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%02d", i)
			if _, err := db.AddLike(ctx, tweet.ID, userID); err != nil {
				errs <- fmt.Errorf("AddLike(%s): %w", userID, err)
			}
			if _, err := db.AddComment(ctx, tweet.ID, &model.Comment{UserID: userID, Text: "me too"}); err != nil {
				errs <- fmt.Errorf("AddComment(%s): %w", userID, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if n := countRows(t, db, "tweet_likes", tweet.ID); n != writers {
		t.Errorf("likes = %d, want %d", n, writers)
	}
	if n := countRows(t, db, "tweet_comments", tweet.ID); n != writers {
		t.Errorf("comments = %d, want %d", n, writers)
	}
}
