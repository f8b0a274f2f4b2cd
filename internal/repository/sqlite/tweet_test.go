package sqlite

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/model"
	"github.com/sakif/social-feed/internal/repository"
)

// =========================================================================
// CREATE / GET TESTS
// =========================================================================

func TestCreateTweet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")

	tweet := createTestTweet(t, db, alice, "Check #go and #GO", "go", "go")
	if tweet.ID == "" {
		t.Fatal("CreateTweet() did not set ID")
	}

	got, err := db.GetTweet(ctx, tweet.ID)
	if err != nil {
		t.Fatalf("GetTweet() error = %v", err)
	}
	if got.User.Username != "alice" {
		t.Errorf("User.Username = %q, want alice", got.User.Username)
	}
	if !reflect.DeepEqual(got.Hashtags, []string{"go", "go"}) {
		t.Errorf("Hashtags = %v, want [go go]", got.Hashtags)
	}
	if got.Likes == nil || got.Retweets == nil || got.Comments == nil {
		t.Error("GetTweet() should return empty, non-nil collections")
	}
	if !got.CreatedAt.Equal(tweet.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, tweet.CreatedAt)
	}
}

func TestGetTweet_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetTweet(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetTweet() error = %v, want ErrNotFound", err)
	}
}

func TestCreateTweet_OneShadowPerUserAndOriginal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	orig := createTestTweet(t, db, alice, "original")

	shadow := &model.Tweet{User: bob.Ref(), Content: orig.Content, OriginalTweetID: orig.ID, IsRetweet: true}
	if err := db.CreateTweet(ctx, shadow); err != nil {
		t.Fatalf("CreateTweet(shadow) error = %v", err)
	}

	dup := &model.Tweet{User: bob.Ref(), Content: orig.Content, OriginalTweetID: orig.ID, IsRetweet: true}
	if err := db.CreateTweet(ctx, dup); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateTweet(duplicate shadow) error = %v, want ErrConflict", err)
	}

	found, err := db.FindRetweet(ctx, bob.ID, orig.ID)
	if err != nil {
		t.Fatalf("FindRetweet() error = %v", err)
	}
	if found.ID != shadow.ID {
		t.Errorf("FindRetweet().ID = %q, want %q", found.ID, shadow.ID)
	}

	if _, err := db.FindRetweet(ctx, alice.ID, orig.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("FindRetweet(alice) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListTweets_NewestFirstAndFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	setClock(db, base)
	t1 := createTestTweet(t, db, alice, "first #go", "go")
	setClock(db, base.Add(time.Minute))
	t2 := createTestTweet(t, db, bob, "second 100% Gopher")
	setClock(db, base.Add(2*time.Minute))
	t3 := createTestTweet(t, db, alice, "third #rust", "rust")

	all, err := db.ListTweets(ctx, repository.TweetFilter{})
	if err != nil {
		t.Fatalf("ListTweets() error = %v", err)
	}
	if ids := tweetIDs(all); !reflect.DeepEqual(ids, []string{t3.ID, t2.ID, t1.ID}) {
		t.Errorf("ListTweets() order = %v", ids)
	}

	byAuthor, _ := db.ListTweets(ctx, repository.TweetFilter{AuthorID: alice.ID})
	if ids := tweetIDs(byAuthor); !reflect.DeepEqual(ids, []string{t3.ID, t1.ID}) {
		t.Errorf("ListTweets(author) = %v", ids)
	}

	byTag, _ := db.ListTweets(ctx, repository.TweetFilter{Hashtag: "go"})
	if ids := tweetIDs(byTag); !reflect.DeepEqual(ids, []string{t1.ID}) {
		t.Errorf("ListTweets(hashtag) = %v", ids)
	}

	search, _ := db.ListTweets(ctx, repository.TweetFilter{ContentContains: "gopher"})
	if ids := tweetIDs(search); !reflect.DeepEqual(ids, []string{t2.ID}) {
		t.Errorf("ListTweets(contains gopher) = %v", ids)
	}

	literal, _ := db.ListTweets(ctx, repository.TweetFilter{ContentContains: "0%"})
	if ids := tweetIDs(literal); !reflect.DeepEqual(ids, []string{t2.ID}) {
		t.Errorf("ListTweets(contains 0%%) = %v", ids)
	}

	limited, _ := db.ListTweets(ctx, repository.TweetFilter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("ListTweets(limit 2) returned %d", len(limited))
	}
}

func TestListTweets_WithOriginals(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	orig := createTestTweet(t, db, alice, "original")
	db.AddLike(ctx, orig.ID, bob.ID)

	shadow := &model.Tweet{User: bob.Ref(), Content: orig.Content, OriginalTweetID: orig.ID, IsRetweet: true}
	if err := db.CreateTweet(ctx, shadow); err != nil {
		t.Fatalf("CreateTweet(shadow) error = %v", err)
	}

	tweets, err := db.ListTweets(ctx, repository.TweetFilter{AuthorID: bob.ID, WithOriginals: true})
	if err != nil {
		t.Fatalf("ListTweets() error = %v", err)
	}
	if len(tweets) != 1 {
		t.Fatalf("ListTweets() returned %d tweets, want 1", len(tweets))
	}
	if tweets[0].Original == nil {
		t.Fatal("Original not populated")
	}
	if tweets[0].Original.User.Username != "alice" || len(tweets[0].Original.Likes) != 1 {
		t.Errorf("Original = %+v", tweets[0].Original)
	}

	plain, _ := db.ListTweets(ctx, repository.TweetFilter{AuthorID: bob.ID})
	if plain[0].Original != nil {
		t.Error("Original populated without WithOriginals")
	}
}

// =========================================================================
// ENGAGEMENT SET TESTS
// =========================================================================

func TestLikes_SetSemantics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	tweet := createTestTweet(t, db, alice, "hi")

	n, err := db.AddLike(ctx, tweet.ID, "u1")
	if err != nil || n != 1 {
		t.Fatalf("AddLike() = %d, %v; want 1, nil", n, err)
	}
	n, _ = db.AddLike(ctx, tweet.ID, "u1")
	if n != 1 {
		t.Errorf("repeated AddLike() count = %d, want 1", n)
	}
	n, _ = db.AddLike(ctx, tweet.ID, "u2")
	if n != 2 {
		t.Errorf("AddLike(u2) count = %d, want 2", n)
	}

	got, _ := db.GetTweet(ctx, tweet.ID)
	if !reflect.DeepEqual(got.Likes, []string{"u1", "u2"}) {
		t.Errorf("Likes = %v, want insertion order [u1 u2]", got.Likes)
	}

	n, _ = db.RemoveLike(ctx, tweet.ID, "u1")
	if n != 1 {
		t.Errorf("RemoveLike() count = %d, want 1", n)
	}
	n, _ = db.RemoveLike(ctx, tweet.ID, "u1")
	if n != 1 {
		t.Errorf("repeated RemoveLike() count = %d, want 1", n)
	}
}

func TestAddLike_UnknownTweet(t *testing.T) {
	db := newTestDB(t)

	_, err := db.AddLike(context.Background(), "missing", "u1")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddLike() error = %v, want ErrNotFound", err)
	}
}

func TestRetweeters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	tweet := createTestTweet(t, db, alice, "hi")

	db.AddRetweeter(ctx, tweet.ID, "u1")
	db.AddRetweeter(ctx, tweet.ID, "u1")
	got, _ := db.GetTweet(ctx, tweet.ID)
	if !reflect.DeepEqual(got.Retweets, []string{"u1"}) {
		t.Errorf("Retweets = %v, want [u1]", got.Retweets)
	}

	db.RemoveRetweeter(ctx, tweet.ID, "u1")
	got, _ = db.GetTweet(ctx, tweet.ID)
	if len(got.Retweets) != 0 {
		t.Errorf("Retweets = %v, want empty", got.Retweets)
	}
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdateTweetContent_ReplacesHashtags(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	tweet := createTestTweet(t, db, alice, "old #a", "a")

	updated, err := db.UpdateTweetContent(ctx, tweet.ID, "new #b #c", []string{"b", "c"})
	if err != nil {
		t.Fatalf("UpdateTweetContent() error = %v", err)
	}
	if updated.Content != "new #b #c" {
		t.Errorf("Content = %q", updated.Content)
	}
	if !reflect.DeepEqual(updated.Hashtags, []string{"b", "c"}) {
		t.Errorf("Hashtags = %v, want [b c]", updated.Hashtags)
	}

	if _, err := db.UpdateTweetContent(ctx, "missing", "x", nil); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateTweetContent(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteTweet_CascadesEngagement(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	tweet := createTestTweet(t, db, alice, "bye #x", "x")
	db.AddLike(ctx, tweet.ID, alice.ID)
	db.AddComment(ctx, tweet.ID, &model.Comment{UserID: alice.ID, Text: "c"})

	if err := db.DeleteTweet(ctx, tweet.ID); err != nil {
		t.Fatalf("DeleteTweet() error = %v", err)
	}
	if _, err := db.GetTweet(ctx, tweet.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetTweet() after delete error = %v, want ErrNotFound", err)
	}

	var n int
	db.conn.QueryRow(`SELECT COUNT(*) FROM tweet_hashtags`).Scan(&n)
	if n != 0 {
		t.Errorf("tweet_hashtags rows = %d, want 0", n)
	}

	if err := db.DeleteTweet(ctx, tweet.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteTweet() twice error = %v, want ErrNotFound", err)
	}
}

func TestSoftDeleteTweet_KeepsContent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	tweet := createTestTweet(t, db, alice, "bad words")

	at := time.Date(2025, 2, 2, 10, 0, 0, 0, time.UTC)
	if err := db.SoftDeleteTweet(ctx, tweet.ID, "spam", "admin1", at); err != nil {
		t.Fatalf("SoftDeleteTweet() error = %v", err)
	}

	got, _ := db.GetTweet(ctx, tweet.ID)
	if !got.IsDeleted || got.DeletedReason != "spam" || got.DeletedBy != "admin1" {
		t.Errorf("soft delete fields = %+v", got)
	}
	if got.DeletedAt == nil || !got.DeletedAt.Equal(at) {
		t.Errorf("DeletedAt = %v, want %v", got.DeletedAt, at)
	}
	if got.Content != "bad words" {
		t.Errorf("Content = %q, stored content must be kept", got.Content)
	}

	if err := db.SoftDeleteTweet(ctx, "missing", "x", "a", at); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SoftDeleteTweet(missing) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// COMMENT TESTS
// =========================================================================

func TestAddComment_ReturnsThread(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	tweet := createTestTweet(t, db, alice, "hi")
	if _, err := db.SetProfilePicture(ctx, bob.ID, "/uploads/profiles/bob.png"); err != nil {
		t.Fatalf("SetProfilePicture() error = %v", err)
	}

	db.AddComment(ctx, tweet.ID, &model.Comment{UserID: bob.ID, Text: "first"})
	thread, err := db.AddComment(ctx, tweet.ID, &model.Comment{UserID: "ghost", Text: "second"})
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}

	if len(thread) != 2 {
		t.Fatalf("thread length = %d, want 2", len(thread))
	}
	if thread[0].Text != "first" || thread[0].User == nil || thread[0].User.Username != "bob" {
		t.Errorf("thread[0] = %+v", thread[0])
	}
	wantAuthor := model.UserRef{ID: bob.ID, Username: "bob", ProfilePicture: "/uploads/profiles/bob.png"}
	if thread[0].User != nil && *thread[0].User != wantAuthor {
		t.Errorf("thread[0].User = %+v, want %+v", *thread[0].User, wantAuthor)
	}
	if thread[1].User != nil {
		t.Errorf("comment by unknown user should have nil User, got %+v", thread[1].User)
	}

	if _, err := db.AddComment(ctx, "missing", &model.Comment{UserID: bob.ID, Text: "x"}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddComment(missing) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// TREND TESTS
// =========================================================================

func TestTrends(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	setClock(db, now.Add(-25*time.Hour))
	createTestTweet(t, db, alice, "#old #old", "old", "old")

	setClock(db, now.Add(-time.Hour))
	createTestTweet(t, db, alice, "#go #go #db", "go", "go", "db")
	createTestTweet(t, db, alice, "#db #zz", "db", "zz")
	createTestTweet(t, db, alice, "#aa", "aa")
	moderated := createTestTweet(t, db, alice, "#go #spam", "go", "spam")
	db.SoftDeleteTweet(ctx, moderated.ID, "spam", "admin", now)

	trends, err := db.Trends(ctx, now.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("Trends() error = %v", err)
	}

	want := []model.Trend{
		{Tag: "db", Count: 2},
		{Tag: "go", Count: 2},
		{Tag: "aa", Count: 1},
		{Tag: "zz", Count: 1},
	}
	if !reflect.DeepEqual(trends, want) {
		t.Errorf("Trends() = %+v, want %+v", trends, want)
	}

	top, _ := db.Trends(ctx, now.Add(-24*time.Hour), 1)
	if len(top) != 1 {
		t.Errorf("Trends(limit 1) returned %d", len(top))
	}
}

func TestTrends_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)

	trends, err := db.Trends(context.Background(), time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("Trends() error = %v", err)
	}
	if trends == nil || len(trends) != 0 {
		t.Errorf("Trends() = %v, want empty slice", trends)
	}
}

func tweetIDs(tweets []model.Tweet) []string {
	ids := make([]string, len(tweets))
	for i, t := range tweets {
		ids[i] = t.ID
	}
	return ids
}
