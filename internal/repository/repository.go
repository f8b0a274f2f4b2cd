// Package repository declares the storage contracts the services depend on.
//
// Two implementations exist: repository/sqlite (embedded, default) and
// repository/mongo (document store). Both translate their driver errors into
// apperror values so services never see driver types.
package repository

import (
	"context"
	"time"

	"github.com/sakif/social-feed/internal/model"
)

// TweetFilter narrows ListTweets. Zero values mean "no constraint".
// Results are always newest first.
type TweetFilter struct {
	AuthorID        string
	Hashtag         string // exact, already lowercased
	ContentContains string // case-insensitive substring
	Limit           int
	WithOriginals   bool // populate Tweet.Original on shadow tweets
}

// TweetRepository stores tweets together with their engagement sets,
// comments and hashtags. Returned tweets have User and comment authors
// populated.
type TweetRepository interface {
	CreateTweet(ctx context.Context, tweet *model.Tweet) error
	GetTweet(ctx context.Context, id string) (*model.Tweet, error)
	ListTweets(ctx context.Context, filter TweetFilter) ([]model.Tweet, error)
	UpdateTweetContent(ctx context.Context, id, content string, hashtags []string) (*model.Tweet, error)
	DeleteTweet(ctx context.Context, id string) error
	SoftDeleteTweet(ctx context.Context, id, reason, adminID string, at time.Time) error

	// Set primitives. Adding an existing member or removing a missing one
	// is a no-op. AddLike/RemoveLike return the resulting likes count.
	AddLike(ctx context.Context, tweetID, userID string) (int, error)
	RemoveLike(ctx context.Context, tweetID, userID string) (int, error)
	AddRetweeter(ctx context.Context, tweetID, userID string) error
	RemoveRetweeter(ctx context.Context, tweetID, userID string) error

	// FindRetweet returns userID's shadow tweet of originalID, or
	// apperror.ErrNotFound if there is none.
	FindRetweet(ctx context.Context, userID, originalID string) (*model.Tweet, error)

	// AddComment appends c and returns the tweet's full comment thread.
	AddComment(ctx context.Context, tweetID string, c *model.Comment) ([]model.Comment, error)

	// Trends ranks hashtags on non-deleted tweets created at or after since.
	Trends(ctx context.Context, since time.Time, limit int) ([]model.Trend, error)
}

// UserRepository stores accounts and the follow graph.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpsertGitHubUser(ctx context.Context, user *model.User) error
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error)
	SetProfilePicture(ctx context.Context, id, url string) (*model.User, error)
	SetAdmin(ctx context.Context, id string, admin bool) error

	// Follow and Unfollow update both sides of the edge.
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error

	SearchUsers(ctx context.Context, query string, limit int) ([]model.UserSummary, error)
	// ListUsersByIDs returns the summaries for ids, sorted by username.
	ListUsersByIDs(ctx context.Context, ids []string) ([]model.UserSummary, error)
	// SuggestUsers returns up to limit users that userID neither is nor follows.
	SuggestUsers(ctx context.Context, userID string, limit int) ([]model.UserSummary, error)
}

// Store is a complete backend: one value serving both repositories.
type Store interface {
	TweetRepository
	UserRepository
	Close() error
}
