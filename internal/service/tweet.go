// Package service contains the business rules of the feed.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the document store
//
// Services accept plain values (ids, strings, bytes), never *http.Request,
// and report failures as apperror values. The handler maps those to HTTP
// status codes. The same services back the feedctl operator CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/feed"
	"github.com/sakif/social-feed/internal/media"
	"github.com/sakif/social-feed/internal/model"
	"github.com/sakif/social-feed/internal/repository"
)

const (
	// DefaultModerationReason is recorded when an admin gives no reason.
	DefaultModerationReason = "Violation of community guidelines"

	SearchTweetLimit = 20
	SearchUserLimit  = 10

	TrendWindow = 24 * time.Hour
	TrendLimit  = 10

	mediaCleanupTimeout = 30 * time.Second
)

// TweetService implements tweets, engagement toggles, comments, search,
// trends and moderation.
type TweetService struct {
	tweets repository.TweetRepository
	users  repository.UserRepository
	media  media.Store // nil disables media cleanup
	logger *slog.Logger
	now    func() time.Time

	cleanup sync.WaitGroup
}

func NewTweetService(
	tweets repository.TweetRepository,
	users repository.UserRepository,
	mediaStore media.Store,
	logger *slog.Logger,
) *TweetService {
	return &TweetService{
		tweets: tweets,
		users:  users,
		media:  mediaStore,
		logger: logger,
		now:    time.Now,
	}
}

// LikeResult is the outcome of ToggleLike.
type LikeResult struct {
	LikesCount int  `json:"likesCount"`
	Liked      bool `json:"liked"`
}

// RetweetResult is the outcome of ToggleRetweet.
type RetweetResult struct {
	Message   string `json:"message"`
	Retweeted bool   `json:"retweeted"`
}

// validateContent enforces the tweet length rule: non-blank and at most
// MaxTweetLength characters. Length is counted in runes.
func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperror.ValidationFailed("content", "Content is required")
	}
	if utf8.RuneCountInString(content) > model.MaxTweetLength {
		return apperror.ValidationFailed("content",
			fmt.Sprintf("Content exceeds %d characters", model.MaxTweetLength))
	}
	return nil
}

// Create posts a new tweet for authorID. image and video are URLs returned
// earlier by the upload endpoint; either may be empty.
func (s *TweetService) Create(ctx context.Context, authorID, content, image, video string) (*model.Tweet, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	author, err := s.users.GetUserByID(ctx, authorID)
	if err != nil {
		return nil, err
	}

	tweet := &model.Tweet{
		User:     author.Ref(),
		Content:  content,
		Image:    strings.TrimSpace(image),
		Video:    strings.TrimSpace(video),
		Hashtags: feed.ExtractHashtags(content),
	}
	if err := s.tweets.CreateTweet(ctx, tweet); err != nil {
		s.logger.Error("failed to create tweet",
			slog.String("userID", authorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating tweet: %w", err)
	}

	s.logger.Info("tweet created",
		slog.String("id", tweet.ID),
		slog.String("userID", authorID),
		slog.Int("hashtags", len(tweet.Hashtags)),
	)

	return tweet, nil
}

// Feed returns every tweet, newest first, projected for viewerID.
func (s *TweetService) Feed(ctx context.Context, viewerID string) ([]feed.Item, error) {
	tweets, err := s.tweets.ListTweets(ctx, repository.TweetFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing tweets: %w", err)
	}
	return feed.ProjectAll(tweets, viewerID), nil
}

// SearchTweets returns up to SearchTweetLimit tweets whose content contains
// query, case-insensitively. A blank query matches nothing.
func (s *TweetService) SearchTweets(ctx context.Context, viewerID, query string) ([]feed.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []feed.Item{}, nil
	}

	tweets, err := s.tweets.ListTweets(ctx, repository.TweetFilter{
		ContentContains: query,
		Limit:           SearchTweetLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching tweets: %w", err)
	}
	return feed.ProjectAll(tweets, viewerID), nil
}

// SearchUsers returns up to SearchUserLimit users whose username or bio
// contains query. A blank query matches nothing.
func (s *TweetService) SearchUsers(ctx context.Context, query string) ([]model.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.UserSummary{}, nil
	}

	users, err := s.users.SearchUsers(ctx, query, SearchUserLimit)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	return users, nil
}

// ByUser returns username's tweets, with the originals of retweets attached.
func (s *TweetService) ByUser(ctx context.Context, viewerID, username string) ([]feed.Item, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	tweets, err := s.tweets.ListTweets(ctx, repository.TweetFilter{
		AuthorID:      user.ID,
		WithOriginals: true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing tweets of %s: %w", username, err)
	}
	return feed.ProjectAll(tweets, viewerID), nil
}

// ByHashtag returns tweets tagged with tag. The match is case-insensitive
// and a leading '#' is ignored.
func (s *TweetService) ByHashtag(ctx context.Context, viewerID, tag string) ([]feed.Item, error) {
	tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
	if tag == "" {
		return []feed.Item{}, nil
	}

	tweets, err := s.tweets.ListTweets(ctx, repository.TweetFilter{Hashtag: tag})
	if err != nil {
		return nil, fmt.Errorf("listing tweets for #%s: %w", tag, err)
	}
	return feed.ProjectAll(tweets, viewerID), nil
}

// Trends ranks the hashtags of the last 24 hours.
func (s *TweetService) Trends(ctx context.Context) ([]model.Trend, error) {
	trends, err := s.tweets.Trends(ctx, s.now().Add(-TrendWindow), TrendLimit)
	if err != nil {
		return nil, fmt.Errorf("computing trends: %w", err)
	}
	return trends, nil
}

// ToggleLike flips userID's membership in the tweet's likes set.
//
// Membership is read from a fresh load; the write itself is an atomic
// add or remove, so concurrent toggles by different users never lose
// each other's likes.
func (s *TweetService) ToggleLike(ctx context.Context, tweetID, userID string) (*LikeResult, error) {
	tweet, err := s.tweets.GetTweet(ctx, tweetID)
	if err != nil {
		return nil, err
	}

	liked := !tweet.LikedBy(userID)

	var count int
	if liked {
		count, err = s.tweets.AddLike(ctx, tweetID, userID)
	} else {
		count, err = s.tweets.RemoveLike(ctx, tweetID, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("toggling like on %s: %w", tweetID, err)
	}

	return &LikeResult{LikesCount: count, Liked: liked}, nil
}

// ToggleRetweet creates or removes userID's shadow tweet of tweetID.
//
// Two writes are involved: the shadow document and the user's entry in the
// original's retweets set. When the second write fails the first one is
// undone before the error is returned. Anything a crash leaves behind is
// found by AdminService.ReconcileRetweets.
func (s *TweetService) ToggleRetweet(ctx context.Context, tweetID, userID string) (*RetweetResult, error) {
	original, err := s.tweets.GetTweet(ctx, tweetID)
	if err != nil {
		return nil, err
	}

	existing, err := s.tweets.FindRetweet(ctx, userID, tweetID)
	switch {
	case err == nil:
		return s.removeRetweet(ctx, original, existing, userID)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("looking up retweet of %s: %w", tweetID, err)
	}

	if original.IsDeleted {
		return nil, apperror.ValidationFailed("tweetId", "Cannot retweet a deleted tweet")
	}
	return s.addRetweet(ctx, original, userID)
}

func (s *TweetService) addRetweet(ctx context.Context, original *model.Tweet, userID string) (*RetweetResult, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	shadow := &model.Tweet{
		User:            user.Ref(),
		Content:         original.Content,
		Image:           original.Image,
		OriginalTweetID: original.ID,
		IsRetweet:       true,
	}
	if err := s.tweets.CreateTweet(ctx, shadow); err != nil {
		return nil, fmt.Errorf("creating retweet of %s: %w", original.ID, err)
	}

	if err := s.tweets.AddRetweeter(ctx, original.ID, userID); err != nil {
		if cerr := s.tweets.DeleteTweet(ctx, shadow.ID); cerr != nil {
			s.logger.Error("failed to undo retweet shadow",
				slog.String("shadowID", shadow.ID),
				slog.String("originalID", original.ID),
				slog.String("error", cerr.Error()),
			)
		}
		return nil, fmt.Errorf("marking %s as retweeted: %w", original.ID, err)
	}

	s.logger.Info("retweet toggled",
		slog.String("tweetID", original.ID),
		slog.String("userID", userID),
		slog.Bool("retweeted", true),
	)
	return &RetweetResult{Message: "Tweet retweeted", Retweeted: true}, nil
}

func (s *TweetService) removeRetweet(ctx context.Context, original, shadow *model.Tweet, userID string) (*RetweetResult, error) {
	if err := s.tweets.DeleteTweet(ctx, shadow.ID); err != nil {
		return nil, fmt.Errorf("deleting retweet %s: %w", shadow.ID, err)
	}

	if err := s.tweets.RemoveRetweeter(ctx, original.ID, userID); err != nil {
		restored := &model.Tweet{
			User:            shadow.User,
			Content:         shadow.Content,
			Image:           shadow.Image,
			OriginalTweetID: original.ID,
			IsRetweet:       true,
		}
		if cerr := s.tweets.CreateTweet(ctx, restored); cerr != nil {
			s.logger.Error("failed to restore retweet shadow",
				slog.String("originalID", original.ID),
				slog.String("userID", userID),
				slog.String("error", cerr.Error()),
			)
		}
		return nil, fmt.Errorf("unmarking %s as retweeted: %w", original.ID, err)
	}

	s.logger.Info("retweet toggled",
		slog.String("tweetID", original.ID),
		slog.String("userID", userID),
		slog.Bool("retweeted", false),
	)
	return &RetweetResult{Message: "Retweet removed", Retweeted: false}, nil
}

// Update replaces the content of the caller's own tweet and re-derives its
// hashtags. Checks run in order: existence, ownership, content.
func (s *TweetService) Update(ctx context.Context, tweetID, userID, content string) (*model.Tweet, error) {
	tweet, err := s.tweets.GetTweet(ctx, tweetID)
	if err != nil {
		return nil, err
	}
	if tweet.User.ID != userID {
		return nil, apperror.Forbidden("You can only edit your own tweets")
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	updated, err := s.tweets.UpdateTweetContent(ctx, tweetID, content, feed.ExtractHashtags(content))
	if err != nil {
		return nil, fmt.Errorf("updating tweet %s: %w", tweetID, err)
	}

	s.logger.Info("tweet updated", slog.String("id", tweetID))
	return updated, nil
}

// Delete permanently removes the caller's own tweet.
//
// Deleting a retweet shadow also removes the caller from the original's
// retweets set. Deleting an original schedules removal of its uploaded
// media in the background; media failures are logged and never reported.
// Shadows never delete media because they share the original's URLs.
func (s *TweetService) Delete(ctx context.Context, tweetID, userID string) error {
	tweet, err := s.tweets.GetTweet(ctx, tweetID)
	if err != nil {
		return err
	}
	if tweet.User.ID != userID {
		return apperror.Forbidden("You can only delete your own tweets")
	}

	if err := s.tweets.DeleteTweet(ctx, tweetID); err != nil {
		return fmt.Errorf("deleting tweet %s: %w", tweetID, err)
	}

	if tweet.IsRetweet {
		err := s.tweets.RemoveRetweeter(ctx, tweet.OriginalTweetID, userID)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return fmt.Errorf("unmarking %s as retweeted: %w", tweet.OriginalTweetID, err)
		}
	} else {
		s.removeMedia(ctx, tweet.ID, tweet.Image, tweet.Video)
	}

	s.logger.Info("tweet deleted",
		slog.String("id", tweetID),
		slog.String("userID", userID),
	)
	return nil
}

// removeMedia deletes urls in a goroutine that outlives the request.
func (s *TweetService) removeMedia(ctx context.Context, tweetID string, urls ...string) {
	if s.media == nil {
		return
	}

	var targets []string
	for _, u := range urls {
		if u != "" {
			targets = append(targets, u)
		}
	}
	if len(targets) == 0 {
		return
	}

	s.cleanup.Add(1)
	go func() {
		defer s.cleanup.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mediaCleanupTimeout)
		defer cancel()

		for _, u := range targets {
			if err := s.media.Delete(ctx, u); err != nil {
				s.logger.Warn("failed to delete tweet media",
					slog.String("tweetID", tweetID),
					slog.String("url", u),
					slog.String("error", err.Error()),
				)
				continue
			}
			s.logger.Debug("tweet media deleted", slog.String("url", u))
		}
	}()
}

// WaitForCleanup blocks until background media deletions have finished.
// The server calls it during shutdown.
func (s *TweetService) WaitForCleanup() {
	s.cleanup.Wait()
}

// Comment appends a comment by userID and returns the whole thread.
func (s *TweetService) Comment(ctx context.Context, tweetID, userID, text string) ([]model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "Comment text is required")
	}

	if _, err := s.tweets.GetTweet(ctx, tweetID); err != nil {
		return nil, err
	}

	c := &model.Comment{UserID: userID, Text: text}
	comments, err := s.tweets.AddComment(ctx, tweetID, c)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("commenting on %s: %w", tweetID, err)
	}
	return comments, nil
}

// Moderate soft-deletes a tweet on behalf of adminID. The document and its
// media stay in storage; every read path redacts it from then on.
// It returns the reason that was recorded.
func (s *TweetService) Moderate(ctx context.Context, tweetID, adminID, reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultModerationReason
	}

	if err := s.tweets.SoftDeleteTweet(ctx, tweetID, reason, adminID, s.now().UTC()); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("moderating tweet %s: %w", tweetID, err)
	}

	s.logger.Info("tweet moderated",
		slog.String("id", tweetID),
		slog.String("adminID", adminID),
		slog.String("reason", reason),
	)
	return reason, nil
}
