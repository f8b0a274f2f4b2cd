package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sakif/social-feed/internal/model"
	"github.com/sakif/social-feed/internal/repository"
)

// AdminService holds operator tasks run from feedctl: granting the admin
// role and repairing retweet bookkeeping.
type AdminService struct {
	tweets repository.TweetRepository
	users  repository.UserRepository
	logger *slog.Logger
}

func NewAdminService(tweets repository.TweetRepository, users repository.UserRepository, logger *slog.Logger) *AdminService {
	return &AdminService{tweets: tweets, users: users, logger: logger}
}

// SetAdmin grants or revokes the admin role of username.
func (s *AdminService) SetAdmin(ctx context.Context, username string, admin bool) (*model.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetAdmin(ctx, user.ID, admin); err != nil {
		return nil, fmt.Errorf("setting admin=%t on %s: %w", admin, username, err)
	}
	user.IsAdmin = admin

	s.logger.Info("admin role changed", slog.String("username", username), slog.Bool("admin", admin))
	return user, nil
}

// RetweetIssue is one inconsistency found by ReconcileRetweets.
type RetweetIssue struct {
	OriginalID string `json:"originalId"`
	UserID     string `json:"userId"`
	ShadowID   string `json:"shadowId,omitempty"`
}

// ReconcileReport lists what ReconcileRetweets found, grouped by kind.
type ReconcileReport struct {
	// MissingMembership: a shadow exists but its author is not in the
	// original's retweets set.
	MissingMembership []RetweetIssue `json:"missingMembership"`
	// DanglingMembership: a user is in a retweets set without a shadow.
	DanglingMembership []RetweetIssue `json:"danglingMembership"`
	// Duplicates: extra shadows of the same original by the same user.
	// The oldest shadow is kept.
	Duplicates []RetweetIssue `json:"duplicates"`
	// Orphans: shadows whose original no longer exists. Reported only.
	Orphans []RetweetIssue `json:"orphans"`

	Fixed bool `json:"fixed"`
}

// Clean reports whether nothing was found.
func (r *ReconcileReport) Clean() bool {
	return len(r.MissingMembership) == 0 &&
		len(r.DanglingMembership) == 0 &&
		len(r.Duplicates) == 0 &&
		len(r.Orphans) == 0
}

// ReconcileRetweets compares every original's retweets set with the shadow
// tweets that exist. With fix set it adds missing members, removes dangling
// ones and deletes duplicate shadows. Orphaned shadows are never touched.
func (s *AdminService) ReconcileRetweets(ctx context.Context, fix bool) (*ReconcileReport, error) {
	tweets, err := s.tweets.ListTweets(ctx, repository.TweetFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing tweets: %w", err)
	}

	report := findRetweetIssues(tweets)
	if !fix {
		return report, nil
	}

	for _, issue := range report.Duplicates {
		if err := s.tweets.DeleteTweet(ctx, issue.ShadowID); err != nil {
			return report, fmt.Errorf("deleting duplicate retweet %s: %w", issue.ShadowID, err)
		}
	}
	for _, issue := range report.MissingMembership {
		if err := s.tweets.AddRetweeter(ctx, issue.OriginalID, issue.UserID); err != nil {
			return report, fmt.Errorf("adding retweeter to %s: %w", issue.OriginalID, err)
		}
	}
	for _, issue := range report.DanglingMembership {
		if err := s.tweets.RemoveRetweeter(ctx, issue.OriginalID, issue.UserID); err != nil {
			return report, fmt.Errorf("removing retweeter from %s: %w", issue.OriginalID, err)
		}
	}
	report.Fixed = true

	s.logger.Info("retweets reconciled",
		slog.Int("missing", len(report.MissingMembership)),
		slog.Int("dangling", len(report.DanglingMembership)),
		slog.Int("duplicates", len(report.Duplicates)),
		slog.Int("orphans", len(report.Orphans)),
	)
	return report, nil
}

// findRetweetIssues works on a newest-first tweet list.
func findRetweetIssues(tweets []model.Tweet) *ReconcileReport {
	report := &ReconcileReport{
		MissingMembership:  []RetweetIssue{},
		DanglingMembership: []RetweetIssue{},
		Duplicates:         []RetweetIssue{},
		Orphans:            []RetweetIssue{},
	}

	byID := make(map[string]*model.Tweet, len(tweets))
	for i := range tweets {
		byID[tweets[i].ID] = &tweets[i]
	}

	type key struct{ original, user string }
	shadows := map[key][]*model.Tweet{}
	for i := range tweets {
		t := &tweets[i]
		if !t.IsRetweet {
			continue
		}
		k := key{t.OriginalTweetID, t.User.ID}
		shadows[k] = append(shadows[k], t)
	}

	keys := make([]key, 0, len(shadows))
	for k := range shadows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].original != keys[j].original {
			return keys[i].original < keys[j].original
		}
		return keys[i].user < keys[j].user
	})

	for _, k := range keys {
		group := shadows[k]
		// Newest first, so the last entry is the one to keep.
		keep := group[len(group)-1]

		original, ok := byID[k.original]
		if !ok {
			for _, sh := range group {
				report.Orphans = append(report.Orphans,
					RetweetIssue{OriginalID: k.original, UserID: k.user, ShadowID: sh.ID})
			}
			continue
		}

		for _, sh := range group[:len(group)-1] {
			report.Duplicates = append(report.Duplicates,
				RetweetIssue{OriginalID: k.original, UserID: k.user, ShadowID: sh.ID})
		}
		if !original.RetweetedBy(k.user) {
			report.MissingMembership = append(report.MissingMembership,
				RetweetIssue{OriginalID: k.original, UserID: k.user, ShadowID: keep.ID})
		}
	}

	for i := range tweets {
		t := &tweets[i]
		for _, uid := range t.Retweets {
			if _, ok := shadows[key{t.ID, uid}]; !ok {
				report.DanglingMembership = append(report.DanglingMembership,
					RetweetIssue{OriginalID: t.ID, UserID: uid})
			}
		}
	}

	return report
}
