// Package feed turns stored tweets into the per-viewer items returned by every
// list endpoint (all tweets, by user, by hashtag, search).
//
// Everything here is pure: no I/O, no clock, no shared state. Given the same
// tweet and viewer, Project always returns the same Item.
package feed

import (
	"time"

	"github.com/sakif/social-feed/internal/model"
)

// Item is the wire representation of a tweet as seen by one viewer.
//
// Image, Video and DeletedBy are pointers so that "absent" encodes as JSON
// null rather than an empty string.
type Item struct {
	ID                     string        `json:"_id"`
	Content                string        `json:"content"`
	Image                  *string       `json:"image"`
	Video                  *string       `json:"video"`
	CreatedAt              time.Time     `json:"createdAt"`
	User                   model.UserRef `json:"user"`
	LikesCount             int           `json:"likesCount"`
	RetweetsCount          int           `json:"retweetsCount"`
	Likes                  []string      `json:"likes"`
	Retweets               []string      `json:"retweets"`
	LikedByCurrentUser     bool          `json:"likedByCurrentUser"`
	RetweetedByCurrentUser bool          `json:"retweetedByCurrentUser"`
	IsRetweet              bool          `json:"isRetweet"`
	OriginalTweet          *Item         `json:"originalTweet,omitempty"`
	IsDeleted              bool          `json:"isDeleted"`
	DeletedReason          string        `json:"deletedReason"`
	DeletedAt              *time.Time    `json:"deletedAt"`
	DeletedBy              *string       `json:"deletedBy"`
	Comments               []Comment     `json:"comments"`
}

// Comment is a comment reduced to what the feed shows.
type Comment struct {
	ID        string         `json:"_id"`
	Text      string         `json:"text"`
	CreatedAt time.Time      `json:"createdAt"`
	User      *CommentAuthor `json:"user"`
}

// CommentAuthor is null in JSON when the commenting account is gone.
type CommentAuthor struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Redact returns a copy of t with content and media cleared if the tweet
// has been soft-deleted by a moderator. Engagement and audit fields are kept.
func Redact(t model.Tweet) model.Tweet {
	if t.IsDeleted {
		t.Content = ""
		t.Image = ""
		t.Video = ""
	}
	return t
}

// Project builds the feed item for tweet t as seen by viewerID.
//
// An empty viewerID means an anonymous viewer: both "by current user" flags
// are false. Membership is plain string comparison on ids.
//
// A populated original (t.Original) is projected for the same viewer, so
// the nested originalTweet of a moderated tweet is redacted. The shadow's
// own snapshot fields follow the shadow's IsDeleted flag only.
func Project(t model.Tweet, viewerID string) Item {
	r := Redact(t)

	item := Item{
		ID:                     r.ID,
		Content:                r.Content,
		Image:                  optional(r.Image),
		Video:                  optional(r.Video),
		CreatedAt:              r.CreatedAt,
		User:                   r.User,
		LikesCount:             len(r.Likes),
		RetweetsCount:          len(r.Retweets),
		Likes:                  ids(r.Likes),
		Retweets:               ids(r.Retweets),
		LikedByCurrentUser:     viewerID != "" && r.LikedBy(viewerID),
		RetweetedByCurrentUser: viewerID != "" && r.RetweetedBy(viewerID),
		IsRetweet:              r.IsRetweet,
		IsDeleted:              r.IsDeleted,
		DeletedReason:          r.DeletedReason,
		DeletedAt:              r.DeletedAt,
		DeletedBy:              optional(r.DeletedBy),
		Comments:               make([]Comment, 0, len(r.Comments)),
	}

	for _, c := range r.Comments {
		pc := Comment{ID: c.ID, Text: c.Text, CreatedAt: c.CreatedAt}
		if c.User != nil {
			pc.User = &CommentAuthor{ID: c.User.ID, Username: c.User.Username}
		}
		item.Comments = append(item.Comments, pc)
	}

	if r.Original != nil {
		orig := Project(*r.Original, viewerID)
		item.OriginalTweet = &orig
	}

	return item
}

// ProjectAll projects every tweet for the same viewer, preserving order.
func ProjectAll(tweets []model.Tweet, viewerID string) []Item {
	items := make([]Item, 0, len(tweets))
	for _, t := range tweets {
		items = append(items, Project(t, viewerID))
	}
	return items
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ids copies an id set so callers cannot alias the tweet's slice.
func ids(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
