package model

import "time"

// MaxTweetLength is the limit on tweet content, counted in characters (runes).
const MaxTweetLength = 280

// Tweet is a persisted tweet document.
//
// A retweet is stored as its own "shadow" Tweet: IsRetweet is true,
// OriginalTweetID points at the retweeted tweet, and Content/Image are a
// snapshot of the original taken when the retweet was made. The retweeting
// user's id is also added to the original's Retweets set.
//
// A moderated tweet keeps its content in storage (IsDeleted plus the
// Deleted* audit fields); read paths redact it, see package feed.
type Tweet struct {
	ID              string     `json:"_id"`
	User            UserRef    `json:"user"`
	Content         string     `json:"content"`
	Image           string     `json:"image"`
	Video           string     `json:"video"`
	Likes           []string   `json:"likes"`
	Retweets        []string   `json:"retweets"`
	Comments        []Comment  `json:"comments"`
	Hashtags        []string   `json:"hashtags"`
	OriginalTweetID string     `json:"originalTweet,omitempty"`
	IsRetweet       bool       `json:"isRetweet"`
	IsDeleted       bool       `json:"isDeleted"`
	DeletedReason   string     `json:"deletedReason"`
	DeletedBy       string     `json:"deletedBy,omitempty"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	// Original is the populated original of a shadow tweet. Only set when
	// the repository was asked to load originals.
	Original *Tweet `json:"-"`
}

// LikedBy reports whether userID is in the likes set.
func (t *Tweet) LikedBy(userID string) bool {
	return contains(t.Likes, userID)
}

// RetweetedBy reports whether userID is in the retweets set.
func (t *Tweet) RetweetedBy(userID string) bool {
	return contains(t.Retweets, userID)
}

// Comment is one entry in a tweet's ordered comment thread.
// User is nil when the author account no longer exists.
type Comment struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"-"`
	User      *UserRef  `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Trend is one row of the trending-hashtags ranking.
type Trend struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}
