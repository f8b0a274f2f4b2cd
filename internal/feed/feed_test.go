package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/social-feed/internal/model"
)

func sampleTweet() model.Tweet {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return model.Tweet{
		ID:       "t1",
		User:     model.UserRef{ID: "u1", Username: "alice", ProfilePicture: "/uploads/profile/a.png"},
		Content:  "hello #go",
		Image:    "/uploads/tweets/pic.png",
		Likes:    []string{"u2", "u3"},
		Retweets: []string{"u3"},
		Hashtags: []string{"go"},
		Comments: []model.Comment{
			{ID: "c1", UserID: "u2", User: &model.UserRef{ID: "u2", Username: "bob", ProfilePicture: "x"}, Text: "nice", CreatedAt: created},
			{ID: "c2", UserID: "gone", Text: "orphan", CreatedAt: created.Add(time.Minute)},
		},
		CreatedAt: created,
	}
}

func TestProject_Viewer(t *testing.T) {
	item := Project(sampleTweet(), "u3")

	assert.Equal(t, "t1", item.ID)
	assert.Equal(t, "hello #go", item.Content)
	require.NotNil(t, item.Image)
	assert.Equal(t, "/uploads/tweets/pic.png", *item.Image)
	assert.Nil(t, item.Video)
	assert.Equal(t, 2, item.LikesCount)
	assert.Equal(t, 1, item.RetweetsCount)
	assert.True(t, item.LikedByCurrentUser)
	assert.True(t, item.RetweetedByCurrentUser)
	assert.Equal(t, []string{"u2", "u3"}, item.Likes)
	assert.Nil(t, item.DeletedBy)
	assert.Nil(t, item.DeletedAt)
}

func TestProject_AnonymousViewer(t *testing.T) {
	item := Project(sampleTweet(), "")

	assert.False(t, item.LikedByCurrentUser)
	assert.False(t, item.RetweetedByCurrentUser)
}

func TestProject_ViewerNotEngaged(t *testing.T) {
	item := Project(sampleTweet(), "u9")

	assert.False(t, item.LikedByCurrentUser)
	assert.False(t, item.RetweetedByCurrentUser)
}

func TestProject_RedactsDeletedTweet(t *testing.T) {
	deletedAt := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	tw := sampleTweet()
	tw.Video = "/uploads/tweets/clip.mp4"
	tw.IsDeleted = true
	tw.DeletedReason = "spam"
	tw.DeletedBy = "admin1"
	tw.DeletedAt = &deletedAt

	for _, viewer := range []string{"", "u1", "u2", "admin1"} {
		item := Project(tw, viewer)

		assert.Equal(t, "", item.Content, "viewer %q", viewer)
		assert.Nil(t, item.Image, "viewer %q", viewer)
		assert.Nil(t, item.Video, "viewer %q", viewer)
		assert.True(t, item.IsDeleted)
		assert.Equal(t, "spam", item.DeletedReason)
		require.NotNil(t, item.DeletedBy)
		assert.Equal(t, "admin1", *item.DeletedBy)
		assert.Equal(t, &deletedAt, item.DeletedAt)
		// engagement stays visible
		assert.Equal(t, 2, item.LikesCount)
		assert.Equal(t, 1, item.RetweetsCount)
	}

	// the stored record is untouched
	assert.Equal(t, "hello #go", tw.Content)
}

func TestProject_Comments(t *testing.T) {
	item := Project(sampleTweet(), "")

	require.Len(t, item.Comments, 2)
	require.NotNil(t, item.Comments[0].User)
	assert.Equal(t, "bob", item.Comments[0].User.Username)
	assert.Equal(t, "nice", item.Comments[0].Text)
	assert.Nil(t, item.Comments[1].User)
}

func TestProject_RetweetOfModeratedTweet(t *testing.T) {
	orig := sampleTweet()
	orig.IsDeleted = true

	shadow := model.Tweet{
		ID:              "t2",
		User:            model.UserRef{ID: "u3", Username: "carol"},
		Content:         orig.Content,
		Image:           orig.Image,
		OriginalTweetID: orig.ID,
		IsRetweet:       true,
		Original:        &orig,
		CreatedAt:       orig.CreatedAt.Add(time.Hour),
	}

	item := Project(shadow, "u3")

	assert.True(t, item.IsRetweet)
	require.NotNil(t, item.OriginalTweet)
	assert.Equal(t, "", item.OriginalTweet.Content)
	assert.Nil(t, item.OriginalTweet.Image)
	assert.True(t, item.OriginalTweet.RetweetedByCurrentUser)
	// the shadow's own snapshot is not moderated
	assert.Equal(t, "hello #go", item.Content)
}

func TestProject_JSONShape(t *testing.T) {
	tw := sampleTweet()
	tw.Image = ""
	tw.Likes = nil
	tw.Comments = nil

	raw, err := json.Marshal(Project(tw, ""))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Nil(t, got["image"])
	assert.Nil(t, got["video"])
	assert.Nil(t, got["deletedBy"])
	assert.Equal(t, []any{}, got["likes"])
	assert.Equal(t, []any{}, got["comments"])
	assert.NotContains(t, got, "originalTweet")
	assert.Contains(t, got, "_id")
}

func TestProjectAll_PreservesOrder(t *testing.T) {
	a, b := sampleTweet(), sampleTweet()
	b.ID = "t9"

	items := ProjectAll([]model.Tweet{b, a}, "u2")

	require.Len(t, items, 2)
	assert.Equal(t, "t9", items[0].ID)
	assert.Equal(t, "t1", items[1].ID)
	assert.NotNil(t, ProjectAll(nil, ""))
}
