package mongo

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/model"
	"github.com/sakif/social-feed/internal/repository"
)

type commentDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	User      primitive.ObjectID `bson:"user"`
	Text      string             `bson:"text"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type tweetDoc struct {
	ID            primitive.ObjectID   `bson:"_id"`
	User          primitive.ObjectID   `bson:"user"`
	Content       string               `bson:"content"`
	Image         string               `bson:"image,omitempty"`
	Video         string               `bson:"video,omitempty"`
	Likes         []primitive.ObjectID `bson:"likes"`
	Retweets      []primitive.ObjectID `bson:"retweets"`
	Comments      []commentDoc         `bson:"comments"`
	Hashtags      []string             `bson:"hashtags"`
	OriginalTweet *primitive.ObjectID  `bson:"originalTweet,omitempty"`
	IsRetweet     bool                 `bson:"isRetweet"`
	IsDeleted     bool                 `bson:"isDeleted"`
	DeletedReason string               `bson:"deletedReason,omitempty"`
	DeletedBy     *primitive.ObjectID  `bson:"deletedBy,omitempty"`
	DeletedAt     *time.Time           `bson:"deletedAt,omitempty"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

func (s *Store) CreateTweet(ctx context.Context, tweet *model.Tweet) error {
	author, err := oid(tweet.User.ID, "User")
	if err != nil {
		return err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	doc := tweetDoc{
		ID:        primitive.NewObjectID(),
		User:      author,
		Content:   tweet.Content,
		Image:     tweet.Image,
		Video:     tweet.Video,
		Likes:     []primitive.ObjectID{},
		Retweets:  []primitive.ObjectID{},
		Comments:  []commentDoc{},
		Hashtags:  tweet.Hashtags,
		IsRetweet: tweet.IsRetweet,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if doc.Hashtags == nil {
		doc.Hashtags = []string{}
	}
	if tweet.OriginalTweetID != "" {
		orig, err := oid(tweet.OriginalTweetID, "Tweet")
		if err != nil {
			return err
		}
		doc.OriginalTweet = &orig
	}

	if _, err := s.tweets.InsertOne(ctx, doc); err != nil {
		if driver.IsDuplicateKeyError(err) {
			return apperror.Conflict("Tweet already retweeted")
		}
		return fmt.Errorf("mongo: creating tweet: %w", err)
	}

	tweet.ID = doc.ID.Hex()
	tweet.CreatedAt = now
	tweet.UpdatedAt = now
	tweet.Hashtags = doc.Hashtags
	tweet.Likes = []string{}
	tweet.Retweets = []string{}
	tweet.Comments = []model.Comment{}
	return nil
}

func (s *Store) GetTweet(ctx context.Context, id string) (*model.Tweet, error) {
	tid, err := oid(id, "Tweet")
	if err != nil {
		return nil, err
	}

	var doc tweetDoc
	if err := s.tweets.FindOne(ctx, bson.M{"_id": tid}).Decode(&doc); err != nil {
		return nil, notFound(err, "Tweet", "finding tweet "+id)
	}

	tweets, err := s.populate(ctx, []tweetDoc{doc}, true)
	if err != nil {
		return nil, err
	}
	return &tweets[0], nil
}

// tweetFilter translates a TweetFilter into a query document.
func tweetFilter(f repository.TweetFilter) (bson.M, error) {
	filter := bson.M{}
	if f.AuthorID != "" {
		author, err := primitive.ObjectIDFromHex(f.AuthorID)
		if err != nil {
			return nil, apperror.NotFound("User")
		}
		filter["user"] = author
	}
	if f.Hashtag != "" {
		filter["hashtags"] = f.Hashtag
	}
	if f.ContentContains != "" {
		filter["content"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.ContentContains), Options: "i"}
	}
	return filter, nil
}

func (s *Store) ListTweets(ctx context.Context, f repository.TweetFilter) ([]model.Tweet, error) {
	filter, err := tweetFilter(f)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(newestFirst)
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	docs, err := s.findTweets(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return s.populate(ctx, docs, f.WithOriginals)
}

func (s *Store) findTweets(ctx context.Context, filter any, opts *options.FindOptions) ([]tweetDoc, error) {
	cur, err := s.tweets.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing tweets: %w", err)
	}
	var docs []tweetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decoding tweets: %w", err)
	}
	return docs, nil
}

// populate resolves authors and comment authors with a single user query,
// and optionally the originals of shadow tweets.
func (s *Store) populate(ctx context.Context, docs []tweetDoc, withOriginals bool) ([]model.Tweet, error) {
	var originals map[primitive.ObjectID]*model.Tweet
	if withOriginals {
		var origIDs []primitive.ObjectID
		for _, d := range docs {
			if d.OriginalTweet != nil {
				origIDs = append(origIDs, *d.OriginalTweet)
			}
		}
		if len(origIDs) > 0 {
			origDocs, err := s.findTweets(ctx, bson.M{"_id": bson.M{"$in": origIDs}}, options.Find())
			if err != nil {
				return nil, err
			}
			populated, err := s.populate(ctx, origDocs, false)
			if err != nil {
				return nil, err
			}
			originals = make(map[primitive.ObjectID]*model.Tweet, len(populated))
			for i := range populated {
				originals[origDocs[i].ID] = &populated[i]
			}
		}
	}

	seen := make(map[primitive.ObjectID]bool)
	var userIDs []primitive.ObjectID
	addUser := func(id primitive.ObjectID) {
		if !seen[id] {
			seen[id] = true
			userIDs = append(userIDs, id)
		}
	}
	for _, d := range docs {
		addUser(d.User)
		for _, c := range d.Comments {
			addUser(c.User)
		}
	}

	refs, err := s.userRefs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	tweets := make([]model.Tweet, 0, len(docs))
	for _, d := range docs {
		t := d.toModel(refs)
		if d.OriginalTweet != nil && originals != nil {
			t.Original = originals[*d.OriginalTweet]
		}
		tweets = append(tweets, t)
	}
	return tweets, nil
}

func (d *tweetDoc) toModel(refs map[primitive.ObjectID]model.UserRef) model.Tweet {
	author, ok := refs[d.User]
	if !ok {
		author = model.UserRef{ID: d.User.Hex()}
	}

	t := model.Tweet{
		ID:            d.ID.Hex(),
		User:          author,
		Content:       d.Content,
		Image:         d.Image,
		Video:         d.Video,
		Likes:         hexes(d.Likes),
		Retweets:      hexes(d.Retweets),
		Comments:      commentsToModel(d.Comments, refs),
		Hashtags:      d.Hashtags,
		IsRetweet:     d.IsRetweet,
		IsDeleted:     d.IsDeleted,
		DeletedReason: d.DeletedReason,
		DeletedAt:     d.DeletedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if t.Hashtags == nil {
		t.Hashtags = []string{}
	}
	if d.OriginalTweet != nil {
		t.OriginalTweetID = d.OriginalTweet.Hex()
	}
	if d.DeletedBy != nil {
		t.DeletedBy = d.DeletedBy.Hex()
	}
	return t
}

func commentsToModel(docs []commentDoc, refs map[primitive.ObjectID]model.UserRef) []model.Comment {
	out := make([]model.Comment, 0, len(docs))
	for _, c := range docs {
		mc := model.Comment{
			ID:        c.ID.Hex(),
			UserID:    c.User.Hex(),
			Text:      c.Text,
			CreatedAt: c.CreatedAt,
		}
		if ref, ok := refs[c.User]; ok {
			mc.User = &ref
		}
		out = append(out, mc)
	}
	return out
}

func (s *Store) UpdateTweetContent(ctx context.Context, id, content string, hashtags []string) (*model.Tweet, error) {
	tid, err := oid(id, "Tweet")
	if err != nil {
		return nil, err
	}
	if hashtags == nil {
		hashtags = []string{}
	}

	var doc tweetDoc
	err = s.tweets.FindOneAndUpdate(ctx,
		bson.M{"_id": tid},
		bson.M{"$set": bson.M{"content": content, "hashtags": hashtags, "updatedAt": s.now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err, "Tweet", "updating tweet "+id)
	}

	tweets, err := s.populate(ctx, []tweetDoc{doc}, true)
	if err != nil {
		return nil, err
	}
	return &tweets[0], nil
}

func (s *Store) DeleteTweet(ctx context.Context, id string) error {
	tid, err := oid(id, "Tweet")
	if err != nil {
		return err
	}
	res, err := s.tweets.DeleteOne(ctx, bson.M{"_id": tid})
	if err != nil {
		return fmt.Errorf("mongo: deleting tweet %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("Tweet")
	}
	return nil
}

func (s *Store) SoftDeleteTweet(ctx context.Context, id, reason, adminID string, at time.Time) error {
	tid, err := oid(id, "Tweet")
	if err != nil {
		return err
	}
	set := bson.M{
		"isDeleted":     true,
		"deletedReason": reason,
		"deletedAt":     at,
		"updatedAt":     s.now(),
	}
	if admin, err := primitive.ObjectIDFromHex(adminID); err == nil {
		set["deletedBy"] = admin
	}

	res, err := s.tweets.UpdateByID(ctx, tid, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("mongo: soft-deleting tweet %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("Tweet")
	}
	return nil
}

func (s *Store) AddLike(ctx context.Context, tweetID, userID string) (int, error) {
	return s.updateLikes(ctx, tweetID, userID, "$addToSet")
}

func (s *Store) RemoveLike(ctx context.Context, tweetID, userID string) (int, error) {
	return s.updateLikes(ctx, tweetID, userID, "$pull")
}

// updateLikes applies op to the likes set and returns the resulting size,
// read from the same atomic FindOneAndUpdate.
func (s *Store) updateLikes(ctx context.Context, tweetID, userID, op string) (int, error) {
	tid, err := oid(tweetID, "Tweet")
	if err != nil {
		return 0, err
	}
	uid, err := oid(userID, "User")
	if err != nil {
		return 0, err
	}

	var doc struct {
		Likes []primitive.ObjectID `bson:"likes"`
	}
	err = s.tweets.FindOneAndUpdate(ctx,
		bson.M{"_id": tid},
		bson.M{op: bson.M{"likes": uid}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.D{{Key: "likes", Value: 1}}),
	).Decode(&doc)
	if err != nil {
		return 0, notFound(err, "Tweet", "updating likes of "+tweetID)
	}
	return len(doc.Likes), nil
}

func (s *Store) AddRetweeter(ctx context.Context, tweetID, userID string) error {
	return s.updateRetweeters(ctx, tweetID, userID, "$addToSet")
}

func (s *Store) RemoveRetweeter(ctx context.Context, tweetID, userID string) error {
	return s.updateRetweeters(ctx, tweetID, userID, "$pull")
}

func (s *Store) updateRetweeters(ctx context.Context, tweetID, userID, op string) error {
	tid, err := oid(tweetID, "Tweet")
	if err != nil {
		return err
	}
	uid, err := oid(userID, "User")
	if err != nil {
		return err
	}

	res, err := s.tweets.UpdateByID(ctx, tid, bson.M{op: bson.M{"retweets": uid}})
	if err != nil {
		return fmt.Errorf("mongo: updating retweets of %s: %w", tweetID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("Tweet")
	}
	return nil
}

func (s *Store) FindRetweet(ctx context.Context, userID, originalID string) (*model.Tweet, error) {
	uid, err := oid(userID, "Retweet")
	if err != nil {
		return nil, err
	}
	orig, err := oid(originalID, "Retweet")
	if err != nil {
		return nil, err
	}

	var doc tweetDoc
	err = s.tweets.FindOne(ctx, bson.M{"user": uid, "originalTweet": orig, "isRetweet": true}).Decode(&doc)
	if err != nil {
		return nil, notFound(err, "Retweet", "finding retweet")
	}

	tweets, err := s.populate(ctx, []tweetDoc{doc}, false)
	if err != nil {
		return nil, err
	}
	return &tweets[0], nil
}

func (s *Store) AddComment(ctx context.Context, tweetID string, c *model.Comment) ([]model.Comment, error) {
	tid, err := oid(tweetID, "Tweet")
	if err != nil {
		return nil, err
	}
	author, err := oid(c.UserID, "User")
	if err != nil {
		return nil, err
	}

	cd := commentDoc{
		ID:        primitive.NewObjectID(),
		User:      author,
		Text:      c.Text,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}

	var doc tweetDoc
	err = s.tweets.FindOneAndUpdate(ctx,
		bson.M{"_id": tid},
		bson.M{"$push": bson.M{"comments": cd}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err, "Tweet", "adding comment to "+tweetID)
	}

	c.ID = cd.ID.Hex()
	c.CreatedAt = cd.CreatedAt

	userIDs := make([]primitive.ObjectID, 0, len(doc.Comments))
	for _, cm := range doc.Comments {
		userIDs = append(userIDs, cm.User)
	}
	refs, err := s.userRefs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	return commentsToModel(doc.Comments, refs), nil
}

// trendsPipeline is the aggregation behind Trends: recent non-deleted
// tweets, one row per hashtag occurrence, counted per lowercased tag.
func trendsPipeline(since time.Time, limit int) driver.Pipeline {
	return driver.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "createdAt", Value: bson.D{{Key: "$gte", Value: since}}},
			{Key: "isDeleted", Value: bson.D{{Key: "$ne", Value: true}}},
		}}},
		{{Key: "$unwind", Value: "$hashtags"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$toLower", Value: "$hashtags"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "tag", Value: "$_id"},
			{Key: "count", Value: 1},
		}}},
	}
}

func (s *Store) Trends(ctx context.Context, since time.Time, limit int) ([]model.Trend, error) {
	cur, err := s.tweets.Aggregate(ctx, trendsPipeline(since, limit))
	if err != nil {
		return nil, fmt.Errorf("mongo: aggregating trends: %w", err)
	}

	var rows []struct {
		Tag   string `bson:"tag"`
		Count int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongo: decoding trends: %w", err)
	}

	trends := make([]model.Trend, 0, len(rows))
	for _, r := range rows {
		trends = append(trends, model.Trend{Tag: r.Tag, Count: r.Count})
	}
	return trends, nil
}
