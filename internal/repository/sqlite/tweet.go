package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/model"
	"github.com/sakif/social-feed/internal/repository"
)

// tweetSelect loads a tweet row with its author reference in one query.
// The author is LEFT JOINed so a tweet whose author vanished still loads.
const tweetSelect = `
	SELECT t.id, t.user_id, COALESCE(u.username, ''), COALESCE(u.profile_picture, ''),
	       t.content, t.image, t.video, COALESCE(t.original_tweet_id, ''),
	       t.is_retweet, t.is_deleted, t.deleted_reason, t.deleted_by, t.deleted_at,
	       t.created_at, t.updated_at
	FROM tweets t
	LEFT JOIN users u ON u.id = t.user_id`

// CreateTweet inserts tweet with its hashtags. ID and timestamps are filled in.
// A second shadow for the same (user, original) pair yields ErrConflict.
func (db *DB) CreateTweet(ctx context.Context, tweet *model.Tweet) error {
	now := db.now().UTC().Truncate(time.Millisecond)
	tweet.ID = xid.New().String()
	tweet.CreatedAt = now
	tweet.UpdatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning create tweet: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tweets (id, user_id, content, image, video, original_tweet_id,
			is_retweet, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tweet.ID,
		tweet.User.ID,
		tweet.Content,
		tweet.Image,
		tweet.Video,
		nullIfEmpty(tweet.OriginalTweetID),
		boolInt(tweet.IsRetweet),
		toMillis(tweet.CreatedAt),
		toMillis(tweet.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Tweet already retweeted")
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("User")
		}
		return fmt.Errorf("sqlite: creating tweet: %w", err)
	}

	if err := insertHashtags(ctx, tx, tweet.ID, tweet.Hashtags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing tweet %s: %w", tweet.ID, err)
	}

	if tweet.Hashtags == nil {
		tweet.Hashtags = []string{}
	}
	tweet.Likes = []string{}
	tweet.Retweets = []string{}
	tweet.Comments = []model.Comment{}
	return nil
}

func insertHashtags(ctx context.Context, tx *sql.Tx, tweetID string, tags []string) error {
	for i, tag := range tags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tweet_hashtags (tweet_id, position, tag) VALUES (?, ?, ?)`,
			tweetID, i, tag,
		)
		if err != nil {
			return fmt.Errorf("sqlite: storing hashtag %q of %s: %w", tag, tweetID, err)
		}
	}
	return nil
}

// GetTweet loads one fully populated tweet, including its original if it
// is a shadow.
func (db *DB) GetTweet(ctx context.Context, id string) (*model.Tweet, error) {
	tweets, err := db.selectTweets(ctx, `WHERE t.id = ?`, []any{id}, true)
	if err != nil {
		return nil, err
	}
	if len(tweets) == 0 {
		return nil, apperror.NotFound("Tweet")
	}
	return &tweets[0], nil
}

// ListTweets returns tweets matching filter, newest first.
func (db *DB) ListTweets(ctx context.Context, filter repository.TweetFilter) ([]model.Tweet, error) {
	var (
		conds []string
		args  []any
	)
	if filter.AuthorID != "" {
		conds = append(conds, "t.user_id = ?")
		args = append(args, filter.AuthorID)
	}
	if filter.Hashtag != "" {
		conds = append(conds, "t.id IN (SELECT tweet_id FROM tweet_hashtags WHERE tag = ?)")
		args = append(args, filter.Hashtag)
	}
	if filter.ContentContains != "" {
		// LIKE is case-insensitive for ASCII in SQLite.
		conds = append(conds, `t.content LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(filter.ContentContains))
	}

	clause := ""
	if len(conds) > 0 {
		clause = "WHERE " + strings.Join(conds, " AND ")
	}
	clause += " ORDER BY t.created_at DESC, t.rowid DESC"
	if filter.Limit > 0 {
		clause += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return db.selectTweets(ctx, clause, args, filter.WithOriginals)
}

// selectTweets runs tweetSelect with clause and hydrates the results.
// The rows are fully drained before hydration queries run, so this is safe
// on a single-connection pool.
func (db *DB) selectTweets(ctx context.Context, clause string, args []any, withOriginals bool) ([]model.Tweet, error) {
	tweets, err := db.scanTweets(ctx, tweetSelect+" "+clause, args)
	if err != nil {
		return nil, err
	}
	if err := db.hydrate(ctx, tweets); err != nil {
		return nil, err
	}

	if withOriginals {
		if err := db.attachOriginals(ctx, tweets); err != nil {
			return nil, err
		}
	}
	return tweets, nil
}

func (db *DB) scanTweets(ctx context.Context, query string, args []any) ([]model.Tweet, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying tweets: %w", err)
	}
	defer rows.Close()

	tweets := []model.Tweet{}
	for rows.Next() {
		var (
			t         model.Tweet
			isRetweet int
			isDeleted int
			deletedAt sql.NullInt64
			createdAt int64
			updatedAt int64
		)
		err := rows.Scan(
			&t.ID,
			&t.User.ID,
			&t.User.Username,
			&t.User.ProfilePicture,
			&t.Content,
			&t.Image,
			&t.Video,
			&t.OriginalTweetID,
			&isRetweet,
			&isDeleted,
			&t.DeletedReason,
			&t.DeletedBy,
			&deletedAt,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning tweet: %w", err)
		}
		t.IsRetweet = isRetweet != 0
		t.IsDeleted = isDeleted != 0
		if deletedAt.Valid {
			at := fromMillis(deletedAt.Int64)
			t.DeletedAt = &at
		}
		t.CreatedAt = fromMillis(createdAt)
		t.UpdatedAt = fromMillis(updatedAt)
		tweets = append(tweets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tweets: %w", err)
	}
	return tweets, nil
}

// hydrate loads likes, retweets, comments and hashtags for every tweet in
// one query per collection.
func (db *DB) hydrate(ctx context.Context, tweets []model.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}

	ids := make([]string, len(tweets))
	for i := range tweets {
		ids[i] = tweets[i].ID
	}

	likes, err := db.idSets(ctx, "tweet_likes", ids)
	if err != nil {
		return err
	}
	retweets, err := db.idSets(ctx, "tweet_retweets", ids)
	if err != nil {
		return err
	}
	comments, err := db.commentsFor(ctx, ids)
	if err != nil {
		return err
	}
	tags, err := db.hashtagsFor(ctx, ids)
	if err != nil {
		return err
	}

	for i := range tweets {
		id := tweets[i].ID
		tweets[i].Likes = orEmpty(likes[id])
		tweets[i].Retweets = orEmpty(retweets[id])
		tweets[i].Hashtags = orEmpty(tags[id])
		tweets[i].Comments = comments[id]
		if tweets[i].Comments == nil {
			tweets[i].Comments = []model.Comment{}
		}
	}
	return nil
}

func (db *DB) attachOriginals(ctx context.Context, tweets []model.Tweet) error {
	var origIDs []string
	for _, t := range tweets {
		if t.OriginalTweetID != "" {
			origIDs = append(origIDs, t.OriginalTweetID)
		}
	}
	if len(origIDs) == 0 {
		return nil
	}

	originals, err := db.selectTweets(ctx,
		`WHERE t.id IN (`+placeholders(len(origIDs))+`)`, stringArgs(origIDs), false)
	if err != nil {
		return err
	}

	byID := make(map[string]*model.Tweet, len(originals))
	for i := range originals {
		byID[originals[i].ID] = &originals[i]
	}
	for i := range tweets {
		if orig, ok := byID[tweets[i].OriginalTweetID]; ok {
			tweets[i].Original = orig
		}
	}
	return nil
}

// idSets reads a (tweet_id, user_id) set table for the given tweets.
func (db *DB) idSets(ctx context.Context, table string, tweetIDs []string) (map[string][]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT tweet_id, user_id FROM `+table+`
		 WHERE tweet_id IN (`+placeholders(len(tweetIDs))+`) ORDER BY rowid`,
		stringArgs(tweetIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading %s: %w", table, err)
	}
	defer rows.Close()

	sets := make(map[string][]string)
	for rows.Next() {
		var tweetID, userID string
		if err := rows.Scan(&tweetID, &userID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s: %w", table, err)
		}
		sets[tweetID] = append(sets[tweetID], userID)
	}
	return sets, rows.Err()
}

func (db *DB) commentsFor(ctx context.Context, tweetIDs []string) (map[string][]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT c.id, c.tweet_id, c.user_id, c.text, c.created_at, u.username, u.profile_picture
		 FROM tweet_comments c
		 LEFT JOIN users u ON u.id = c.user_id
		 WHERE c.tweet_id IN (`+placeholders(len(tweetIDs))+`)
		 ORDER BY c.created_at, c.rowid`,
		stringArgs(tweetIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading comments: %w", err)
	}
	defer rows.Close()

	comments := make(map[string][]model.Comment)
	for rows.Next() {
		var (
			c         model.Comment
			tweetID   string
			createdAt int64
			username  sql.NullString
			picture   sql.NullString
		)
		if err := rows.Scan(&c.ID, &tweetID, &c.UserID, &c.Text, &createdAt, &username, &picture); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment: %w", err)
		}
		c.CreatedAt = fromMillis(createdAt)
		if username.Valid {
			c.User = &model.UserRef{ID: c.UserID, Username: username.String, ProfilePicture: picture.String}
		}
		comments[tweetID] = append(comments[tweetID], c)
	}
	return comments, rows.Err()
}

func (db *DB) hashtagsFor(ctx context.Context, tweetIDs []string) (map[string][]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT tweet_id, tag FROM tweet_hashtags
		 WHERE tweet_id IN (`+placeholders(len(tweetIDs))+`)
		 ORDER BY tweet_id, position`,
		stringArgs(tweetIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading hashtags: %w", err)
	}
	defer rows.Close()

	tags := make(map[string][]string)
	for rows.Next() {
		var tweetID, tag string
		if err := rows.Scan(&tweetID, &tag); err != nil {
			return nil, fmt.Errorf("sqlite: scanning hashtag: %w", err)
		}
		tags[tweetID] = append(tags[tweetID], tag)
	}
	return tags, rows.Err()
}

// UpdateTweetContent replaces content and re-derived hashtags in one
// transaction and returns the updated tweet.
func (db *DB) UpdateTweetContent(ctx context.Context, id, content string, hashtags []string) (*model.Tweet, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning update tweet: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE tweets SET content = ?, updated_at = ? WHERE id = ?`,
		content, toMillis(db.now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating tweet %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("sqlite: updating tweet %s: %w", id, err)
	} else if n == 0 {
		return nil, apperror.NotFound("Tweet")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tweet_hashtags WHERE tweet_id = ?`, id); err != nil {
		return nil, fmt.Errorf("sqlite: clearing hashtags of %s: %w", id, err)
	}
	if err := insertHashtags(ctx, tx, id, hashtags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing tweet %s: %w", id, err)
	}
	return db.GetTweet(ctx, id)
}

// DeleteTweet removes the tweet; its engagement rows cascade.
func (db *DB) DeleteTweet(ctx context.Context, id string) error {
	if err := db.execOne(ctx, "Tweet", `DELETE FROM tweets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting tweet %s: %w", id, err)
	}
	return nil
}

func (db *DB) SoftDeleteTweet(ctx context.Context, id, reason, adminID string, at time.Time) error {
	err := db.execOne(ctx, "Tweet",
		`UPDATE tweets SET is_deleted = 1, deleted_reason = ?, deleted_by = ?, deleted_at = ?, updated_at = ?
		 WHERE id = ?`,
		reason, adminID, toMillis(at), toMillis(db.now()), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: soft-deleting tweet %s: %w", id, err)
	}
	return nil
}

func (db *DB) AddLike(ctx context.Context, tweetID, userID string) (int, error) {
	if err := db.addToSet(ctx, "tweet_likes", tweetID, userID); err != nil {
		return 0, err
	}
	return db.countSet(ctx, "tweet_likes", tweetID)
}

func (db *DB) RemoveLike(ctx context.Context, tweetID, userID string) (int, error) {
	if err := db.pullFromSet(ctx, "tweet_likes", tweetID, userID); err != nil {
		return 0, err
	}
	return db.countSet(ctx, "tweet_likes", tweetID)
}

func (db *DB) AddRetweeter(ctx context.Context, tweetID, userID string) error {
	return db.addToSet(ctx, "tweet_retweets", tweetID, userID)
}

func (db *DB) RemoveRetweeter(ctx context.Context, tweetID, userID string) error {
	return db.pullFromSet(ctx, "tweet_retweets", tweetID, userID)
}

// addToSet is the $addToSet equivalent: the primary key makes a repeated
// insert a no-op.
func (db *DB) addToSet(ctx context.Context, table, tweetID, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+table+` (tweet_id, user_id) VALUES (?, ?)`,
		tweetID, userID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("Tweet")
		}
		return fmt.Errorf("sqlite: adding %s to %s of %s: %w", userID, table, tweetID, err)
	}
	return nil
}

// pullFromSet is the $pull equivalent.
func (db *DB) pullFromSet(ctx context.Context, table, tweetID, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE tweet_id = ? AND user_id = ?`,
		tweetID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing %s from %s of %s: %w", userID, table, tweetID, err)
	}
	return nil
}

func (db *DB) countSet(ctx context.Context, table, tweetID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE tweet_id = ?`, tweetID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting %s of %s: %w", table, tweetID, err)
	}
	return n, nil
}

func (db *DB) FindRetweet(ctx context.Context, userID, originalID string) (*model.Tweet, error) {
	tweets, err := db.selectTweets(ctx,
		`WHERE t.user_id = ? AND t.original_tweet_id = ? AND t.is_retweet = 1`,
		[]any{userID, originalID}, false)
	if err != nil {
		return nil, err
	}
	if len(tweets) == 0 {
		return nil, apperror.NotFound("Retweet")
	}
	return &tweets[0], nil
}

func (db *DB) AddComment(ctx context.Context, tweetID string, c *model.Comment) ([]model.Comment, error) {
	c.ID = xid.New().String()
	c.CreatedAt = db.now().UTC().Truncate(time.Millisecond)

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tweet_comments (id, tweet_id, user_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, tweetID, c.UserID, c.Text, toMillis(c.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperror.NotFound("Tweet")
		}
		return nil, fmt.Errorf("sqlite: adding comment to %s: %w", tweetID, err)
	}

	comments, err := db.commentsFor(ctx, []string{tweetID})
	if err != nil {
		return nil, err
	}
	if comments[tweetID] == nil {
		return []model.Comment{}, nil
	}
	return comments[tweetID], nil
}

// Trends counts hashtag occurrences (duplicates within a tweet count
// separately) on recent, non-moderated tweets.
func (db *DB) Trends(ctx context.Context, since time.Time, limit int) ([]model.Trend, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT h.tag, COUNT(*) AS n
		 FROM tweet_hashtags h
		 JOIN tweets t ON t.id = h.tweet_id
		 WHERE t.created_at >= ? AND t.is_deleted = 0
		 GROUP BY h.tag
		 ORDER BY n DESC, h.tag ASC
		 LIMIT ?`,
		toMillis(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating trends: %w", err)
	}
	defer rows.Close()

	trends := []model.Trend{}
	for rows.Next() {
		var tr model.Trend
		if err := rows.Scan(&tr.Tag, &tr.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning trend: %w", err)
		}
		trends = append(trends, tr)
	}
	return trends, rows.Err()
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
