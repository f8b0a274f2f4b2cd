// Package mongo implements the repository interfaces on MongoDB.
//
// Tweets and users are stored as documents shaped like the ones the web
// client already knows: engagement sets and the comment thread live inside
// the tweet document, follow sets inside the user document. Set membership
// changes use $addToSet / $pull so each one is a single atomic update.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store holds the client and the two collections.
type Store struct {
	client *driver.Client
	users  *driver.Collection
	tweets *driver.Collection
	now    func() time.Time
}

// New connects to uri, verifies the connection and ensures indexes on the
// given database.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := driver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client: client,
		users:  db.Collection("users"),
		tweets: db.Collection("tweets"),
		now:    time.Now,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: creating indexes: %w", err)
	}
	return s, nil
}

// Close disconnects the client, waiting at most ten seconds.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []driver.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "githubId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("users: %w", err)
	}

	_, err = s.tweets.Indexes().CreateMany(ctx, []driver.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "hashtags", Value: 1}}},
		{
			// at most one shadow per (user, original)
			Keys: bson.D{{Key: "user", Value: 1}, {Key: "originalTweet", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "isRetweet", Value: true}}),
		},
	})
	if err != nil {
		return fmt.Errorf("tweets: %w", err)
	}
	return nil
}

// oid parses a hex id. Anything that is not an ObjectID cannot exist in
// this store, so it is reported as NotFound(resource).
func oid(id, resource string) (primitive.ObjectID, error) {
	v, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperror.NotFound(resource)
	}
	return v, nil
}

func oids(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if v, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func hexes(ids []primitive.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

// notFound maps ErrNoDocuments to NotFound(resource) and wraps anything else.
func notFound(err error, resource, op string) error {
	if errors.Is(err, driver.ErrNoDocuments) {
		return apperror.NotFound(resource)
	}
	return fmt.Errorf("mongo: %s: %w", op, err)
}
