package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/model"
)

type userDoc struct {
	ID             primitive.ObjectID   `bson:"_id"`
	Username       string               `bson:"username"`
	Email          string               `bson:"email,omitempty"`
	Password       string               `bson:"password,omitempty"`
	GitHubID       int64                `bson:"githubId,omitempty"`
	ProfilePicture string               `bson:"profilePicture"`
	Bio            string               `bson:"bio"`
	Location       string               `bson:"location"`
	Website        string               `bson:"website"`
	IsAdmin        bool                 `bson:"isAdmin"`
	Followers      []primitive.ObjectID `bson:"followers"`
	Following      []primitive.ObjectID `bson:"following"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
}

func (d *userDoc) toModel() *model.User {
	return &model.User{
		ID:             d.ID.Hex(),
		Username:       d.Username,
		Email:          d.Email,
		PasswordHash:   d.Password,
		GitHubID:       d.GitHubID,
		ProfilePicture: d.ProfilePicture,
		Bio:            d.Bio,
		Location:       d.Location,
		Website:        d.Website,
		IsAdmin:        d.IsAdmin,
		Followers:      hexes(d.Followers),
		Following:      hexes(d.Following),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// summaryProjection limits user reads to the public card fields.
var summaryProjection = bson.D{
	{Key: "username", Value: 1},
	{Key: "profilePicture", Value: 1},
	{Key: "bio", Value: 1},
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	now := s.now().UTC().Truncate(time.Millisecond)
	doc := userDoc{
		ID:             primitive.NewObjectID(),
		Username:       user.Username,
		Email:          user.Email,
		Password:       user.PasswordHash,
		GitHubID:       user.GitHubID,
		ProfilePicture: user.ProfilePicture,
		Bio:            user.Bio,
		Location:       user.Location,
		Website:        user.Website,
		IsAdmin:        user.IsAdmin,
		Followers:      []primitive.ObjectID{},
		Following:      []primitive.ObjectID{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if driver.IsDuplicateKeyError(err) {
			return apperror.Conflict("User already exists")
		}
		return fmt.Errorf("mongo: creating user %q: %w", user.Username, err)
	}

	*user = *doc.toModel()
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	uid, err := oid(id, "User")
	if err != nil {
		return nil, err
	}
	return s.findUser(ctx, bson.M{"_id": uid})
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err, "User", "finding user")
	}
	return doc.toModel(), nil
}

// UpsertGitHubUser links or creates the account for user.GitHubID.
// See the sqlite implementation for the username collision rule.
func (s *Store) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	var existing userDoc
	err := s.users.FindOne(ctx, bson.M{"githubId": user.GitHubID}).Decode(&existing)
	switch {
	case err == nil:
		if user.Email != "" && user.Email != existing.Email {
			_, err := s.users.UpdateByID(ctx, existing.ID, bson.M{
				"$set": bson.M{"email": user.Email, "updatedAt": s.now()},
			})
			if err != nil && !driver.IsDuplicateKeyError(err) {
				return fmt.Errorf("mongo: updating user %s: %w", existing.ID.Hex(), err)
			}
		}
		stored, err := s.GetUserByID(ctx, existing.ID.Hex())
		if err != nil {
			return err
		}
		*user = *stored
		return nil
	case !errors.Is(err, driver.ErrNoDocuments):
		return fmt.Errorf("mongo: looking up user by githubId %d: %w", user.GitHubID, err)
	}

	err = s.CreateUser(ctx, user)
	if errors.Is(err, apperror.ErrConflict) {
		user.Username = fmt.Sprintf("%s-%d", user.Username, user.GitHubID)
		user.Email = ""
		err = s.CreateUser(ctx, user)
	}
	if err != nil {
		return fmt.Errorf("mongo: inserting user (githubId=%d): %w", user.GitHubID, err)
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	set := bson.M{"updatedAt": s.now()}
	if update.Bio != nil {
		set["bio"] = *update.Bio
	}
	if update.Location != nil {
		set["location"] = *update.Location
	}
	if update.Website != nil {
		set["website"] = *update.Website
	}
	return s.updateUser(ctx, id, bson.M{"$set": set})
}

func (s *Store) SetProfilePicture(ctx context.Context, id, url string) (*model.User, error) {
	return s.updateUser(ctx, id, bson.M{"$set": bson.M{"profilePicture": url, "updatedAt": s.now()}})
}

func (s *Store) SetAdmin(ctx context.Context, id string, admin bool) error {
	_, err := s.updateUser(ctx, id, bson.M{"$set": bson.M{"isAdmin": admin, "updatedAt": s.now()}})
	return err
}

func (s *Store) updateUser(ctx context.Context, id string, update bson.M) (*model.User, error) {
	uid, err := oid(id, "User")
	if err != nil {
		return nil, err
	}

	var doc userDoc
	err = s.users.FindOneAndUpdate(ctx, bson.M{"_id": uid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err, "User", "updating user "+id)
	}
	return doc.toModel(), nil
}

// Follow adds the edge on both documents. The two updates are independent;
// both are idempotent so a retried follow converges.
func (s *Store) Follow(ctx context.Context, followerID, followeeID string) error {
	return s.setFollow(ctx, followerID, followeeID, "$addToSet")
}

func (s *Store) Unfollow(ctx context.Context, followerID, followeeID string) error {
	return s.setFollow(ctx, followerID, followeeID, "$pull")
}

func (s *Store) setFollow(ctx context.Context, followerID, followeeID, op string) error {
	follower, err := oid(followerID, "User")
	if err != nil {
		return err
	}
	followee, err := oid(followeeID, "User")
	if err != nil {
		return err
	}

	res, err := s.users.UpdateByID(ctx, follower, bson.M{op: bson.M{"following": followee}})
	if err != nil {
		return fmt.Errorf("mongo: updating following of %s: %w", followerID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("User")
	}

	res, err = s.users.UpdateByID(ctx, followee, bson.M{op: bson.M{"followers": follower}})
	if err != nil {
		return fmt.Errorf("mongo: updating followers of %s: %w", followeeID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("User")
	}
	return nil
}

// userSearchFilter matches query literally and case-insensitively against
// username or bio.
func userSearchFilter(query string) bson.M {
	re := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return bson.M{"$or": bson.A{
		bson.M{"username": re},
		bson.M{"bio": re},
	}}
}

func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	opts := options.Find().
		SetProjection(summaryProjection).
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetLimit(int64(limit))
	return s.findSummaries(ctx, userSearchFilter(query), opts)
}

func (s *Store) ListUsersByIDs(ctx context.Context, ids []string) ([]model.UserSummary, error) {
	if len(ids) == 0 {
		return []model.UserSummary{}, nil
	}
	opts := options.Find().
		SetProjection(summaryProjection).
		SetSort(bson.D{{Key: "username", Value: 1}})
	return s.findSummaries(ctx, bson.M{"_id": bson.M{"$in": oids(ids)}}, opts)
}

func (s *Store) SuggestUsers(ctx context.Context, userID string, limit int) ([]model.UserSummary, error) {
	me, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	exclude := oids(append([]string{userID}, me.Following...))

	opts := options.Find().
		SetProjection(summaryProjection).
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	return s.findSummaries(ctx, bson.M{"_id": bson.M{"$nin": exclude}}, opts)
}

func (s *Store) findSummaries(ctx context.Context, filter any, opts *options.FindOptions) ([]model.UserSummary, error) {
	cur, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decoding users: %w", err)
	}

	out := make([]model.UserSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.UserSummary{
			ID:             d.ID.Hex(),
			Username:       d.Username,
			ProfilePicture: d.ProfilePicture,
			Bio:            d.Bio,
		})
	}
	return out, nil
}

// userRefs loads author references for ids in one query.
func (s *Store) userRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]model.UserRef, error) {
	refs := make(map[primitive.ObjectID]model.UserRef, len(ids))
	if len(ids) == 0 {
		return refs, nil
	}

	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.D{
			{Key: "username", Value: 1},
			{Key: "profilePicture", Value: 1},
		}))
	if err != nil {
		return nil, fmt.Errorf("mongo: populating users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decoding populated users: %w", err)
	}
	for _, d := range docs {
		refs[d.ID] = model.UserRef{ID: d.ID.Hex(), Username: d.Username, ProfilePicture: d.ProfilePicture}
	}
	return refs, nil
}
