package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/media"
	"github.com/sakif/social-feed/internal/model"
	"github.com/sakif/social-feed/internal/repository"
)

// SuggestedUserLimit caps GET /api/auth/suggested-users.
const SuggestedUserLimit = 5

// UserService covers profiles, the follow graph and profile pictures.
type UserService struct {
	users  repository.UserRepository
	media  media.Store
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, mediaStore media.Store, logger *slog.Logger) *UserService {
	return &UserService{users: users, media: mediaStore, logger: logger}
}

// FollowResult is the outcome of ToggleFollow.
type FollowResult struct {
	Message   string `json:"message"`
	Following bool   `json:"following"`
}

// Profile returns the user with id and both follow sets populated.
func (s *UserService) Profile(ctx context.Context, id string) (*model.Profile, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.populate(ctx, user)
}

// ProfileByUsername is Profile addressed by username.
func (s *UserService) ProfileByUsername(ctx context.Context, username string) (*model.Profile, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.populate(ctx, user)
}

func (s *UserService) populate(ctx context.Context, user *model.User) (*model.Profile, error) {
	followers, err := s.users.ListUsersByIDs(ctx, user.Followers)
	if err != nil {
		return nil, fmt.Errorf("loading followers of %s: %w", user.ID, err)
	}
	following, err := s.users.ListUsersByIDs(ctx, user.Following)
	if err != nil {
		return nil, fmt.Errorf("loading following of %s: %w", user.ID, err)
	}

	return &model.Profile{
		User:      *user,
		Followers: refs(followers),
		Following: refs(following),
	}, nil
}

func refs(users []model.UserSummary) []model.UserRef {
	out := make([]model.UserRef, 0, len(users))
	for _, u := range users {
		out = append(out, model.UserRef{ID: u.ID, Username: u.Username, ProfilePicture: u.ProfilePicture})
	}
	return out
}

// Followers lists who follows username, sorted by username.
func (s *UserService) Followers(ctx context.Context, username string) ([]model.UserSummary, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.users.ListUsersByIDs(ctx, user.Followers)
}

// Following lists whom username follows, sorted by username.
func (s *UserService) Following(ctx context.Context, username string) ([]model.UserSummary, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.users.ListUsersByIDs(ctx, user.Following)
}

// ToggleFollow makes followerID follow targetID, or unfollow if it already
// does. Both sides of the edge change together.
func (s *UserService) ToggleFollow(ctx context.Context, followerID, targetID string) (*FollowResult, error) {
	if followerID == targetID {
		return nil, apperror.ValidationFailed("userId", "Cannot follow yourself")
	}

	if _, err := s.users.GetUserByID(ctx, targetID); err != nil {
		return nil, err
	}
	me, err := s.users.GetUserByID(ctx, followerID)
	if err != nil {
		return nil, err
	}

	if me.IsFollowing(targetID) {
		if err := s.users.Unfollow(ctx, followerID, targetID); err != nil {
			return nil, fmt.Errorf("unfollowing %s: %w", targetID, err)
		}
		s.logger.Info("user unfollowed", slog.String("follower", followerID), slog.String("followee", targetID))
		return &FollowResult{Message: "Unfollowed successfully", Following: false}, nil
	}

	if err := s.users.Follow(ctx, followerID, targetID); err != nil {
		return nil, fmt.Errorf("following %s: %w", targetID, err)
	}
	s.logger.Info("user followed", slog.String("follower", followerID), slog.String("followee", targetID))
	return &FollowResult{Message: "Followed successfully", Following: true}, nil
}

// Suggested returns up to SuggestedUserLimit accounts userID does not
// follow yet, newest accounts first.
func (s *UserService) Suggested(ctx context.Context, userID string) ([]model.UserSummary, error) {
	users, err := s.users.SuggestUsers(ctx, userID, SuggestedUserLimit)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("suggesting users for %s: %w", userID, err)
	}
	return users, nil
}

// UpdateProfile edits bio, location and website. Nil fields stay as they are.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	for _, f := range []*string{update.Bio, update.Location, update.Website} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	if update.Bio != nil && len([]rune(*update.Bio)) > 160 {
		return nil, apperror.ValidationFailed("bio", "Bio must be 160 characters or less")
	}

	user, err := s.users.UpdateProfile(ctx, userID, update)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SetProfilePicture stores a new avatar for userID, downscaled to fit
// media.AvatarSize, and removes the previous one if this server stored it.
func (s *UserService) SetProfilePicture(ctx context.Context, userID, filename, mime string, data []byte) (*model.User, error) {
	if len(data) == 0 {
		return nil, apperror.ValidationFailed("profilePicture", "No image uploaded")
	}
	if len(data) > media.MaxProfilePictureSize {
		return nil, apperror.ValidationFailed("profilePicture", "File too large. Max 5MB.")
	}
	if !media.IsProfileImage(mime, filename) {
		return nil, apperror.ValidationFailed("profilePicture", "Only image files are allowed!")
	}

	current, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resized, err := media.ResizeAvatar(data, mime)
	if err != nil {
		return nil, apperror.ValidationFailed("profilePicture", "Could not read image")
	}

	url, err := s.media.Save(ctx, media.PrefixProfile, filename, resized, mime)
	if err != nil {
		return nil, fmt.Errorf("storing profile picture: %w", err)
	}

	user, err := s.users.SetProfilePicture(ctx, userID, url)
	if err != nil {
		return nil, err
	}

	if old := current.ProfilePicture; old != "" && old != url {
		// GitHub avatars and other external URLs are refused by the store.
		if err := s.media.Delete(ctx, old); err != nil {
			s.logger.Debug("previous profile picture not removed",
				slog.String("url", old),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("profile picture updated", slog.String("userID", userID))
	return user, nil
}
