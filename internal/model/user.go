// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Accounts come from either email/password signup or GitHub sign-in. A
// GitHub-only account has an empty PasswordHash and a non-zero GitHubID;
// a password account has GitHubID == 0.
//
// Followers and Following are stored as two independent sets. Every follow
// or unfollow updates both sides, so A ∈ B.Followers ⇔ B ∈ A.Following.
type User struct {
	ID             string    `json:"_id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"` // never serialized
	GitHubID       int64     `json:"githubId,omitempty"`
	ProfilePicture string    `json:"profilePicture"`
	Bio            string    `json:"bio"`
	Location       string    `json:"location"`
	Website        string    `json:"website"`
	IsAdmin        bool      `json:"isAdmin"`
	Followers      []string  `json:"followers"`
	Following      []string  `json:"following"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Ref returns the short author reference embedded in tweets.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username, ProfilePicture: u.ProfilePicture}
}

// Summary returns the card shown in search results and follower lists.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, ProfilePicture: u.ProfilePicture, Bio: u.Bio}
}

// IsFollowing reports whether u follows the user with the given id.
func (u *User) IsFollowing(id string) bool {
	return contains(u.Following, id)
}

// UserRef is the populated form of an author reference.
type UserRef struct {
	ID             string `json:"_id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// UserSummary is what user search, suggestions and follower lists return.
type UserSummary struct {
	ID             string `json:"_id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
	Bio            string `json:"bio"`
}

// Profile is a user with the follow sets populated into references.
type Profile struct {
	User
	Followers []UserRef `json:"followers"`
	Following []UserRef `json:"following"`
}

// ProfileUpdate carries the editable profile fields. A nil field is left unchanged.
type ProfileUpdate struct {
	Bio      *string `json:"bio"`
	Location *string `json:"location"`
	Website  *string `json:"website"`
}

func contains(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
