package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/social-feed/internal/media"
	"github.com/sakif/social-feed/internal/model"
	"github.com/sakif/social-feed/internal/service"
)

// UserHandler serves profiles and the follow graph under /api/auth.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleProfile returns a profile by id.
//
// HTTP: GET /api/auth/profile/{userId}
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.users.Profile(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

// HandleProfileByUsername returns a profile by username.
//
// HTTP: GET /api/auth/profile/username/{username}
func (h *UserHandler) HandleProfileByUsername(w http.ResponseWriter, r *http.Request) {
	profile, err := h.users.ProfileByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

// HandleFollowers lists who follows a user.
//
// HTTP: GET /api/auth/profile/username/{username}/followers
func (h *UserHandler) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Followers(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"followers": users})
}

// HandleFollowing lists whom a user follows.
//
// HTTP: GET /api/auth/profile/username/{username}/following
func (h *UserHandler) HandleFollowing(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Following(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"following": users})
}

// HandleUpdateProfile edits the caller's bio, location and website.
//
// HTTP: PUT /api/auth/profile
// REQUEST BODY: {"bio": "...", "location": "...", "website": "..."}
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var update model.ProfileUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// HandleProfilePicture replaces the caller's avatar.
//
// HTTP: POST /api/auth/profile/picture
// FORM FIELD: "profilePicture"
func (h *UserHandler) HandleProfilePicture(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	up, err := readUpload(w, r, media.MaxProfilePictureSize, "File too large. Max 5MB.", "profilePicture")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.SetProfilePicture(r.Context(), userID, up.filename, up.mime, up.data)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// HandleFollow toggles whether the caller follows userId.
//
// HTTP: POST /api/auth/follow/{userId}
func (h *UserHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.users.ToggleFollow(r.Context(), userID, r.PathValue("userId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSuggested returns accounts the caller might follow.
//
// HTTP: GET /api/auth/suggested-users
func (h *UserHandler) HandleSuggested(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	users, err := h.users.Suggested(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}
